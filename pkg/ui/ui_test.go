package ui

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/models"
)

func TestStageTrackerCounts(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStageTracker(&buf, false)

	tr.StageStarted("chats", 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i == 0 {
				err = errors.New("boom")
			}
			tr.EntityDone("chats", "e", err)
		}(i)
	}
	wg.Wait()
	tr.EntityDone("media", "e", nil)
	tr.StageFinished("chats")

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, 4, history[0].Done)
	assert.Equal(t, 1, history[0].Errors)
	assert.Contains(t, buf.String(), "4/4")
	assert.Contains(t, buf.String(), "1 errors")
}

func TestQuietTrackerWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStageTracker(&buf, true)
	tr.StageStarted("clips", 1)
	tr.EntityDone("clips", "e", nil)
	tr.StageFinished("clips")

	assert.Empty(t, buf.String())
	assert.Len(t, tr.History(), 1)
}

func TestStageStatusBar(t *testing.T) {
	assert.Equal(t, "━━━━━━━━━━──────────", StageStatus{Total: 4, Done: 2}.Bar())
	assert.Equal(t, "────────────────────", StageStatus{}.Bar())
	assert.Equal(t, "━━━━━━━━━━━━━━━━━━━━", StageStatus{Total: 1, Done: 3}.Bar())
}

func TestReportTables(t *testing.T) {
	out := ReportTable([]models.UserAggregate{{EntityID: "100", MessageCount: 7, CheerAmount: 250}})
	assert.Contains(t, out, "messages")
	assert.Contains(t, out, "100")
	assert.Contains(t, out, "250")

	clips := ClipReportTable([]models.ClipSummary{{EntityID: "100", ClipCount: 3, DurationWithVideoID: 42}})
	assert.Contains(t, clips, "with vod")
	assert.Contains(t, clips, "42.0")
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	old := Out
	Out = &buf
	defer func() { Out = old }()

	PrintInfo("entities", "3")
	PrintError("fetch failed", errors.New("timeout"))
	PrintWarning("no clips")

	assert.Contains(t, buf.String(), "entities")
	assert.Contains(t, buf.String(), "fetch failed: timeout")
	assert.Contains(t, buf.String(), "no clips")
}
