package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/checkpoint"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/fetcher"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/pipeline"
	"clipharvest/pkg/ui"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := ui.Out
	ui.Out = &buf
	t.Cleanup(func() { ui.Out = prev })
	return &buf
}

func setRunFlags(t *testing.T, resume, start, end string) {
	t.Helper()
	prevResume, prevStart, prevEnd := resumeID, startedAt, endedAt
	resumeID, startedAt, endedAt = resume, start, end
	t.Cleanup(func() { resumeID, startedAt, endedAt = prevResume, prevStart, prevEnd })
}

func TestNormalizeLogins(t *testing.T) {
	out := captureOutput(t)

	got := normalizeLogins([]string{" @Alpha ", "", "beta_2", "not a login", "twitch.tv/x"})
	assert.Equal(t, []string{"alpha", "beta_2"}, got)
	assert.Contains(t, out.String(), "not a login")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "***", mask("short"))
	assert.Equal(t, "abcd...wxyz", mask("abcdefghijklmnopqrstuvwxyz"))
}

func TestPrepareRun(t *testing.T) {
	runs, err := checkpoint.NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	window := fetcher.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("new run requires logins", func(t *testing.T) {
		setRunFlags(t, "", "", "")
		_, _, _, err := prepareRun(runs, nil, window)
		assert.Error(t, err)
	})

	setRunFlags(t, "", "", "")
	created, logins, _, err := prepareRun(runs, []string{"alpha"}, window)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, []string{"alpha"}, logins)

	t.Run("resume reuses recorded window and logins", func(t *testing.T) {
		setRunFlags(t, created.ID, "", "")
		other := fetcher.Window{Start: window.Start.AddDate(0, -1, 0), End: window.End}

		run, logins, got, err := prepareRun(runs, nil, other)
		require.NoError(t, err)
		assert.Equal(t, created.ID, run.ID)
		assert.Equal(t, []string{"alpha"}, logins)
		assert.True(t, got.Start.Equal(window.Start))
	})

	t.Run("resume rejects a different explicit window", func(t *testing.T) {
		setRunFlags(t, created.ID, "2023-12-01T00:00:00Z", "")
		other := fetcher.Window{Start: window.Start.AddDate(0, -1, 0), End: window.End}

		_, _, _, err := prepareRun(runs, nil, other)
		assert.Error(t, err)
	})

	t.Run("unknown run", func(t *testing.T) {
		setRunFlags(t, "00000000-0000-0000-0000-000000000000", "", "")
		_, _, _, err := prepareRun(runs, nil, window)
		assert.Error(t, err)
	})
}

func TestStageError(t *testing.T) {
	ok := []pipeline.StageResult{{EntityID: "1"}, {EntityID: "2"}}
	assert.NoError(t, stageError("clips", ok))

	failed := append(ok, pipeline.StageResult{EntityID: "3", Err: errors.New(errors.KindUnknown, "test", "boom")})
	err := stageError("clips", failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
}
