package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/models"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.PageFetched(3)
	m.WalkTruncated()
	m.Outcome("chat", "failed")
	m.MessageClassified(models.CategoryCheer)
	m.MalformedRecords("transcript", 2)
	m.ObserveStage("clips", time.Second)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.PageFetched(2)
	m.PageFetched(1)
	m.WalkTruncated()
	m.Outcome("chat", "skipped")
	m.Outcome("chat", "skipped")
	m.Outcome("media", "failed")
	m.MessageClassified(models.CategoryCheer)
	m.MalformedRecords("transcript", 4)
	m.MalformedRecords("transcript", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pagesFetched))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.clipsFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walksTruncated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("chat", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("media", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("cheer")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.malformed.WithLabelValues("transcript")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.PageFetched(5)
	m.ObserveStage("chats", 250*time.Millisecond)

	path := filepath.Join(t.TempDir(), "out", "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "clipharvest_pages_fetched_total 1")
	assert.Contains(t, string(data), "clipharvest_clips_fetched_total 5")
	assert.Contains(t, string(data), "clipharvest_stage_duration_seconds_count{stage=\"chats\"} 1")
	assert.Contains(t, string(data), "clipharvest_last_run_timestamp_seconds")
}
