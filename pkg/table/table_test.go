package table

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clips(ids ...string) *Table {
	t := New("clip_id", "title")
	for _, id := range ids {
		t.Append(map[string]string{"clip_id": id, "title": "t-" + id})
	}
	return t
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	existing := New("clip_id", "title")
	existing.Append(map[string]string{"clip_id": "A", "title": "old"})

	batch := New("clip_id", "title")
	batch.Append(map[string]string{"clip_id": "A", "title": "new"})
	batch.Append(map[string]string{"clip_id": "B", "title": "b"})

	merged, err := Merge(existing, batch, "clip_id")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, merged.Column("clip_id"))
	assert.Equal(t, "old", merged.Get(0, "title"))
	assert.Equal(t, 1, existing.Len(), "inputs are not modified")
}

func TestMergeIdentity(t *testing.T) {
	existing := clips("A", "B", "C")

	merged, err := Merge(existing, New("clip_id", "title"), "clip_id")
	require.NoError(t, err)
	assert.Equal(t, existing.Records(), merged.Records())

	again, err := Merge(merged, merged, "clip_id")
	require.NoError(t, err)
	assert.Equal(t, merged.Records(), again.Records())
}

func TestMergeNoRowLoss(t *testing.T) {
	existing := clips("A", "B")
	batch := clips("B", "C", "D")

	merged, err := Merge(existing, batch, "clip_id")
	require.NoError(t, err)

	keys, err := merged.Keys("clip_id")
	require.NoError(t, err)
	for _, id := range []string{"A", "B", "C", "D"} {
		assert.True(t, keys[id], id)
	}
	assert.Equal(t, 4, merged.Len())
}

func TestMergeDedupesWithinExisting(t *testing.T) {
	existing := clips("A", "A", "B")

	merged, err := Merge(existing, nil, "clip_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, merged.Column("clip_id"))
}

func TestMergeCompositeKey(t *testing.T) {
	existing := New("entity_id", "item_id", "status")
	existing.Append(map[string]string{"entity_id": "1", "item_id": "A", "status": "failed"})

	batch := New("entity_id", "item_id", "status")
	batch.Append(map[string]string{"entity_id": "2", "item_id": "A", "status": "failed"})
	batch.Append(map[string]string{"entity_id": "1", "item_id": "A", "status": "retried"})

	merged, err := Merge(existing, batch, "entity_id", "item_id")
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, "failed", merged.Get(0, "status"))
}

func TestMergeColumnEnrichment(t *testing.T) {
	existing := New("clip_id", "title")
	existing.Append(map[string]string{"clip_id": "A", "title": "a"})

	batch := New("clip_id", "video_id")
	batch.Append(map[string]string{"clip_id": "B", "video_id": "v1"})

	merged, err := Merge(existing, batch, "clip_id")
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_id", "title", "video_id"}, merged.Columns())
	assert.Equal(t, "", merged.Get(0, "video_id"))
	assert.Equal(t, "v1", merged.Get(1, "video_id"))
	assert.Equal(t, "", merged.Get(1, "title"))
}

func TestMergeRejectsMissingKey(t *testing.T) {
	batch := New("title")
	batch.Append(map[string]string{"title": "x"})

	_, err := Merge(clips("A"), batch, "clip_id")
	assert.Error(t, err)

	_, err = Merge(clips("A"), clips("B"))
	assert.Error(t, err)
}

func TestReadOrCreateAbsentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clips", "1.csv")

	tbl, err := ReadOrCreate(path, "clip_id", "title")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, []string{"clip_id", "title"}, tbl.Columns())
}

func TestSaveAndRead(t *testing.T) {
	for _, name := range []string{"1.csv", "1.csv.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			src := clips("A", "B")
			src.Append(map[string]string{"clip_id": "C", "title": "comma, \"quoted\"\nnewline"})

			require.NoError(t, src.Save(path))

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, src.Columns(), got.Columns())
			assert.Equal(t, src.Records(), got.Records())

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files left behind")
		})
	}
}

func TestCompressedFileIsNotPlainCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.csv.zst")
	require.NoError(t, clips("A").Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(raw), "clip_id"))
}

func TestDecodeSkipsBOMAndPadsShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	content := "\xEF\xBB\xBFclip_id,title,video_id\nA,a\nB,b,v,extra\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tbl, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"clip_id", "title", "video_id"}, tbl.Columns())
	assert.Equal(t, "", tbl.Get(0, "video_id"))
	assert.Equal(t, "v", tbl.Get(1, "video_id"))
}

func TestStoreAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clips", "1.csv")
	store := NewStore(path, []string{"clip_id"}, "clip_id", "title")

	stats, err := store.Append(clips("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Existing: 0, Incoming: 2, Added: 2, Total: 2}, stats)

	stats, err = store.Append(clips("B", "C"))
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Existing: 2, Incoming: 2, Added: 1, Total: 3}, stats)

	tbl, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tbl.Column("clip_id"))
}

func TestStoreAppendEmptyBatchWritesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.csv")
	store := NewStore(path, []string{"item_id"}, "entity_id", "item_id", "status")

	_, err := store.AppendRecords(nil)
	require.NoError(t, err)

	tbl, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"entity_id", "item_id", "status"}, tbl.Columns())
}

func TestStoreConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.csv.zst")
	store := NewStore(path, []string{"clip_id"}, "clip_id", "title")

	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.Append(clips(id))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	tbl, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, tbl.Len())
}
