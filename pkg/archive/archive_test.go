package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/models"
	"clipharvest/pkg/report"
)

func msg(id, clip string, c models.Classification) models.ClassifiedMessage {
	return models.ClassifiedMessage{
		ChatMessage: models.ChatMessage{
			ClipID:    clip,
			AuthorID:  "u1",
			RawText:   "text " + id,
			MessageID: id,
		},
		Classification: c,
		NormalizedText: "text " + id,
	}
}

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestWriteMessagesKeepsExisting(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	first := msg("m1", "c1", models.Classification{Category: models.CategoryCheer, CheerAmount: 100})
	n, err := a.WriteMessages(ctx, "42", []models.ClassifiedMessage{first})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dup := msg("m1", "c1", models.Classification{Category: models.CategoryCheer, CheerAmount: 999})
	n, err = a.WriteMessages(ctx, "42", []models.ClassifiedMessage{dup, msg("m2", "c1", models.Classification{Category: models.CategoryPlain})})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	aggs, err := a.Aggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 100, aggs[0].CheerAmount, "existing row wins")
	assert.Equal(t, 2, aggs[0].MessageCount)
}

func TestWriteMessagesEmpty(t *testing.T) {
	a := openTemp(t)
	n, err := a.WriteMessages(context.Background(), "42", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteMessagesSpansBatches(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	msgs := make([]models.ClassifiedMessage, batchSize*2+7)
	for i := range msgs {
		msgs[i] = msg(fmt.Sprintf("m%d", i), fmt.Sprintf("c%d", i%3), models.Classification{Category: models.CategoryPlain})
	}
	n, err := a.WriteMessages(ctx, "42", msgs)
	require.NoError(t, err)
	assert.Equal(t, len(msgs), n)

	count, err := a.Count(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, len(msgs), count)

	none, err := a.Count(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestAggregatesMatchReport(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	groups := map[string][]models.ClassifiedMessage{
		"100": {
			msg("a1", "c1", models.Classification{Category: models.CategoryCheer, CheerAmount: 50}),
			msg("a2", "c1", models.Classification{Category: models.CategorySelfSubscribe, TierLevel: 1, SubscribedMonth: 3}),
			msg("a3", "c2", models.Classification{Category: models.CategoryGiftSubscribe, TierLevel: 1, GiftCount: 5}),
			msg("a4", "c3", models.Classification{Category: models.CategoryPlain}),
		},
		"200": {
			msg("b1", "d1", models.Classification{Category: models.CategoryGiftSubscribe, GiftCount: 1}),
			msg("b2", "d1", models.Classification{Category: models.CategoryGiftSubscribe, GiftCount: 2}),
		},
	}

	var wg sync.WaitGroup
	for entity, msgs := range groups {
		wg.Add(1)
		go func(entity string, msgs []models.ClassifiedMessage) {
			defer wg.Done()
			_, err := a.WriteMessages(ctx, entity, msgs)
			assert.NoError(t, err)
		}(entity, msgs)
	}
	wg.Wait()

	got, err := a.Aggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Aggregate(groups), got)
}

func TestReopenPreservesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	a, err := Open(path)
	require.NoError(t, err)
	_, err = a.WriteMessages(ctx, "42", []models.ClassifiedMessage{msg("m1", "c1", models.Classification{Category: models.CategoryPlain})})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
