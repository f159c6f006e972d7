// Package report folds classified messages into per-entity statistics
package report

import (
	"sort"

	"clipharvest/pkg/models"
)

// Accumulator folds messages for many entities incrementally. It is not safe
// for concurrent use; callers partition by entity or serialize Add.
type Accumulator struct {
	totals map[string]*models.UserAggregate
	clips  map[string]map[string]struct{}
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		totals: make(map[string]*models.UserAggregate),
		clips:  make(map[string]map[string]struct{}),
	}
}

func (a *Accumulator) entry(entityID string) *models.UserAggregate {
	agg, ok := a.totals[entityID]
	if !ok {
		agg = &models.UserAggregate{EntityID: entityID}
		a.totals[entityID] = agg
		a.clips[entityID] = make(map[string]struct{})
	}
	return agg
}

// Touch registers an entity with no messages so it still appears in Results
func (a *Accumulator) Touch(entityID string) {
	a.entry(entityID)
}

// Add folds messages into entityID's totals
func (a *Accumulator) Add(entityID string, msgs ...models.ClassifiedMessage) {
	agg := a.entry(entityID)
	clips := a.clips[entityID]

	for _, m := range msgs {
		agg.MessageCount++
		clips[m.ClipID] = struct{}{}

		switch m.Category {
		case models.CategorySelfSubscribe:
			agg.SubscribedCount++
		case models.CategoryGiftSubscribe:
			agg.GiftingCount++
			agg.GiftingAmount += m.GiftCount
		case models.CategoryCheer:
			agg.CheerCount++
			agg.CheerAmount += m.CheerAmount
		}
	}
	agg.DistinctClipCount = len(clips)
}

// Results returns one aggregate per entity sorted by entity id
func (a *Accumulator) Results() []models.UserAggregate {
	out := make([]models.UserAggregate, 0, len(a.totals))
	for _, agg := range a.totals {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Aggregate folds messages grouped by entity id
func Aggregate(groups map[string][]models.ClassifiedMessage) []models.UserAggregate {
	acc := NewAccumulator()
	for entityID, msgs := range groups {
		acc.Add(entityID, msgs...)
	}
	return acc.Results()
}

// SummarizeClips counts an entity's clips and the ones tied to a VOD
func SummarizeClips(entityID string, clips []models.ClipRecord) models.ClipSummary {
	s := models.ClipSummary{EntityID: entityID, ClipCount: len(clips)}
	for _, c := range clips {
		if c.VideoID == "" {
			continue
		}
		s.ClipsWithVideoID++
		s.DurationWithVideoID += c.Duration
	}
	return s
}
