package badges

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
)

func TestAnnotateVIPAndSubscriber(t *testing.T) {
	p := New(logger.NewNopLogger()).Annotate([]string{"VIP", "3-Month Subscriber"})

	assert.True(t, p.IsVIP)
	assert.True(t, p.HasSubscriptionBadge)
	assert.Equal(t, 3, p.SubscriptionMonth)
	assert.False(t, p.HasBitsBadge)
}

func TestAnnotateRules(t *testing.T) {
	tests := []struct {
		label string
		want  models.BadgeProfile
	}{
		{"Prime Gaming", models.BadgeProfile{PremiumKind: "Prime Gaming"}},
		{"Turbo", models.BadgeProfile{PremiumKind: "Turbo"}},
		{"Subscriber", models.BadgeProfile{HasSubscriptionBadge: true, SubscriptionMonth: 1}},
		{"2-Year Subscriber", models.BadgeProfile{HasSubscriptionBadge: true, SubscriptionMonth: 24}},
		{"Gifter Leader 3", models.BadgeProfile{GiftLeaderRank: 3}},
		{"10 Gift Subs", models.BadgeProfile{HasGifterBadge: true, GifterVersion: 10}},
		{"cheer 5000", models.BadgeProfile{HasBitsBadge: true, BitsBadgeCheer: 5000}},
		{"Bits Leader 2", models.BadgeProfile{BitsLeaderRank: 2}},
		{"Moderator", models.BadgeProfile{}},
	}

	a := New(logger.NewNopLogger())
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Annotate([]string{tt.label}))
		})
	}
}

func TestAnnotateMalformedTokenLeavesOnlyThatValueUnset(t *testing.T) {
	log := logger.NewTestLogger()
	p := New(log).Annotate([]string{"cheer lots", "VIP", "Gifter Leader x"})

	assert.True(t, p.HasBitsBadge)
	assert.Zero(t, p.BitsBadgeCheer)
	assert.Zero(t, p.GiftLeaderRank)
	assert.True(t, p.IsVIP)
	assert.True(t, log.HasMessage("malformed badge value"))
}

func TestAnnotateIsCaseSensitiveForCheer(t *testing.T) {
	p := New(logger.NewNopLogger()).Annotate([]string{"Cheer 100"})
	assert.False(t, p.HasBitsBadge)
}

func TestAnnotateLaterLabelsOverride(t *testing.T) {
	p := New(logger.NewNopLogger()).Annotate([]string{"cheer 100", "cheer 1000"})
	assert.Equal(t, 1000, p.BitsBadgeCheer)
}

func TestAnnotateMergeAssociativity(t *testing.T) {
	labels := []string{
		"VIP", "3-Month Subscriber", "Prime Gaming", "Gifter Leader 2",
		"5 Gift Subs", "cheer 100", "Bits Leader 1", "cheer oops", "Turbo",
	}
	a := New(logger.NewNopLogger())

	for i := range labels {
		for j := range labels {
			left, right := labels[i], labels[j]
			whole := a.Annotate([]string{left, right})
			merged := Merge(a.Annotate([]string{left}), a.Annotate([]string{right}))
			assert.Equal(t, whole, merged, "%q + %q", left, right)
		}
	}

	all := a.Annotate(labels)
	folded := models.BadgeProfile{}
	for _, l := range labels {
		folded = Merge(folded, a.Annotate([]string{l}))
	}
	assert.Equal(t, all, folded)
}
