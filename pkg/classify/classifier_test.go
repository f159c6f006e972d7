package classify

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/badges"
	"clipharvest/pkg/config"
	"clipharvest/pkg/emoji"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
)

func newTestClassifier(t *testing.T) (*Classifier, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	c, err := New(config.DefaultConfig().Classify, log)
	require.NoError(t, err)
	return c, log
}

func TestClassifyScenarios(t *testing.T) {
	c, _ := newTestClassifier(t)

	tests := []struct {
		name string
		text string
		want models.Classification
	}{
		{
			name: "cheer",
			text: "Cheer100 great stream",
			want: models.Classification{Category: models.CategoryCheer, CheerAmount: 100},
		},
		{
			name: "cheer alone",
			text: "Cheer5000",
			want: models.Classification{Category: models.CategoryCheer, CheerAmount: 5000},
		},
		{
			name: "self subscribe",
			text: "UserX subscribed at Tier 2. They've subscribed for 5 months!",
			want: models.Classification{Category: models.CategorySelfSubscribe, TierLevel: 2, SubscribedMonth: 5},
		},
		{
			name: "gift subscribe",
			text: "UserY is gifting 3 Tier 1 Subs to Channel's community!",
			want: models.Classification{Category: models.CategoryGiftSubscribe, TierLevel: 1, GiftCount: 3, GiftChannel: "Channel"},
		},
		{
			name: "gift subscribe to a non-ascii channel",
			text: "x is gifting 5 Tier 1 Subs to 阿神's community!",
			want: models.Classification{Category: models.CategoryGiftSubscribe, TierLevel: 1, GiftCount: 5, GiftChannel: "阿神"},
		},
		{
			name: "plain",
			text: "what a play",
			want: models.Classification{Category: models.CategoryPlain},
		},
		{
			name: "cheer must lead the message",
			text: "nice Cheer100",
			want: models.Classification{Category: models.CategoryPlain},
		},
		{
			name: "cheer token must end at whitespace",
			text: "Cheer100x",
			want: models.Classification{Category: models.CategoryPlain},
		},
		{
			name: "empty",
			text: "",
			want: models.Classification{Category: models.CategoryPlain},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestCheerTakesPrecedence(t *testing.T) {
	c, _ := newTestClassifier(t)

	texts := []string{
		"Cheer250 subscribed at Tier 3. They've subscribed for 12 months!",
		"Cheer1 is gifting 5 Tier 1 Subs to Someone's community",
		"Cheer42 subscribed at Tier 1 for 2 months and gifting 1 Tier 1 Subs to X's community",
	}
	amounts := []int{250, 1, 42}

	for i, text := range texts {
		got := c.Classify(text)
		assert.Equal(t, models.CategoryCheer, got.Category, text)
		assert.Equal(t, amounts[i], got.CheerAmount, text)
	}
}

func TestSubscribeTakesPrecedenceOverGift(t *testing.T) {
	c, _ := newTestClassifier(t)

	got := c.Classify("A subscribed at Tier 1 for 3 months while gifting 2 Tier 1 Subs to B's community")
	assert.Equal(t, models.CategorySelfSubscribe, got.Category)
	assert.Equal(t, 3, got.SubscribedMonth)
}

func TestNonNumericMonthFallsBackToPlain(t *testing.T) {
	c, log := newTestClassifier(t)

	got := c.Classify("UserX subscribed at Tier 1. This is their first month!")
	assert.Equal(t, models.Classification{Category: models.CategoryPlain}, got)
	assert.True(t, log.HasMessage("extraction failed"))
}

func TestClassificationIsTotal(t *testing.T) {
	c, _ := newTestClassifier(t)
	valid := map[models.Category]bool{
		models.CategoryPlain:         true,
		models.CategoryCheer:         true,
		models.CategorySelfSubscribe: true,
		models.CategoryGiftSubscribe: true,
	}

	inputs := []string{
		"", " ", "Cheer", "Cheer0", "subscribed at Tier", "gifting 1 Tier x Subs to y's community",
		"subscribed at Tier 9 month", "🔥🔥", "ｃｈｅｅｒ", "\x00\xff", "Cheer１００ nice",
	}
	for _, in := range inputs {
		assert.True(t, valid[c.Classify(in).Category], "%q", in)
	}
}

func TestNormalizationAppliesBeforeMatching(t *testing.T) {
	c, _ := newTestClassifier(t)

	// fullwidth digits fold to ASCII under NFKC
	got := c.Classify("Cheer１００ nice")
	assert.Equal(t, models.Classification{Category: models.CategoryCheer, CheerAmount: 100}, got)

	cfg := config.DefaultConfig().Classify
	cfg.NormalizeUnicode = false
	raw, err := New(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPlain, raw.Classify("Cheer１００ nice").Category)
}

func TestNewRejectsBadPattern(t *testing.T) {
	cfg := config.DefaultConfig().Classify
	cfg.GiftingPattern = "gifting ("
	_, err := New(cfg, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestRulesInIsolation(t *testing.T) {
	c, _ := newTestClassifier(t)
	rules := c.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, []string{"cheer", "self_subscribe", "gift_subscribe"}, []string{rules[0].Name, rules[1].Name, rules[2].Name})

	_, ok, err := rules[2].Apply("is gifting 10 Tier 3 Subs to Zed's community")
	assert.True(t, ok)
	assert.NoError(t, err)

	_, ok, _ = rules[0].Apply("no cheer here")
	assert.False(t, ok)
}

func TestPatternWithoutGroupsFallsBackToPlain(t *testing.T) {
	rules := []Rule{{
		Name:    "cheer",
		Pattern: regexp.MustCompile(`^Cheer`),
		Extract: extractCheer,
	}}
	c := NewWithRules(rules, false, logger.NewNopLogger())
	assert.Equal(t, models.CategoryPlain, c.Classify("Cheer100").Category)
}

func TestProcessor(t *testing.T) {
	c, _ := newTestClassifier(t)
	p := NewProcessor(c, badges.New(logger.NewNopLogger()), emoji.New(map[string]string{"🔥": "fire"}))

	out := p.ProcessAll([]models.ChatMessage{{
		ClipID:      "A",
		AuthorID:    "1",
		RawText:     "Cheer100 🔥🔥",
		MessageID:   "m1",
		BadgeLabels: []string{"VIP", "3-Month Subscriber"},
	}})

	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, models.CategoryCheer, got.Category)
	assert.Equal(t, 100, got.CheerAmount)
	assert.Equal(t, 2, got.EmojiCount)
	assert.Equal(t, "Cheer100 firefire", got.NormalizedText)
	assert.True(t, got.Badges.IsVIP)
	assert.Equal(t, 3, got.Badges.SubscriptionMonth)
	assert.Equal(t, "m1", got.MessageID)
}
