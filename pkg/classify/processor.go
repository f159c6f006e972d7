package classify

import (
	"clipharvest/pkg/badges"
	"clipharvest/pkg/emoji"
	"clipharvest/pkg/models"
)

// Processor runs every per-message derivation: category, badge profile and
// emoji normalization
type Processor struct {
	classifier *Classifier
	badges     *badges.Annotator
	emoji      *emoji.Normalizer
}

// NewProcessor wires the three derivations together
func NewProcessor(c *Classifier, b *badges.Annotator, e *emoji.Normalizer) *Processor {
	return &Processor{classifier: c, badges: b, emoji: e}
}

// Process derives a ClassifiedMessage from a chat message
func (p *Processor) Process(m models.ChatMessage) models.ClassifiedMessage {
	clean, count := p.emoji.Normalize(m.RawText)
	return models.ClassifiedMessage{
		ChatMessage:    m,
		Classification: p.classifier.Classify(m.RawText),
		Badges:         p.badges.Annotate(m.BadgeLabels),
		EmojiCount:     count,
		NormalizedText: clean,
	}
}

// ProcessAll is Process over a slice
func (p *Processor) ProcessAll(msgs []models.ChatMessage) []models.ClassifiedMessage {
	out := make([]models.ClassifiedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = p.Process(m)
	}
	return out
}
