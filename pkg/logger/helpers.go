package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogStage logs the end of a pipeline stage for one entity
func LogStage(l Logger, stage, entityID string, counts map[string]interface{}, elapsed time.Duration) {
	fields := map[string]interface{}{
		"stage":     stage,
		"entity_id": entityID,
		"elapsed":   elapsed,
	}
	for k, v := range counts {
		fields[k] = v
	}
	Or(l).InfoWithFields("stage completed", fields)
}

// LogOutcome logs one per-item outcome at a level matching its state
func LogOutcome(l Logger, kind, entityID, itemID, state string, err error) {
	entry := Or(l).WithFields(map[string]interface{}{
		"kind":      kind,
		"entity_id": entityID,
		"item_id":   itemID,
		"state":     state,
	})

	switch {
	case err != nil && state == "failed":
		entry.WithError(err).Warn("item failed")
	case state == "skipped":
		entry.Debug("item skipped")
	default:
		entry.Debug("item completed")
	}
}

// LogRateLimit logs a throttled Helix response
func LogRateLimit(l Logger, endpoint string, retryAfter time.Duration) {
	Or(l).WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("rate limit reached, backing off")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(string)                                        {}
func (n *nopLogger) Info(string)                                         {}
func (n *nopLogger) Warn(string)                                         {}
func (n *nopLogger) Error(string)                                        {}
func (n *nopLogger) Fatal(string)                                        {}
func (n *nopLogger) WithField(string, interface{}) Logger                { return n }
func (n *nopLogger) WithFields(map[string]interface{}) Logger            { return n }
func (n *nopLogger) WithError(error) Logger                              { return n }
func (n *nopLogger) WithContext(context.Context) Logger                  { return n }
func (n *nopLogger) DebugWithFields(string, map[string]interface{})      {}
func (n *nopLogger) InfoWithFields(string, map[string]interface{})       {}
func (n *nopLogger) WarnWithFields(string, map[string]interface{})       {}
func (n *nopLogger) ErrorWithFields(string, map[string]interface{})      {}
func (n *nopLogger) FatalWithFields(string, map[string]interface{})      {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                         { l := zerolog.Nop(); return &l }
