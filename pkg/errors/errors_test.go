package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := New(KindNoReplay, "chatreplay.Fetch", "replay disabled")
	wrapped := fmt.Errorf("clip abc: %w", base)

	assert.Equal(t, KindNoReplay, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNoReplay))
	assert.False(t, Is(wrapped, KindDownloadFailure))
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindFatalSetup, "op", nil))
}

func TestErrorString(t *testing.T) {
	err := Wrap(KindTransientNetwork, "twitch.GetJSON", stderrors.New("connection reset"))
	assert.Equal(t, "twitch.GetJSON: transient_network: connection reset", err.Error())

	coded := FromStatus("twitch.GetJSON", http.StatusServiceUnavailable, "")
	assert.Contains(t, coded.Error(), "code 503")
	assert.Contains(t, coded.Error(), "Service Unavailable")
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindInvalidInput},
		{http.StatusBadGateway, KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, FromStatus("op", tt.code, "").Kind)
		})
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryable(KindTransientNetwork))
	assert.True(t, IsRetryable(KindServer))
	assert.False(t, IsRetryable(KindAuth))
	assert.False(t, IsRetryable(KindNoReplay))

	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(599))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(400))
}
