package twitch

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipsURL(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

	u, err := url.Parse(ClipsURL("https://api.twitch.tv/helix/", ClipsQuery{BroadcasterID: "42", StartedAt: start, EndedAt: end, First: 500}))
	require.NoError(t, err)

	assert.Equal(t, "/helix/clips", u.Path)
	q := u.Query()
	assert.Equal(t, "42", q.Get("broadcaster_id"))
	assert.Equal(t, "2025-03-01T00:00:00Z", q.Get("started_at"))
	assert.Equal(t, "2025-05-30T00:00:00Z", q.Get("ended_at"))
	assert.Equal(t, "100", q.Get("first"), "page size is capped")
	assert.False(t, q.Has("after"))
}

func TestLookupURLs(t *testing.T) {
	u, err := url.Parse(UsersURL(BaseURL, []string{"a", "b"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, u.Query()["login"])

	u, err = url.Parse(VideosURL(BaseURL, []string{"1", "2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, u.Query()["id"])

	u, err = url.Parse(FollowersURL(BaseURL, "9"))
	require.NoError(t, err)
	assert.Equal(t, "/helix/channels/followers", u.Path)
	assert.Equal(t, "9", u.Query().Get("broadcaster_id"))
}

func TestNormalizeLogin(t *testing.T) {
	tests := map[string]string{
		"@Streamer":   "streamer",
		" some_one/ ": "some_one",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLogin(in), in)
	}
}

func TestIsValidLogin(t *testing.T) {
	assert.True(t, IsValidLogin("valid_login_1"))
	assert.False(t, IsValidLogin(""))
	assert.False(t, IsValidLogin("has.dot"))
	assert.False(t, IsValidLogin("this_login_is_way_too_long_for_twitch"))
}

func TestBatches(t *testing.T) {
	assert.Nil(t, batches(nil, 100))
	got := batches([]string{"a", "b", "c"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, got)
}
