package twitch

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// BaseURL is the Helix API root
	BaseURL = "https://api.twitch.tv/helix"

	ClipsEndpoint     = "/clips"
	UsersEndpoint     = "/users"
	VideosEndpoint    = "/videos"
	FollowersEndpoint = "/channels/followers"

	// MaxPageSize is the largest `first` Helix accepts
	MaxPageSize = 100

	// MaxBatch is the most ids or logins one lookup request may carry
	MaxBatch = 100
)

// ClipsQuery is one page request of the clip listing
type ClipsQuery struct {
	BroadcasterID string
	StartedAt     time.Time
	EndedAt       time.Time
	First         int
	After         string
}

// ClipsURL builds the clip listing URL for q
func ClipsURL(base string, q ClipsQuery) string {
	first := q.First
	if first <= 0 || first > MaxPageSize {
		first = MaxPageSize
	}

	params := url.Values{}
	params.Set("broadcaster_id", q.BroadcasterID)
	if !q.StartedAt.IsZero() {
		params.Set("started_at", q.StartedAt.UTC().Format(time.RFC3339))
	}
	if !q.EndedAt.IsZero() {
		params.Set("ended_at", q.EndedAt.UTC().Format(time.RFC3339))
	}
	params.Set("first", strconv.Itoa(first))
	if q.After != "" {
		params.Set("after", q.After)
	}
	return join(base, ClipsEndpoint, params)
}

// UsersURL builds a users lookup for up to MaxBatch logins
func UsersURL(base string, logins []string) string {
	params := url.Values{}
	for _, l := range logins {
		params.Add("login", l)
	}
	return join(base, UsersEndpoint, params)
}

// VideosURL builds a videos lookup for up to MaxBatch ids
func VideosURL(base string, ids []string) string {
	params := url.Values{}
	for _, id := range ids {
		params.Add("id", id)
	}
	return join(base, VideosEndpoint, params)
}

// FollowersURL builds the follower total lookup for a broadcaster
func FollowersURL(base, broadcasterID string) string {
	params := url.Values{}
	params.Set("broadcaster_id", broadcasterID)
	params.Set("first", "1")
	return join(base, FollowersEndpoint, params)
}

// ClipURL is the public page of a clip
func ClipURL(clipID string) string {
	return "https://clips.twitch.tv/" + clipID
}

func join(base, endpoint string, params url.Values) string {
	return strings.TrimRight(base, "/") + endpoint + "?" + params.Encode()
}

// NormalizeLogin lowercases a login and strips a leading @ and surrounding
// whitespace or slashes
func NormalizeLogin(login string) string {
	login = strings.TrimSpace(login)
	login = strings.TrimPrefix(login, "@")
	login = strings.Trim(login, "/ ")
	return strings.ToLower(login)
}

// IsValidLogin checks Twitch login rules: 1-25 characters of letters,
// digits and underscores
func IsValidLogin(login string) bool {
	if login == "" || len(login) > 25 {
		return false
	}
	for _, c := range login {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

func batches(items []string, size int) [][]string {
	var out [][]string
	for len(items) > 0 {
		n := size
		if len(items) < n {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
