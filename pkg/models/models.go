package models

import "time"

// ClipRecord is one clip from the Helix listing
type ClipRecord struct {
	ID              string    `json:"id"`
	BroadcasterID   string    `json:"broadcaster_id"`
	BroadcasterName string    `json:"broadcaster_name"`
	CreatorName     string    `json:"creator_name"`
	URL             string    `json:"url"`
	VideoID         string    `json:"video_id,omitempty"`
	Title           string    `json:"title"`
	ViewCount       int       `json:"view_count"`
	Duration        float64   `json:"duration"`
	CreatedAt       time.Time `json:"created_at"`
}

// ChatMessage is one message from a clip's chat replay
type ChatMessage struct {
	ClipID            string
	AuthorID          string
	RawText           string
	MessageID         string
	TimeText          string
	TimeOffsetSeconds float64
	BadgeLabels       []string
}

// Category is the monetization/engagement class of a message
type Category string

const (
	CategoryPlain         Category = "plain"
	CategoryCheer         Category = "cheer"
	CategorySelfSubscribe Category = "self_subscribe"
	CategoryGiftSubscribe Category = "gift_subscribe"
)

// Classification holds the category and the values extracted for it.
// Zero numeric values mean the field does not apply.
type Classification struct {
	Category        Category
	TierLevel       int
	SubscribedMonth int
	GiftCount       int
	GiftChannel     string
	CheerAmount     int
}

// BadgeProfile is derived from a message author's badge labels. Flags are
// independent of each other.
type BadgeProfile struct {
	IsVIP                bool
	PremiumKind          string
	HasSubscriptionBadge bool
	SubscriptionMonth    int
	HasGifterBadge       bool
	GifterVersion        int
	GiftLeaderRank       int
	HasBitsBadge         bool
	BitsBadgeCheer       int
	BitsLeaderRank       int
}

// ClassifiedMessage is a chat message with everything derived from it
type ClassifiedMessage struct {
	ChatMessage
	Classification
	Badges         BadgeProfile
	EmojiCount     int
	NormalizedText string
}

// UserAggregate summarizes one entity's classified messages
type UserAggregate struct {
	EntityID          string
	MessageCount      int
	DistinctClipCount int
	SubscribedCount   int
	GiftingCount      int
	GiftingAmount     int
	CheerCount        int
	CheerAmount       int
}

// ClipSummary summarizes one entity's clip listing
type ClipSummary struct {
	EntityID            string
	ClipCount           int
	ClipsWithVideoID    int
	DurationWithVideoID float64
}

// Streamer is a resolved broadcaster
type Streamer struct {
	ID              string
	Login           string
	DisplayName     string
	BroadcasterType string
	Description     string
	CreatedAt       time.Time
	FollowerCount   int
}

// Video is a VOD referenced by one or more clips
type Video struct {
	ID        string
	UserID    string
	Title     string
	Duration  string
	ViewCount int
	CreatedAt time.Time
	URL       string
}
