package pipeline

import (
	"strconv"
	"strings"
	"time"

	"clipharvest/pkg/models"
	"clipharvest/pkg/table"
)

// Table schemas. Key columns come first.
var (
	clipColumns = []string{"clip_id", "broadcaster_id", "broadcaster_name", "creator_name",
		"url", "video_id", "title", "view_count", "duration", "created_at"}
	userColumns = []string{"user_id", "login", "display_name", "broadcaster_type",
		"description", "created_at", "follower_count"}
	videoColumns      = []string{"video_id", "user_id", "title", "duration", "view_count", "created_at", "url"}
	noReplayColumns   = []string{"clip_id", "user_id", "recorded_at"}
	missingColumns    = []string{"clip_id", "user_id", "checked_at"}
	noClipsColumns    = []string{"user_id", "window_start", "window_end", "recorded_at"}
	malformedColumns  = []string{"datetime", "user_id", "file_path", "message"}
	emptyColumns      = []string{"datetime", "user_id", "file_path"}
	classifiedColumns = []string{"message_id", "clip_id", "author_id", "time_text", "time_in_seconds",
		"message", "raw_message", "category", "tier_level", "subscribed_month", "gifting_count",
		"gifting_channel", "cheer", "emoji_count", "badges", "is_vip", "premium_kind",
		"has_subscription_badge", "subscription_month", "has_gifter_badge", "gifter_version",
		"gift_leader_rank", "has_bits_badge", "bits_badge_cheer", "bits_leader_rank"}
	reportColumns = []string{"user_id", "message_count", "distinct_clip_count", "subscribed_count",
		"gifting_count", "gifting_amount", "cheer_count", "cheer_amount"}
	clipReportColumns = []string{"user_id", "clip_count", "clips_with_video_id", "duration_with_video_id"}
)

const badgeSeparator = "|"

func clipRow(c models.ClipRecord) map[string]string {
	return map[string]string{
		"clip_id":          c.ID,
		"broadcaster_id":   c.BroadcasterID,
		"broadcaster_name": c.BroadcasterName,
		"creator_name":     c.CreatorName,
		"url":              c.URL,
		"video_id":         c.VideoID,
		"title":            c.Title,
		"view_count":       strconv.Itoa(c.ViewCount),
		"duration":         strconv.FormatFloat(c.Duration, 'f', -1, 64),
		"created_at":       formatTime(c.CreatedAt),
	}
}

// clipFromRow is lenient: unparsable numbers read as zero, matching how
// missing cells are treated in reports
func clipFromRow(r map[string]string) models.ClipRecord {
	return models.ClipRecord{
		ID:              r["clip_id"],
		BroadcasterID:   r["broadcaster_id"],
		BroadcasterName: r["broadcaster_name"],
		CreatorName:     r["creator_name"],
		URL:             r["url"],
		VideoID:         r["video_id"],
		Title:           r["title"],
		ViewCount:       atoi(r["view_count"]),
		Duration:        atof(r["duration"]),
		CreatedAt:       parseTime(r["created_at"]),
	}
}

func clipsFromTable(t *table.Table) []models.ClipRecord {
	out := make([]models.ClipRecord, 0, t.Len())
	for _, r := range t.Records() {
		out = append(out, clipFromRow(r))
	}
	return out
}

func userRow(s models.Streamer) map[string]string {
	return map[string]string{
		"user_id":          s.ID,
		"login":            s.Login,
		"display_name":     s.DisplayName,
		"broadcaster_type": s.BroadcasterType,
		"description":      s.Description,
		"created_at":       formatTime(s.CreatedAt),
		"follower_count":   strconv.Itoa(s.FollowerCount),
	}
}

func videoRow(v models.Video) map[string]string {
	return map[string]string{
		"video_id":   v.ID,
		"user_id":    v.UserID,
		"title":      v.Title,
		"duration":   v.Duration,
		"view_count": strconv.Itoa(v.ViewCount),
		"created_at": formatTime(v.CreatedAt),
		"url":        v.URL,
	}
}

func classifiedRow(m models.ClassifiedMessage) map[string]string {
	b := m.Badges
	return map[string]string{
		"message_id":             m.MessageID,
		"clip_id":                m.ClipID,
		"author_id":              m.AuthorID,
		"time_text":              m.TimeText,
		"time_in_seconds":        strconv.FormatFloat(m.TimeOffsetSeconds, 'f', -1, 64),
		"message":                m.NormalizedText,
		"raw_message":            m.RawText,
		"category":               string(m.Category),
		"tier_level":             optInt(m.TierLevel),
		"subscribed_month":       optInt(m.SubscribedMonth),
		"gifting_count":          optInt(m.GiftCount),
		"gifting_channel":        m.GiftChannel,
		"cheer":                  optInt(m.CheerAmount),
		"emoji_count":            strconv.Itoa(m.EmojiCount),
		"badges":                 strings.Join(m.BadgeLabels, badgeSeparator),
		"is_vip":                 strconv.FormatBool(b.IsVIP),
		"premium_kind":           b.PremiumKind,
		"has_subscription_badge": strconv.FormatBool(b.HasSubscriptionBadge),
		"subscription_month":     optInt(b.SubscriptionMonth),
		"has_gifter_badge":       strconv.FormatBool(b.HasGifterBadge),
		"gifter_version":         optInt(b.GifterVersion),
		"gift_leader_rank":       optInt(b.GiftLeaderRank),
		"has_bits_badge":         strconv.FormatBool(b.HasBitsBadge),
		"bits_badge_cheer":       optInt(b.BitsBadgeCheer),
		"bits_leader_rank":       optInt(b.BitsLeaderRank),
	}
}

func classifiedFromRow(r map[string]string) models.ClassifiedMessage {
	var labels []string
	if r["badges"] != "" {
		labels = strings.Split(r["badges"], badgeSeparator)
	}
	return models.ClassifiedMessage{
		ChatMessage: models.ChatMessage{
			ClipID:            r["clip_id"],
			AuthorID:          r["author_id"],
			RawText:           r["raw_message"],
			MessageID:         r["message_id"],
			TimeText:          r["time_text"],
			TimeOffsetSeconds: atof(r["time_in_seconds"]),
			BadgeLabels:       labels,
		},
		Classification: models.Classification{
			Category:        category(r["category"]),
			TierLevel:       atoi(r["tier_level"]),
			SubscribedMonth: atoi(r["subscribed_month"]),
			GiftCount:       atoi(r["gifting_count"]),
			GiftChannel:     r["gifting_channel"],
			CheerAmount:     atoi(r["cheer"]),
		},
		Badges: models.BadgeProfile{
			IsVIP:                r["is_vip"] == "true",
			PremiumKind:          r["premium_kind"],
			HasSubscriptionBadge: r["has_subscription_badge"] == "true",
			SubscriptionMonth:    atoi(r["subscription_month"]),
			HasGifterBadge:       r["has_gifter_badge"] == "true",
			GifterVersion:        atoi(r["gifter_version"]),
			GiftLeaderRank:       atoi(r["gift_leader_rank"]),
			HasBitsBadge:         r["has_bits_badge"] == "true",
			BitsBadgeCheer:       atoi(r["bits_badge_cheer"]),
			BitsLeaderRank:       atoi(r["bits_leader_rank"]),
		},
		EmojiCount:     atoi(r["emoji_count"]),
		NormalizedText: r["message"],
	}
}

func category(s string) models.Category {
	switch c := models.Category(s); c {
	case models.CategoryCheer, models.CategorySelfSubscribe, models.CategoryGiftSubscribe:
		return c
	default:
		return models.CategoryPlain
	}
}

func reportRow(a models.UserAggregate) map[string]string {
	return map[string]string{
		"user_id":             a.EntityID,
		"message_count":       strconv.Itoa(a.MessageCount),
		"distinct_clip_count": strconv.Itoa(a.DistinctClipCount),
		"subscribed_count":    strconv.Itoa(a.SubscribedCount),
		"gifting_count":       strconv.Itoa(a.GiftingCount),
		"gifting_amount":      strconv.Itoa(a.GiftingAmount),
		"cheer_count":         strconv.Itoa(a.CheerCount),
		"cheer_amount":        strconv.Itoa(a.CheerAmount),
	}
}

func clipReportRow(s models.ClipSummary) map[string]string {
	return map[string]string{
		"user_id":                s.EntityID,
		"clip_count":             strconv.Itoa(s.ClipCount),
		"clips_with_video_id":    strconv.Itoa(s.ClipsWithVideoID),
		"duration_with_video_id": strconv.FormatFloat(s.DurationWithVideoID, 'f', -1, 64),
	}
}

// optInt renders zero as an empty cell; zero means the value is absent
func optInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
