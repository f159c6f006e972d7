package twitch

import (
	"time"

	json "github.com/goccy/go-json"

	"clipharvest/pkg/models"
)

// Pagination carries the opaque cursor; empty means the last page
type Pagination struct {
	Cursor string `json:"cursor"`
}

// listResponse is the Helix envelope. Data stays raw so each element is
// decoded and validated on its own.
type listResponse struct {
	Data       []json.RawMessage `json:"data"`
	Pagination Pagination        `json:"pagination"`
	Total      *int              `json:"total,omitempty"`
}

// Clip is a Helix clip object
type Clip struct {
	ID              string     `json:"id" validate:"required"`
	URL             string     `json:"url" validate:"required"`
	BroadcasterID   string     `json:"broadcaster_id" validate:"required"`
	BroadcasterName string     `json:"broadcaster_name"`
	CreatorID       string     `json:"creator_id"`
	CreatorName     string     `json:"creator_name"`
	VideoID         string     `json:"video_id"`
	GameID          string     `json:"game_id"`
	Language        string     `json:"language"`
	Title           string     `json:"title"`
	ViewCount       int        `json:"view_count"`
	CreatedAt       *time.Time `json:"created_at" validate:"required"`
	Duration        float64    `json:"duration"`
}

func (c Clip) record() models.ClipRecord {
	return models.ClipRecord{
		ID:              c.ID,
		BroadcasterID:   c.BroadcasterID,
		BroadcasterName: c.BroadcasterName,
		CreatorName:     c.CreatorName,
		URL:             c.URL,
		VideoID:         c.VideoID,
		Title:           c.Title,
		ViewCount:       c.ViewCount,
		Duration:        c.Duration,
		CreatedAt:       c.CreatedAt.UTC(),
	}
}

// User is a Helix user object
type User struct {
	ID              string    `json:"id" validate:"required"`
	Login           string    `json:"login" validate:"required"`
	DisplayName     string    `json:"display_name"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

func (u User) streamer() models.Streamer {
	return models.Streamer{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		BroadcasterType: u.BroadcasterType,
		Description:     u.Description,
		CreatedAt:       u.CreatedAt,
	}
}

// Video is a Helix video object
type Video struct {
	ID        string    `json:"id" validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ViewCount int       `json:"view_count"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

func (v Video) model() models.Video {
	return models.Video{
		ID:        v.ID,
		UserID:    v.UserID,
		Title:     v.Title,
		Duration:  v.Duration,
		ViewCount: v.ViewCount,
		CreatedAt: v.CreatedAt,
		URL:       v.URL,
	}
}

// ClipsPage is one decoded page of the clip listing
type ClipsPage struct {
	Clips []models.ClipRecord
	// Malformed counts elements that failed decoding or validation
	Malformed int
	Cursor    string
}
