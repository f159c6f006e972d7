// Package transcript decodes chat replay files into chat messages. A file is
// a JSON array of message records; each record is checked for the fields the
// classifier needs and rejected on its own, so one bad record never costs
// the rest of the file.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"clipharvest/internal/validation"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/models"
)

// Badge is one author badge
type Badge struct {
	Title string `json:"title"`
}

// Author is the message author as written by the replay tool
type Author struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name"`
	Badges []Badge `json:"badges"`
}

// Record is one raw message record
type Record struct {
	Author        *Author  `json:"author" validate:"required"`
	Message       *string  `json:"message" validate:"required"`
	MessageID     string   `json:"message_id" validate:"required"`
	TimeText      string   `json:"time_text"`
	TimeInSeconds *float64 `json:"time_in_seconds" validate:"required"`
}

// RecordError describes one rejected record
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

// Transcript is a decoded replay file
type Transcript struct {
	ClipID    string
	Path      string
	Messages  []models.ChatMessage
	Malformed []RecordError
	// Records is the number of array elements in the file
	Records int
}

// Empty reports whether the file held no records at all
func (t *Transcript) Empty() bool {
	return t.Records == 0
}

// Parse decodes a replay payload for clipID. A payload that is not a JSON
// array is a malformed_record error; bad elements are collected in
// Transcript.Malformed.
func Parse(data []byte, clipID string) (*Transcript, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.KindMalformedRecord, "transcript.Parse", err)
	}

	t := &Transcript{
		ClipID:   clipID,
		Messages: make([]models.ChatMessage, 0, len(raw)),
		Records:  len(raw),
	}

	for i, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			t.Malformed = append(t.Malformed, RecordError{Index: i, Err: err})
			continue
		}
		if err := validation.Struct(rec); err != nil {
			t.Malformed = append(t.Malformed, RecordError{Index: i, Err: err})
			continue
		}
		t.Messages = append(t.Messages, rec.toMessage(clipID))
	}

	return t, nil
}

func (r Record) toMessage(clipID string) models.ChatMessage {
	labels := make([]string, 0, len(r.Author.Badges))
	for _, b := range r.Author.Badges {
		if b.Title != "" {
			labels = append(labels, b.Title)
		}
	}
	return models.ChatMessage{
		ClipID:            clipID,
		AuthorID:          r.Author.ID,
		RawText:           *r.Message,
		MessageID:         r.MessageID,
		TimeText:          r.TimeText,
		TimeOffsetSeconds: *r.TimeInSeconds,
		BadgeLabels:       labels,
	}
}

// ClipIDFromPath returns the clip id encoded in a transcript file name
func ClipIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile loads and parses a transcript file
func ReadFile(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data, ClipIDFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Encode writes messages in the replay file format
func Encode(messages []models.ChatMessage) ([]byte, error) {
	records := make([]Record, len(messages))
	for i, m := range messages {
		text := m.RawText
		offset := m.TimeOffsetSeconds
		badges := make([]Badge, len(m.BadgeLabels))
		for j, l := range m.BadgeLabels {
			badges[j] = Badge{Title: l}
		}
		records[i] = Record{
			Author:        &Author{ID: m.AuthorID, Badges: badges},
			Message:       &text,
			MessageID:     m.MessageID,
			TimeText:      m.TimeText,
			TimeInSeconds: &offset,
		}
	}
	return json.MarshalIndent(records, "", "    ")
}
