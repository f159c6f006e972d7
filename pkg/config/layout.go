package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout maps logical tables and artifacts to paths under the data root.
// Every per-entity file is partitioned by entity id so concurrent entity
// workers never share a file.
type Layout struct {
	Root     string
	Compress bool
}

const (
	clipsDir      = "clips"
	chatsDir      = "comments"
	mediaDir      = "mp4"
	classifiedDir = "comments_csv"
	videosDir     = "videos"
	runsDir       = "runs"
)

func (l Layout) tableName(name string) string {
	if l.Compress {
		return name + ".csv.zst"
	}
	return name + ".csv"
}

func (l Layout) ClipTable(entityID string) string {
	return filepath.Join(l.Root, clipsDir, l.tableName(entityID))
}

func (l Layout) ChatDir(entityID string) string {
	return filepath.Join(l.Root, chatsDir, entityID)
}

func (l Layout) TranscriptPath(entityID, clipID string) string {
	return filepath.Join(l.ChatDir(entityID), clipID+".json")
}

func (l Layout) NoReplayTable(entityID string) string {
	return filepath.Join(l.Root, chatsDir, entityID+"_clips_without_chat.csv")
}

func (l Layout) ChatFailureTable(entityID string) string {
	return filepath.Join(l.Root, chatsDir, entityID+"_chat_failures.csv")
}

func (l Layout) MissingChatTable(entityID string) string {
	return filepath.Join(l.Root, chatsDir, entityID+"_clips_without_chat_double_check.csv")
}

func (l Layout) MediaDir(entityID string) string {
	return filepath.Join(l.Root, mediaDir, entityID)
}

func (l Layout) MediaPath(entityID, clipID string) string {
	return filepath.Join(l.MediaDir(entityID), clipID+".mp4")
}

func (l Layout) MediaFailureTable(entityID string) string {
	return filepath.Join(l.Root, mediaDir, entityID+"_download_failures.csv")
}

func (l Layout) ClassifiedDir(entityID string) string {
	return filepath.Join(l.Root, classifiedDir, entityID)
}

func (l Layout) ClassifiedTable(entityID, clipID string) string {
	return filepath.Join(l.ClassifiedDir(entityID), l.tableName(clipID))
}

func (l Layout) MalformedTable(entityID string) string {
	return filepath.Join(l.Root, classifiedDir, entityID+"_malformed.csv")
}

func (l Layout) EmptyTranscriptTable(entityID string) string {
	return filepath.Join(l.Root, classifiedDir, entityID+"_empty.csv")
}

func (l Layout) VideosTable(entityID string) string {
	return filepath.Join(l.Root, videosDir, entityID+".csv")
}

func (l Layout) UsersTable() string {
	return filepath.Join(l.Root, "users_info.csv")
}

func (l Layout) UsersWithoutClipsTable() string {
	return filepath.Join(l.Root, "users_without_clips.csv")
}

func (l Layout) ReportTable() string {
	return filepath.Join(l.Root, "reports.csv")
}

func (l Layout) ClipReportTable() string {
	return filepath.Join(l.Root, "clip_reports.csv")
}

func (l Layout) RunsDir() string {
	return filepath.Join(l.Root, runsDir)
}

// Resolve makes a configured relative path (archive, metrics) live under the root
func (l Layout) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Root, path)
}

// Ensure creates the top-level directories. Any failure here is a setup
// failure and must abort the run before work is scheduled.
func (l Layout) Ensure() error {
	for _, dir := range []string{clipsDir, chatsDir, mediaDir, classifiedDir, videosDir, runsDir} {
		path := filepath.Join(l.Root, dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil
}

// ClipEntities lists entity ids that have a clip table
func (l Layout) ClipEntities() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, clipsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var id string
		switch {
		case strings.HasSuffix(name, ".csv.zst"):
			id = strings.TrimSuffix(name, ".csv.zst")
		case strings.HasSuffix(name, ".csv"):
			id = strings.TrimSuffix(name, ".csv")
		default:
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// TranscriptEntities lists entity ids that have a transcript directory
func (l Layout) TranscriptEntities() ([]string, error) {
	return subdirs(filepath.Join(l.Root, chatsDir))
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ClassifiedEntities lists entity ids that have classified tables
func (l Layout) ClassifiedEntities() ([]string, error) {
	return subdirs(filepath.Join(l.Root, classifiedDir))
}

