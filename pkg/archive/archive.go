// Package archive mirrors classified chat messages into SQLite for ad hoc
// querying. The flat tables remain the system of record; a message already
// in the archive is never overwritten.
package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"clipharvest/pkg/models"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
  message_id TEXT NOT NULL PRIMARY KEY,
  entity_id TEXT NOT NULL,
  clip_id TEXT NOT NULL,
  author_id TEXT NOT NULL,
  time_text TEXT NOT NULL DEFAULT '',
  time_offset REAL NOT NULL DEFAULT 0,
  raw_text TEXT NOT NULL,
  normalized_text TEXT NOT NULL,
  category TEXT NOT NULL,
  tier_level INTEGER NOT NULL DEFAULT 0,
  subscribed_month INTEGER NOT NULL DEFAULT 0,
  gift_count INTEGER NOT NULL DEFAULT 0,
  gift_channel TEXT NOT NULL DEFAULT '',
  cheer_amount INTEGER NOT NULL DEFAULT 0,
  emoji_count INTEGER NOT NULL DEFAULT 0,
  is_vip INTEGER NOT NULL DEFAULT 0,
  premium_kind TEXT NOT NULL DEFAULT '',
  subscription_month INTEGER NOT NULL DEFAULT 0,
  gifter_version INTEGER NOT NULL DEFAULT 0,
  bits_badge_cheer INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS messages_entity ON messages (entity_id);`

// rows per INSERT statement, well under SQLite's bound-variable limit
const batchSize = 400

var messageColumns = []string{
	"message_id", "entity_id", "clip_id", "author_id", "time_text", "time_offset",
	"raw_text", "normalized_text", "category", "tier_level", "subscribed_month",
	"gift_count", "gift_channel", "cheer_amount", "emoji_count", "is_vip",
	"premium_kind", "subscription_month", "gifter_version", "bits_badge_cheer",
}

// Archive is an open SQLite mirror
type Archive struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "create archive directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// single writer connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}
	return &Archive{db: db}, nil
}

// Close closes the database
func (a *Archive) Close() error { return a.db.Close() }

// WriteMessages inserts msgs for entityID in one transaction and returns the
// number of rows actually added. Messages whose id is already archived are
// left untouched.
func (a *Archive) WriteMessages(ctx context.Context, entityID string, msgs []models.ClassifiedMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for start := 0; start < len(msgs); start += batchSize {
		end := start + batchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		insert := sq.Insert("messages").Columns(messageColumns...).
			Suffix("ON CONFLICT(message_id) DO NOTHING")
		for _, m := range msgs[start:end] {
			insert = insert.Values(
				m.MessageID, entityID, m.ClipID, m.AuthorID, m.TimeText, m.TimeOffsetSeconds,
				m.RawText, m.NormalizedText, string(m.Category), m.TierLevel, m.SubscribedMonth,
				m.GiftCount, m.GiftChannel, m.CheerAmount, m.EmojiCount, boolInt(m.Badges.IsVIP),
				m.Badges.PremiumKind, m.Badges.SubscriptionMonth, m.Badges.GifterVersion, m.Badges.BitsBadgeCheer,
			)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return 0, errors.Wrap(err, "build insert")
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, errors.Wrapf(err, "insert messages for %s", entityID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "rows affected")
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return added, nil
}

// Count returns the number of archived messages for entityID, or for every
// entity when entityID is empty
func (a *Archive) Count(ctx context.Context, entityID string) (int, error) {
	q := sq.Select("COUNT(*)").From("messages")
	if entityID != "" {
		q = q.Where(sq.Eq{"entity_id": entityID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build count")
	}

	var n int
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

// Aggregates computes per-entity summaries over the archive, ordered by
// entity id
func (a *Archive) Aggregates(ctx context.Context) ([]models.UserAggregate, error) {
	query, args, err := sq.Select(
		"entity_id",
		"COUNT(*)",
		"COUNT(DISTINCT clip_id)",
		"SUM(CASE WHEN category = 'self_subscribe' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN category = 'gift_subscribe' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN category = 'gift_subscribe' THEN gift_count ELSE 0 END)",
		"SUM(CASE WHEN category = 'cheer' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN category = 'cheer' THEN cheer_amount ELSE 0 END)",
	).From("messages").GroupBy("entity_id").OrderBy("entity_id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build aggregate")
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate")
	}
	defer rows.Close()

	var out []models.UserAggregate
	for rows.Next() {
		var agg models.UserAggregate
		if err := rows.Scan(&agg.EntityID, &agg.MessageCount, &agg.DistinctClipCount,
			&agg.SubscribedCount, &agg.GiftingCount, &agg.GiftingAmount,
			&agg.CheerCount, &agg.CheerAmount); err != nil {
			return nil, errors.Wrap(err, "scan aggregate")
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate aggregates")
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
