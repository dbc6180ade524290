// Package journal keeps a SQLite log of comparisons.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/redline/core/compare"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/sqlite"
)

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS comparisons (
	id              TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	original_hash   TEXT NOT NULL,
	revised_hash    TEXT NOT NULL,
	requested_mode  TEXT NOT NULL,
	used_mode       TEXT NOT NULL,
	fallback_reason TEXT NOT NULL DEFAULT '',
	cached          INTEGER NOT NULL DEFAULT 0,
	stats           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS comparisons_created ON comparisons (created_at);
`

// Entry is one recorded comparison.
type Entry struct {
	ID             string
	CreatedAt      time.Time
	OriginalHash   string
	RevisedHash    string
	RequestedMode  string
	UsedMode       string
	FallbackReason string
	Cached         bool
	Stats          compare.Stats
}

// Journal is an open comparison journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, rerrors.NewIO("open journal", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, rerrors.NewIO("create journal schema", path, err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. An empty ID gets a fresh UUID and a zero CreatedAt the
// current time; the stored ID is returned.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	stats, err := json.Marshal(e.Stats)
	if err != nil {
		return "", err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO comparisons
			(id, created_at, original_hash, revised_hash, requested_mode, used_mode, fallback_reason, cached, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(timeLayout), e.OriginalHash, e.RevisedHash,
		e.RequestedMode, e.UsedMode, e.FallbackReason, boolInt(e.Cached), string(stats))
	if err != nil {
		return "", rerrors.Wrap(err, "record comparison")
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, original_hash, revised_hash, requested_mode, used_mode, fallback_reason, cached, stats
		FROM comparisons
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, rerrors.Wrap(err, "query journal")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
			cached  int
			stats   string
		)
		if err := rows.Scan(&e.ID, &created, &e.OriginalHash, &e.RevisedHash,
			&e.RequestedMode, &e.UsedMode, &e.FallbackReason, &cached, &stats); err != nil {
			return nil, rerrors.Wrap(err, "scan journal row")
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, rerrors.NewParse("journal", e.ID, "bad timestamp "+created)
		}
		if err := json.Unmarshal([]byte(stats), &e.Stats); err != nil {
			return nil, rerrors.NewParse("journal", e.ID, "bad stats: "+err.Error())
		}
		e.Cached = cached != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
