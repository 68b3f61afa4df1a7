// Package journal keeps a local SQLite history of activations received by
// the primary instance.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"monarch"
	"monarch/internal/check"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS activations (
	id          TEXT PRIMARY KEY,
	received_at TEXT NOT NULL,
	sent_at     TEXT NOT NULL,
	args        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS activations_received_at ON activations (received_at);
`

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one journaled activation.
type Record struct {
	ID         string
	ReceivedAt time.Time
	SentAt     time.Time
	Args       []string
}

// Store is the activation journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns $XDG_STATE_HOME/monarch/<stem>.db, falling back to
// ~/.local/state.
func DefaultPath(id monarch.Identity) string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "state", "monarch", id.FileStem()+".db")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "monarch", id.FileStem()+".db")
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends env to the journal.
func (s *Store) Record(ctx context.Context, env *monarch.Envelope) (Record, error) {
	rec := Record{
		ID:         uuid.NewString(),
		ReceivedAt: s.now().UTC(),
		SentAt:     env.Timestamp().UTC(),
		Args:       env.Args(),
	}
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return Record{}, fmt.Errorf("encode args: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activations (id, received_at, sent_at, args) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.ReceivedAt.Format(timeLayout), rec.SentAt.Format(timeLayout), string(args))
	if err != nil {
		return Record{}, fmt.Errorf("insert activation: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, sent_at, args FROM activations ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                Record
			receivedAt, sentAt string
			args               string
		)
		if err := rows.Scan(&rec.ID, &receivedAt, &sentAt, &args); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		if rec.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		if rec.SentAt, err = time.Parse(timeLayout, sentAt); err != nil {
			return nil, fmt.Errorf("parse sent_at: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		if rec.Args == nil {
			rec.Args = []string{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activations: %w", err)
	}
	check.Assertf(len(out) <= limit, "journal.Recent: %d rows for limit %d", len(out), limit)
	return out, nil
}
