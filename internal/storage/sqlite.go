package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"concursobot/internal/model"
	"concursobot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
	// subMu serializes subscriber registry updates.
	subMu sync.Mutex
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Open creates the parent directory of a database file if needed and opens it.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	return NewSQLite(path)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadSnapshot returns the stored snapshot of a source.
func (s *SQLite) LoadSnapshot(ctx context.Context, sourceID string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, title, url, acquired_at, records, fields, last_update_at, last_update
		 FROM snapshots WHERE source_id = ?`, sourceID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

// SaveSnapshot replaces the snapshot of a source in a single transaction.
func (s *SQLite) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	fields, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	var lastUpdateAt, lastUpdate *string
	if snap.LastUpdate != nil {
		b, err := json.Marshal(snap.LastUpdate.Delta)
		if err != nil {
			return fmt.Errorf("encode last update: %w", err)
		}
		at, enc := formatTime(snap.LastUpdate.At), string(b)
		lastUpdateAt, lastUpdate = at, &enc
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (source_id, title, url, acquired_at, records, fields, last_update_at, last_update, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
		   title = excluded.title,
		   url = excluded.url,
		   acquired_at = excluded.acquired_at,
		   records = excluded.records,
		   fields = excluded.fields,
		   last_update_at = excluded.last_update_at,
		   last_update = excluded.last_update,
		   updated_at = excluded.updated_at`,
		snap.SourceID, snap.Title, snap.URL, formatTime(snap.AcquiredAt), string(records), string(fields),
		lastUpdateAt, lastUpdate, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return tx.Commit()
}

// EnsureSnapshot inserts an empty snapshot for a source that has none.
func (s *SQLite) EnsureSnapshot(ctx context.Context, sourceID string, shape model.Shape) (bool, error) {
	records, err := json.Marshal(model.RecordSet{Shape: shape})
	if err != nil {
		return false, fmt.Errorf("encode records: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO snapshots (source_id, records, fields, updated_at) VALUES (?, ?, '{}', ?)`,
		sourceID, string(records), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("seed snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AddSubscriber registers a chat. It reports false if the chat was already
// subscribed.
func (s *SQLite) AddSubscriber(ctx context.Context, chatID int64) (bool, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscribers (chat_id, created_at) VALUES (?, ?)`,
		chatID, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveSubscriber unregisters a chat. It reports false if the chat was not
// subscribed.
func (s *SQLite) RemoveSubscriber(ctx context.Context, chatID int64) (bool, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSubscribers returns all subscribed chats in registration order.
func (s *SQLite) ListSubscribers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var snap model.Snapshot
	var acquired, lastUpdateAt, lastUpdate sql.NullString
	var records, fields string
	err := row.Scan(&snap.SourceID, &snap.Title, &snap.URL, &acquired, &records, &fields, &lastUpdateAt, &lastUpdate)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if acquired.Valid {
		if snap.AcquiredAt, err = time.Parse(timeLayout, acquired.String); err != nil {
			return nil, fmt.Errorf("decode acquired_at: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(records), &snap.Records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if lastUpdate.Valid {
		lu := &model.LastUpdate{}
		if err := json.Unmarshal([]byte(lastUpdate.String), &lu.Delta); err != nil {
			return nil, fmt.Errorf("decode last update: %w", err)
		}
		if lastUpdateAt.Valid {
			if lu.At, err = time.Parse(timeLayout, lastUpdateAt.String); err != nil {
				return nil, fmt.Errorf("decode last_update_at: %w", err)
			}
		}
		snap.LastUpdate = lu
	}
	return &snap, nil
}

// formatTime returns nil for the zero time.
func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}
