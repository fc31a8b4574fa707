package memory

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/itsneelabh/docrouter/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend stores entries in the memory_entries table of a local
// SQLite database, so the shared memory survives restarts.
type SQLiteBackend struct {
	db     *sql.DB
	logger core.Logger
}

// NewSQLiteBackend opens (or creates) the database at path and applies
// pending migrations.
func NewSQLiteBackend(path string, logger core.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer. One shared connection serializes callers
	// in database/sql instead of contending for the file lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %v: %w", err, core.ErrConnectionFailed)
		}
	}

	b := &SQLiteBackend{db: db, logger: logger}
	if err := b.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) Name() string { return core.MemoryProviderSQLite }

// runMigrations applies any SQL files not yet recorded in schema_migrations.
func (b *SQLiteBackend) runMigrations() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := b.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}

		tx, err := b.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", e.Name(), err)
		}
		b.logger.Info("Applied memory migration", map[string]interface{}{
			"version":     version,
			"description": description,
		})
	}
	return nil
}

const entryColumns = "id, source, type, timestamp_ns, extracted_values, thread_id, conversation_id"

func (b *SQLiteBackend) Put(ctx context.Context, e *MemoryEntry) error {
	return upsertEntry(ctx, b.db, e)
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	return getEntry(ctx, b.db, id)
}

func (b *SQLiteBackend) Update(ctx context.Context, id string, fn func(*MemoryEntry) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	e, err := getEntry(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := fn(e); err != nil {
		return err
	}
	e.ID = id

	if err := upsertEntry(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, "DELETE FROM memory_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	return nil
}

func (b *SQLiteBackend) ListThread(ctx context.Context, threadID string) ([]*MemoryEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM memory_entries WHERE thread_id = ? ORDER BY timestamp_ns, id",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}
	defer rows.Close()

	out := []*MemoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) DeleteThread(ctx context.Context, threadID string) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM memory_entries WHERE thread_id = ?", threadID)
	if err != nil {
		return 0, fmt.Errorf("clear thread %s: %w", threadID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear thread %s: %w", threadID, err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *SQLiteBackend) Close() error { return b.db.Close() }

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func upsertEntry(ctx context.Context, q querier, e *MemoryEntry) error {
	values := e.ExtractedValues
	if values == nil {
		values = map[string]interface{}{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.ID, err)
	}

	var conversationID sql.NullString
	if e.ConversationID != nil {
		conversationID = sql.NullString{String: *e.ConversationID, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO memory_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source           = excluded.source,
			type             = excluded.type,
			timestamp_ns     = excluded.timestamp_ns,
			extracted_values = excluded.extracted_values,
			thread_id        = excluded.thread_id,
			conversation_id  = excluded.conversation_id`,
		e.ID, e.Source, e.Type, e.Timestamp.UnixNano(), string(data), e.ThreadID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("store entry %s: %w", e.ID, err)
	}
	return nil
}

func getEntry(ctx context.Context, q querier, id string) (*MemoryEntry, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM memory_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	return e, err
}

func scanEntry(s scanner) (*MemoryEntry, error) {
	var (
		e              MemoryEntry
		ts             int64
		values         string
		conversationID sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Source, &e.Type, &ts, &values, &e.ThreadID, &conversationID); err != nil {
		return nil, err
	}
	e.Timestamp = time.Unix(0, ts).UTC()
	if err := json.Unmarshal([]byte(values), &e.ExtractedValues); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
	}
	if conversationID.Valid {
		id := conversationID.String
		e.ConversationID = &id
	}
	return &e, nil
}
