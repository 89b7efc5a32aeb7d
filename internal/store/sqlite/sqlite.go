// Package sqlite implements the store.Store interface backed by an embedded
// SQLite database. Timestamps are stored as Unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	store.Register(func(url string) (store.Store, error) { return Open(PathFromURL(url)) }, "sqlite", "file")
}

// Store implements store.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// PathFromURL strips a sqlite:// or file: prefix from a database URL.
func PathFromURL(url string) string {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file://", "file:"} {
		if rest, ok := strings.CutPrefix(url, prefix); ok {
			return rest
		}
	}
	return url
}

// Open opens (creating if needed) the database at path and applies
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	return recordEvent(ctx, s.db, e)
}

func (s *Store) ListEvents(ctx context.Context, f model.EventFilter) ([]*model.Event, error) {
	return listEvents(ctx, s.db, f)
}

func (s *Store) GetOverride(ctx context.Context) (*model.Override, error) {
	return getOverride(ctx, s.db)
}

func (s *Store) SetOverride(ctx context.Context, o *model.Override) error {
	return setOverride(ctx, s.db, o)
}

// RunInTransaction runs fn inside a transaction, committing on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return recordEvent(ctx, s.tx, e)
}

func (s *txStore) ListEvents(ctx context.Context, f model.EventFilter) ([]*model.Event, error) {
	return listEvents(ctx, s.tx, f)
}

func (s *txStore) GetOverride(ctx context.Context) (*model.Override, error) {
	return getOverride(ctx, s.tx)
}

func (s *txStore) SetOverride(ctx context.Context, o *model.Override) error {
	return setOverride(ctx, s.tx, o)
}

func (s *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Close() error {
	return nil
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func recordEvent(ctx context.Context, db executor, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO events (id, topic, actor, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Topic, nullString(e.Actor), payload, toMillis(e.CreatedAt),
	)
	return err
}

func listEvents(ctx context.Context, db executor, f model.EventFilter) ([]*model.Event, error) {
	var (
		conds []string
		args  []any
	)
	if f.Topic != "" {
		if f.TopicPrefix() {
			conds = append(conds, `topic LIKE ? ESCAPE '\'`)
			args = append(args, store.EscapeLike(f.Topic)+"%")
		} else {
			conds = append(conds, "topic = ?")
			args = append(args, f.Topic)
		}
	}
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, toMillis(f.Since))
	}

	query := "SELECT id, topic, actor, payload, created_at FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var (
			e       model.Event
			actor   sql.NullString
			payload []byte
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Topic, &actor, &payload, &created); err != nil {
			return nil, err
		}
		e.Actor = actor.String
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		e.CreatedAt = fromMillis(created)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func getOverride(ctx context.Context, db executor) (*model.Override, error) {
	var (
		mode          string
		setBy, reason sql.NullString
		setAt         int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT mode, set_by, reason, set_at FROM gate_override WHERE id = 1`,
	).Scan(&mode, &setBy, &reason, &setAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Override{Mode: model.OverrideAuto}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Override{
		Mode:   model.OverrideMode(mode),
		SetBy:  setBy.String,
		Reason: reason.String,
		SetAt:  fromMillis(setAt),
	}, nil
}

func setOverride(ctx context.Context, db executor, o *model.Override) error {
	if !o.Mode.IsValid() {
		return fmt.Errorf("invalid override mode %q", o.Mode)
	}
	if o.SetAt.IsZero() {
		o.SetAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO gate_override (id, mode, set_by, reason, set_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET mode = excluded.mode, set_by = excluded.set_by,
		    reason = excluded.reason, set_at = excluded.set_at`,
		string(o.Mode), nullString(o.SetBy), nullString(o.Reason), toMillis(o.SetAt),
	)
	return err
}
