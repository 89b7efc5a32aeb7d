package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (id, topic, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Topic, nullString(e.Actor), jsonbBytes(e.Payload), e.CreatedAt,
	)
	return err
}

// buildEventsWhere converts a filter into a WHERE clause and its arguments.
func buildEventsWhere(f model.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Topic != "" {
		if f.TopicPrefix() {
			add(`topic LIKE $%d ESCAPE '\'`, store.EscapeLike(f.Topic)+"%")
		} else {
			add("topic = $%d", f.Topic)
		}
	}
	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func queryListEvents(ctx context.Context, db executor, f model.EventFilter) ([]*model.Event, error) {
	where, args := buildEventsWhere(f)
	args = append(args, f.EffectiveLimit())
	query := fmt.Sprintf(`
		SELECT id, topic, actor, payload, created_at
		FROM events%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, where, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryGetOverride(ctx context.Context, db executor) (*model.Override, error) {
	var (
		o      model.Override
		mode   string
		setBy  sql.NullString
		reason sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT mode, set_by, reason, set_at
		FROM gate_override
		WHERE id = 1`,
	).Scan(&mode, &setBy, &reason, &o.SetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.Override{Mode: model.OverrideAuto}, nil
		}
		return nil, err
	}
	o.Mode = model.OverrideMode(mode)
	o.SetBy = setBy.String
	o.Reason = reason.String
	return &o, nil
}

// querySetOverride upserts the single override row.
func querySetOverride(ctx context.Context, db executor, o *model.Override) error {
	if !o.Mode.IsValid() {
		return fmt.Errorf("invalid override mode %q", o.Mode)
	}
	if o.SetAt.IsZero() {
		o.SetAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO gate_override (id, mode, set_by, reason, set_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET mode = EXCLUDED.mode, set_by = EXCLUDED.set_by,
		    reason = EXCLUDED.reason, set_at = EXCLUDED.set_at`,
		string(o.Mode), nullString(o.SetBy), nullString(o.Reason), o.SetAt,
	)
	return err
}
