package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// GetBan returns a user's ban, or nil if there is none. The ban may already
// have ended; use Ban.Active.
func GetBan(ctx context.Context, db *sql.DB, userID int64) (*model.Ban, error) {
	b, err := getBan(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("getting ban: %w", err)
	}
	return b, nil
}

func getBan(ctx context.Context, q queryRower, userID int64) (*model.Ban, error) {
	b := &model.Ban{}
	var reason sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT user_id, ends_on, reason, created_at FROM bans WHERE user_id = ?`, userID,
	).Scan(&b.UserID, &b.EndsOn, &reason, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Reason = reason.String
	return b, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBan(ctx context.Context, e execer, b *model.Ban) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO bans (user_id, ends_on, reason, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET ends_on = excluded.ends_on, reason = excluded.reason,
		     created_at = excluded.created_at`,
		b.UserID, b.EndsOn.UTC(), nullString(b.Reason), b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving ban: %w", err)
	}
	return nil
}

// SaveBan creates or replaces a user's ban.
func SaveBan(ctx context.Context, db *sql.DB, b *model.Ban) error {
	return upsertBan(ctx, db, b)
}

// ListBans returns all bans, including ones that have ended but were not yet
// cleaned up.
func ListBans(ctx context.Context, db *sql.DB) ([]model.Ban, error) {
	bans, err := listBans(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("listing bans: %w", err)
	}
	return bans, nil
}

func listBans(ctx context.Context, q querier) ([]model.Ban, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, ends_on, reason, created_at FROM bans ORDER BY user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []model.Ban
	for rows.Next() {
		var b model.Ban
		var reason sql.NullString
		if err := rows.Scan(&b.UserID, &b.EndsOn, &reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ban: %w", err)
		}
		b.Reason = reason.String
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// DeleteExpiredBans removes bans that ended at or before now and returns the
// affected users.
func DeleteExpiredBans(ctx context.Context, db *sql.DB, now time.Time) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	bans, err := listBans(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("listing bans: %w", err)
	}

	// Times are compared here rather than in SQL; the driver stores them as text.
	var expired []model.Ban
	for _, b := range bans {
		if !b.Active(now) {
			expired = append(expired, b)
		}
	}

	deleted, err := deleteBans(ctx, tx, expired)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ban cleanup: %w", err)
	}
	return deleted, nil
}

// deleteBans removes the given bans unless they were replaced since they
// were read, and returns the users whose ban was removed.
func deleteBans(ctx context.Context, e execer, bans []model.Ban) ([]int64, error) {
	var deleted []int64
	for _, b := range bans {
		res, err := e.ExecContext(ctx,
			`DELETE FROM bans WHERE user_id = ? AND ends_on = ?`, b.UserID, b.EndsOn.UTC())
		if err != nil {
			return nil, fmt.Errorf("deleting ban: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted = append(deleted, b.UserID)
		}
	}
	return deleted, nil
}
