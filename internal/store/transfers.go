package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/age"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

var (
	// ErrBanned is returned when the destination of a transfer has an active ban.
	ErrBanned = errors.New("user is banned")

	// ErrAlreadyHolding is returned when the destination of a transfer
	// already holds the item.
	ErrAlreadyHolding = errors.New("user already holds the item")
)

// TransferParams describes a hand-off of an item between two users.
type TransferParams struct {
	ItemID     int64
	FromUserID int64
	ToUserID   int64

	// ToLocation is used when the destination has no queue entry yet.
	ToLocation string
	Now        time.Time

	// Evaluate, if set, is called with the source's full history including
	// the new record. A non-nil ban is stored in the same transaction unless
	// the source already has a ban that ends later.
	Evaluate func(history []model.HistoryRecord) *model.Ban
}

// TransferResult is what a committed transfer produced.
type TransferResult struct {
	History model.HistoryRecord
	Ban     *model.Ban
}

// TransferItem moves an item from its holder to another user in a single
// transaction: the destination starts holding, a history record is written
// for the source, the source entry is removed and a ban may be recorded.
func TransferItem(ctx context.Context, db *sql.DB, p TransferParams) (*TransferResult, error) {
	if p.FromUserID == p.ToUserID {
		return nil, fmt.Errorf("cannot transfer to self")
	}
	now := p.Now.UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var maxDays int
	err = tx.QueryRowContext(ctx, `SELECT max_days FROM items WHERE id = ?`, p.ItemID).Scan(&maxDays)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	src, err := getQueueEntry(ctx, tx, p.ItemID, p.FromUserID)
	if err != nil {
		return nil, fmt.Errorf("getting source entry: %w", err)
	}
	if src == nil || !src.Holding() {
		return nil, ErrNotHolding
	}

	dst, err := getQueueEntry(ctx, tx, p.ItemID, p.ToUserID)
	if err != nil {
		return nil, fmt.Errorf("getting destination entry: %w", err)
	}
	if dst != nil && dst.Holding() {
		return nil, ErrAlreadyHolding
	}

	ban, err := getBan(ctx, tx, p.ToUserID)
	if err != nil {
		return nil, fmt.Errorf("checking destination ban: %w", err)
	}
	if ban.Active(now) {
		return nil, ErrBanned
	}

	if dst != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE queue SET date_received = ?, date_done = NULL WHERE item_id = ? AND user_id = ?`,
			now, p.ItemID, p.ToUserID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO queue (item_id, user_id, location, added_at, date_received) VALUES (?, ?, ?, ?, ?)`,
			p.ItemID, p.ToUserID, nullString(p.ToLocation), now, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("updating destination entry: %w", err)
	}

	rec := model.HistoryRecord{
		ItemID:    p.ItemID,
		UserID:    p.FromUserID,
		StartDate: src.DateReceived.UTC(),
		Days:      age.DaysBetween(*src.DateReceived, now),
		MaxDays:   maxDays,
		CreatedAt: now,
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO history (item_id, user_id, start_date, days, max_days, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ItemID, rec.UserID, rec.StartDate, rec.Days, rec.MaxDays, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording history: %w", err)
	}
	rec.ID, _ = result.LastInsertId()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue WHERE item_id = ? AND user_id = ?`, p.ItemID, p.FromUserID,
	); err != nil {
		return nil, fmt.Errorf("removing source entry: %w", err)
	}

	res := &TransferResult{History: rec}

	if p.Evaluate != nil {
		history, err := listHistory(ctx, tx, `WHERE user_id = ?`, p.FromUserID)
		if err != nil {
			return nil, err
		}
		if b := p.Evaluate(history); b != nil {
			b.UserID = p.FromUserID
			if b.CreatedAt.IsZero() {
				b.CreatedAt = now
			}
			current, err := getBan(ctx, tx, p.FromUserID)
			if err != nil {
				return nil, fmt.Errorf("getting source ban: %w", err)
			}
			// A longer ban already in force is kept as is.
			if !current.Active(now) || b.EndsOn.After(current.EndsOn) {
				if err := upsertBan(ctx, tx, b); err != nil {
					return nil, err
				}
				res.Ban = b
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}
	return res, nil
}
