package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

var (
	// ErrAlreadyInQueue is returned when the user already has an entry for the item.
	ErrAlreadyInQueue = errors.New("already in queue")

	// ErrNotInQueue is returned when the user has no entry for the item.
	ErrNotInQueue = errors.New("not in queue")

	// ErrHolding is returned when a waiting-only operation targets a holder.
	ErrHolding = errors.New("user holds the item")

	// ErrNotHolding is returned when a holder-only operation targets someone
	// who does not hold the item.
	ErrNotHolding = errors.New("user does not hold the item")
)

const queueColumns = `item_id, user_id, phone, location, added_at, date_received, date_done`

func scanEntry(row rowScanner) (*model.QueueEntry, error) {
	e := &model.QueueEntry{}
	var phone, location sql.NullString
	if err := row.Scan(&e.ItemID, &e.UserID, &phone, &location, &e.AddedAt, &e.DateReceived, &e.DateDone); err != nil {
		return nil, err
	}
	e.Phone = phone.String
	e.Location = location.String
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetQueue returns all queue entries for an item: holders first, ordered by
// the date they received the item, then waiters in the order they enrolled.
func GetQueue(ctx context.Context, db *sql.DB, itemID int64) ([]model.QueueEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE item_id = ? ORDER BY rowid`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting queue: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting queue: %w", err)
	}

	sortQueue(entries)
	return entries, nil
}

// sortQueue orders entries in place. Ties keep insertion order.
func sortQueue(entries []model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Holding() != b.Holding() {
			return a.Holding()
		}
		if a.Holding() {
			return a.DateReceived.Before(*b.DateReceived)
		}
		return a.AddedAt.Before(b.AddedAt)
	})
}

// GetQueueEntry returns a user's entry for an item, or nil if there is none.
func GetQueueEntry(ctx context.Context, db *sql.DB, itemID, userID int64) (*model.QueueEntry, error) {
	e, err := getQueueEntry(ctx, db, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting queue entry: %w", err)
	}
	return e, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getQueueEntry(ctx context.Context, q queryRower, itemID, userID int64) (*model.QueueEntry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE item_id = ? AND user_id = ?`, itemID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// InsertIntoQueue adds a waiting entry. If consumeOTP is set, the user's
// one-time passcode is deleted in the same transaction.
func InsertIntoQueue(ctx context.Context, db *sql.DB, e *model.QueueEntry, consumeOTP bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO queue (item_id, user_id, phone, location, added_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (item_id, user_id) DO NOTHING`,
		e.ItemID, e.UserID, nullString(e.Phone), nullString(e.Location), e.AddedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting queue entry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyInQueue
	}

	if consumeOTP {
		if _, err := tx.ExecContext(ctx, `DELETE FROM otp WHERE user_id = ?`, e.UserID); err != nil {
			return fmt.Errorf("consuming passcode: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing queue entry: %w", err)
	}
	return nil
}

// RemoveFromQueue deletes a waiting user's entry. Holders cannot be removed;
// they have to transfer the item.
func RemoveFromQueue(ctx context.Context, db *sql.DB, itemID, userID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := getQueueEntry(ctx, tx, itemID, userID)
	if err != nil {
		return fmt.Errorf("getting queue entry: %w", err)
	}
	if e == nil {
		return ErrNotInQueue
	}
	if e.Holding() {
		return ErrHolding
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue WHERE item_id = ? AND user_id = ? AND date_received IS NULL`,
		itemID, userID,
	); err != nil {
		return fmt.Errorf("removing queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing queue removal: %w", err)
	}
	return nil
}

// MarkDone records that the holder is ready to pass the item on. The first
// call sets the date; later calls leave it unchanged. Returns the entry.
func MarkDone(ctx context.Context, db *sql.DB, itemID, userID int64, now time.Time) (*model.QueueEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue SET date_done = ?
		 WHERE item_id = ? AND user_id = ? AND date_received IS NOT NULL AND date_done IS NULL`,
		now.UTC(), itemID, userID,
	); err != nil {
		return nil, fmt.Errorf("marking done: %w", err)
	}

	e, err := getQueueEntry(ctx, tx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting queue entry: %w", err)
	}
	if e == nil || !e.Holding() {
		return nil, ErrNotHolding
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing mark done: %w", err)
	}
	return e, nil
}

// ListHeldEntries returns every entry whose user currently holds an item.
func ListHeldEntries(ctx context.Context, db *sql.DB) ([]model.QueueEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE date_received IS NOT NULL ORDER BY item_id, rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing held entries: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
