package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListUserHistory returns every completed hold by a user, oldest first.
func ListUserHistory(ctx context.Context, db *sql.DB, userID int64) ([]model.HistoryRecord, error) {
	return listHistory(ctx, db, `WHERE user_id = ?`, userID)
}

// ListItemHistory returns every completed hold of an item, oldest first.
func ListItemHistory(ctx context.Context, db *sql.DB, itemID int64) ([]model.HistoryRecord, error) {
	return listHistory(ctx, db, `WHERE item_id = ?`, itemID)
}

func listHistory(ctx context.Context, q querier, where string, args ...any) ([]model.HistoryRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, item_id, user_id, start_date, days, max_days, created_at FROM history `+where+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		var h model.HistoryRecord
		if err := rows.Scan(&h.ID, &h.ItemID, &h.UserID, &h.StartDate, &h.Days, &h.MaxDays, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		records = append(records, h)
	}
	return records, rows.Err()
}
