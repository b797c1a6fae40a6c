package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

const otpColumns = `user_id, phone, code_hash, created_at, sent_at, send_count, attempts`

func scanOtp(row rowScanner) (*model.OtpEntry, error) {
	o := &model.OtpEntry{}
	err := row.Scan(&o.UserID, &o.Phone, &o.CodeHash, &o.CreatedAt, &o.SentAt, &o.SendCount, &o.Attempts)
	return o, err
}

// GetOtp returns a user's pending passcode, or nil if there is none.
func GetOtp(ctx context.Context, db *sql.DB, userID int64) (*model.OtpEntry, error) {
	o, err := scanOtp(db.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otp WHERE user_id = ?`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting otp: %w", err)
	}
	return o, nil
}

// SaveOtp replaces a user's pending passcode, bumps the send count and
// clears the failed attempts.
func SaveOtp(ctx context.Context, db *sql.DB, o *model.OtpEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO otp (user_id, phone, code_hash, created_at, sent_at, send_count) VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (user_id) DO UPDATE SET phone = excluded.phone, code_hash = excluded.code_hash,
		     created_at = excluded.created_at, sent_at = excluded.sent_at, send_count = otp.send_count + 1, attempts = 0`,
		o.UserID, o.Phone, o.CodeHash, o.CreatedAt.UTC(), o.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving otp: %w", err)
	}
	return nil
}

// RecordOtpFailure counts an incorrect code against the passcode issued at
// createdAt and returns the attempts so far. It returns 0 when that passcode
// is gone or was replaced.
func RecordOtpFailure(ctx context.Context, db *sql.DB, userID int64, createdAt time.Time) (int, error) {
	var attempts int
	err := db.QueryRowContext(ctx,
		`UPDATE otp SET attempts = attempts + 1 WHERE user_id = ? AND created_at = ? RETURNING attempts`,
		userID, createdAt.UTC(),
	).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("recording otp failure: %w", err)
	}
	return attempts, nil
}

// DeleteOtp removes a user's pending passcode.
func DeleteOtp(ctx context.Context, db *sql.DB, userID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM otp WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting otp: %w", err)
	}
	return nil
}

// DeleteStaleOtps removes passcodes issued before the given time and returns
// how many were deleted.
func DeleteStaleOtps(ctx context.Context, db *sql.DB, before time.Time) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+otpColumns+` FROM otp`)
	if err != nil {
		return 0, fmt.Errorf("listing otps: %w", err)
	}
	var stale []model.OtpEntry
	for rows.Next() {
		o, err := scanOtp(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning otp: %w", err)
		}
		if o.CreatedAt.Before(before) {
			stale = append(stale, *o)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing otps: %w", err)
	}

	n, err := deleteOtps(ctx, tx, stale)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing otp cleanup: %w", err)
	}
	return n, nil
}

// deleteOtps removes the given passcodes unless a new one was issued since
// they were read.
func deleteOtps(ctx context.Context, e execer, otps []model.OtpEntry) (int, error) {
	deleted := 0
	for _, o := range otps {
		res, err := e.ExecContext(ctx,
			`DELETE FROM otp WHERE user_id = ? AND created_at = ?`, o.UserID, o.CreatedAt.UTC())
		if err != nil {
			return 0, fmt.Errorf("deleting otp: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}
	return deleted, nil
}
