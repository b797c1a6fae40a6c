package store

import (
	"context"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

func TestSaveOtpUpserts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

	if err := SaveOtp(ctx, database, &model.OtpEntry{
		UserID: 1, Phone: "+15550100", CodeHash: "a", CreatedAt: now, SentAt: now,
	}); err != nil {
		t.Fatalf("SaveOtp: %v", err)
	}
	later := now.Add(10 * time.Minute)
	if err := SaveOtp(ctx, database, &model.OtpEntry{
		UserID: 1, Phone: "+15550199", CodeHash: "b", CreatedAt: later, SentAt: later,
	}); err != nil {
		t.Fatalf("SaveOtp: %v", err)
	}

	o, err := GetOtp(ctx, database, 1)
	if err != nil {
		t.Fatalf("GetOtp: %v", err)
	}
	if o.Phone != "+15550199" || o.CodeHash != "b" || o.SendCount != 2 || !o.CreatedAt.Equal(later) {
		t.Errorf("unexpected otp: %+v", o)
	}

	if err := DeleteOtp(ctx, database, 1); err != nil {
		t.Fatalf("DeleteOtp: %v", err)
	}
	if o, _ := GetOtp(ctx, database, 1); o != nil {
		t.Error("expected otp to be deleted")
	}
}

func TestDeleteStaleOtps(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

	for id, created := range map[int64]time.Time{
		1: now.Add(-2 * time.Hour),
		2: now.Add(-10 * time.Minute),
	} {
		if err := SaveOtp(ctx, database, &model.OtpEntry{
			UserID: id, Phone: "+15550100", CodeHash: "x", CreatedAt: created, SentAt: created,
		}); err != nil {
			t.Fatalf("SaveOtp: %v", err)
		}
	}

	n, err := DeleteStaleOtps(ctx, database, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteStaleOtps: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if o, _ := GetOtp(ctx, database, 2); o == nil {
		t.Error("fresh otp should remain")
	}
}

func TestDeleteOtpsKeepsReissuedCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)

	if err := SaveOtp(ctx, database, &model.OtpEntry{
		UserID: 1, Phone: "+15550100", CodeHash: "x", CreatedAt: old, SentAt: old,
	}); err != nil {
		t.Fatalf("SaveOtp: %v", err)
	}
	stale, err := GetOtp(ctx, database, 1)
	if err != nil {
		t.Fatal(err)
	}

	// A new code is sent after the stale one was read.
	if err := SaveOtp(ctx, database, &model.OtpEntry{
		UserID: 1, Phone: "+15550100", CodeHash: "y", CreatedAt: now, SentAt: now,
	}); err != nil {
		t.Fatalf("SaveOtp: %v", err)
	}

	n, err := deleteOtps(ctx, database, []model.OtpEntry{*stale})
	if err != nil {
		t.Fatalf("deleteOtps: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing deleted, got %d", n)
	}
	if o, _ := GetOtp(ctx, database, 1); o == nil || o.CodeHash != "y" {
		t.Errorf("reissued code should remain, got %+v", o)
	}
}

func TestRecordOtpFailure(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

	if n, err := RecordOtpFailure(ctx, database, 1, now); err != nil || n != 0 {
		t.Fatalf("expected 0 without a code, got %d %v", n, err)
	}

	o := &model.OtpEntry{UserID: 1, Phone: "+15550100", CodeHash: "x", CreatedAt: now, SentAt: now}
	if err := SaveOtp(ctx, database, o); err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 2; want++ {
		n, err := RecordOtpFailure(ctx, database, 1, now)
		if err != nil || n != want {
			t.Fatalf("expected %d attempts, got %d %v", want, n, err)
		}
	}

	// A stale read does not count against a newer code.
	later := now.Add(5 * time.Minute)
	o.CreatedAt, o.SentAt = later, later
	if err := SaveOtp(ctx, database, o); err != nil {
		t.Fatal(err)
	}
	if n, _ := RecordOtpFailure(ctx, database, 1, now); n != 0 {
		t.Errorf("expected stale passcode to be ignored, got %d", n)
	}
	if got, _ := GetOtp(ctx, database, 1); got == nil || got.Attempts != 0 {
		t.Errorf("expected attempts reset by a new code, got %+v", got)
	}
}
