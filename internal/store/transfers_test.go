package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

func TestTransferToWaiter(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	item := mustCreateItem(t, database, "Doser", 10)

	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	mustHold(t, database, item.ID, 1, now.Add(-12*24*time.Hour))
	mustEnqueue(t, database, item.ID, 2, now.Add(-5*24*time.Hour))

	res, err := TransferItem(ctx, database, TransferParams{
		ItemID: item.ID, FromUserID: 1, ToUserID: 2, Now: now,
	})
	if err != nil {
		t.Fatalf("TransferItem: %v", err)
	}
	if res.History.Days != 12 || res.History.MaxDays != 10 || res.History.UserID != 1 {
		t.Errorf("unexpected history: %+v", res.History)
	}
	if res.Ban != nil {
		t.Error("expected no ban without a policy")
	}

	src, _ := GetQueueEntry(ctx, database, item.ID, 1)
	if src != nil {
		t.Error("source entry should be deleted")
	}
	dst, _ := GetQueueEntry(ctx, database, item.ID, 2)
	if dst == nil || !dst.Holding() || !dst.DateReceived.Equal(now) || dst.DateDone != nil {
		t.Errorf("unexpected destination entry: %+v", dst)
	}
	if dst.Location != "Austin" {
		t.Errorf("destination kept location %q", dst.Location)
	}

	history, _ := ListItemHistory(ctx, database, item.ID)
	if len(history) != 1 || !history[0].StartDate.Equal(now.Add(-12*24*time.Hour)) {
		t.Errorf("unexpected item history: %+v", history)
	}
}

func TestTransferCreatesDestinationEntry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	item := mustCreateItem(t, database, "Doser", 10)

	now := time.Now()
	mustHold(t, database, item.ID, 1, now.Add(-24*time.Hour))

	if _, err := TransferItem(ctx, database, TransferParams{
		ItemID: item.ID, FromUserID: 1, ToUserID: 7, ToLocation: "Dallas", Now: now,
	}); err != nil {
		t.Fatalf("TransferItem: %v", err)
	}

	dst, _ := GetQueueEntry(ctx, database, item.ID, 7)
	if dst == nil || !dst.Holding() || dst.Location != "Dallas" {
		t.Errorf("unexpected destination entry: %+v", dst)
	}
}

func TestTransferErrors(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	item := mustCreateItem(t, database, "Doser", 10)

	now := time.Now()
	mustHold(t, database, item.ID, 1, now)
	mustHold(t, database, item.ID, 2, now)
	mustEnqueue(t, database, item.ID, 3, now)
	if err := SaveBan(ctx, database, &model.Ban{UserID: 4, EndsOn: now.Add(24 * time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("SaveBan: %v", err)
	}

	tests := []struct {
		name     string
		itemID   int64
		from, to int64
		want     error
	}{
		{"missing item", 999, 1, 3, ErrItemNotFound},
		{"source waiting", item.ID, 3, 5, ErrNotHolding},
		{"source absent", item.ID, 9, 3, ErrNotHolding},
		{"destination holding", item.ID, 1, 2, ErrAlreadyHolding},
		{"destination banned", item.ID, 1, 4, ErrBanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TransferItem(ctx, database, TransferParams{
				ItemID: tt.itemID, FromUserID: tt.from, ToUserID: tt.to, Now: now,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := TransferItem(ctx, database, TransferParams{
		ItemID: item.ID, FromUserID: 1, ToUserID: 1, Now: now,
	}); err == nil {
		t.Error("expected error for transfer to self")
	}

	// Nothing changed.
	entries, _ := GetQueue(ctx, database, item.ID)
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
	history, _ := ListItemHistory(ctx, database, item.ID)
	if len(history) != 0 {
		t.Errorf("expected no history, got %d", len(history))
	}
}

func TestTransferRecordsBan(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	item := mustCreateItem(t, database, "Doser", 10)

	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	mustHold(t, database, item.ID, 1, now.Add(-30*24*time.Hour))
	mustEnqueue(t, database, item.ID, 2, now)

	var seen []model.HistoryRecord
	res, err := TransferItem(ctx, database, TransferParams{
		ItemID: item.ID, FromUserID: 1, ToUserID: 2, Now: now,
		Evaluate: func(history []model.HistoryRecord) *model.Ban {
			seen = history
			return &model.Ban{EndsOn: now.Add(30 * 24 * time.Hour), Reason: "overdue"}
		},
	})
	if err != nil {
		t.Fatalf("TransferItem: %v", err)
	}
	if len(seen) != 1 || seen[0].Days != 30 {
		t.Errorf("policy saw %+v", seen)
	}
	if res.Ban == nil || res.Ban.UserID != 1 {
		t.Fatalf("expected ban for user 1, got %+v", res.Ban)
	}

	ban, err := GetBan(ctx, database, 1)
	if err != nil {
		t.Fatalf("GetBan: %v", err)
	}
	if !ban.Active(now) || ban.Reason != "overdue" {
		t.Errorf("unexpected stored ban: %+v", ban)
	}
}

func TestTransferKeepsLongerBan(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	item := mustCreateItem(t, database, "Doser", 10)

	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	long := now.Add(60 * 24 * time.Hour)
	if err := SaveBan(ctx, database, &model.Ban{UserID: 1, EndsOn: long, Reason: "lost parts", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	mustHold(t, database, item.ID, 1, now.Add(-12*24*time.Hour))
	mustEnqueue(t, database, item.ID, 2, now)

	res, err := TransferItem(ctx, database, TransferParams{
		ItemID: item.ID, FromUserID: 1, ToUserID: 2, Now: now,
		Evaluate: func([]model.HistoryRecord) *model.Ban {
			return &model.Ban{EndsOn: now.Add(7 * 24 * time.Hour), Reason: "overdue"}
		},
	})
	if err != nil {
		t.Fatalf("TransferItem: %v", err)
	}
	if res.Ban != nil {
		t.Errorf("shorter ban should not be reported, got %+v", res.Ban)
	}
	ban, _ := GetBan(ctx, database, 1)
	if ban == nil || !ban.EndsOn.Equal(long) || ban.Reason != "lost parts" {
		t.Errorf("longer ban should remain, got %+v", ban)
	}
}
