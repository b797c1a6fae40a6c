package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/db"
)

func TestCreateAndGetItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alert := 5
	item, err := CreateItem(ctx, database, ItemParams{
		Name:          "Refractometer",
		Description:   "Digital salinity meter",
		MaxDays:       14,
		AlertStartDay: &alert,
		ThreadID:      42,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Name != "Refractometer" || item.MaxDays != 14 || item.ThreadID != 42 {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.AlertStartDay == nil || *item.AlertStartDay != 5 {
		t.Errorf("expected alert start day 5, got %v", item.AlertStartDay)
	}

	got, err := GetItem(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got == nil || got.ID != item.ID {
		t.Fatalf("expected item %d, got %+v", item.ID, got)
	}
}

func TestGetItemNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	item, err := GetItem(context.Background(), database, 999)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item != nil {
		t.Error("expected nil for missing item")
	}
}

func TestCreateItemValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	zero := 0
	tests := []struct {
		name string
		p    ItemParams
	}{
		{"no name", ItemParams{MaxDays: 10}},
		{"zero max days", ItemParams{Name: "Doser"}},
		{"zero alert day", ItemParams{Name: "Doser", MaxDays: 10, AlertStartDay: &zero}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateItem(ctx, database, tt.p); !errors.Is(err, ErrInvalidItem) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := mustCreateItem(t, database, "Doser", 10)

	if err := UpdateItem(ctx, database, item.ID, ItemParams{Name: "Dosing pump", MaxDays: 21}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	got, _ := GetItem(ctx, database, item.ID)
	if got.Name != "Dosing pump" || got.MaxDays != 21 || got.AlertStartDay != nil {
		t.Errorf("unexpected item after update: %+v", got)
	}

	err := UpdateItem(ctx, database, 999, ItemParams{Name: "x", MaxDays: 1})
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestItemImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item := mustCreateItem(t, database, "Doser", 10)

	img, mime, err := GetItemImage(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItemImage: %v", err)
	}
	if img != nil || mime != "" {
		t.Error("expected no image")
	}

	if err := SetItemImage(ctx, database, item.ID, []byte{1, 2, 3}, "image/jpeg"); err != nil {
		t.Fatalf("SetItemImage: %v", err)
	}
	img, mime, _ = GetItemImage(ctx, database, item.ID)
	if len(img) != 3 || mime != "image/jpeg" {
		t.Errorf("unexpected image %v %q", img, mime)
	}
}

func TestListItemsForUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustCreateItem(t, database, "A", 10)
	b := mustCreateItem(t, database, "B", 10)
	mustCreateItem(t, database, "C", 10)

	now := time.Now()
	mustHold(t, database, a.ID, 1, now.Add(-48*time.Hour))
	mustEnqueue(t, database, b.ID, 1, now)

	items, err := ListItemsForUser(ctx, database, 1)
	if err != nil {
		t.Fatalf("ListItemsForUser: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	want := map[string][2]bool{
		"A": {true, true},
		"B": {true, false},
		"C": {false, false},
	}
	for _, it := range items {
		w := want[it.Name]
		if it.InList != w[0] || it.HasIt != w[1] {
			t.Errorf("%s: in_list=%v has_it=%v, want %v", it.Name, it.InList, it.HasIt, w)
		}
	}

	// Another user sees nothing.
	items, _ = ListItemsForUser(ctx, database, 2)
	for _, it := range items {
		if it.InList || it.HasIt {
			t.Errorf("user 2 should not be in %s", it.Name)
		}
	}
}
