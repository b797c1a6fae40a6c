package settings

import (
	"context"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(context.Background(), db.NewTestDB(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Values() != Defaults() {
		t.Errorf("expected defaults, got %+v", s.Values())
	}
	if !s.StrictOrder() {
		t.Error("transfers should follow queue order by default")
	}
	if s.OtpValidity() != 15*time.Minute || s.OtpCooldown() != time.Minute {
		t.Errorf("unexpected otp windows %v %v", s.OtpValidity(), s.OtpCooldown())
	}
}

func TestUpdatePersists(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)

	s, _ := Load(ctx, database)
	v := s.Values()
	v.MaxDistanceCandidates = 5
	v.StrictOrder = false
	v.ModerationThreadID = 77
	if err := s.Update(ctx, v); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.StrictOrder() || s.MaxDistanceCandidates() != 5 {
		t.Error("update not applied")
	}

	reloaded, err := Load(ctx, database)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Values() != v {
		t.Errorf("expected %+v, got %+v", v, reloaded.Values())
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s, _ := Load(ctx, db.NewTestDB(t))

	tests := []struct {
		name   string
		mutate func(*Values)
	}{
		{"zero candidates", func(v *Values) { v.MaxDistanceCandidates = 0 }},
		{"zero validity", func(v *Values) { v.OtpValidityMinutes = 0 }},
		{"cooldown longer than validity", func(v *Values) { v.OtpCooldownMinutes = 30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Values()
			tt.mutate(&v)
			if err := s.Update(ctx, v); err == nil {
				t.Error("expected validation error")
			}
			if s.Values() != Defaults() {
				t.Error("invalid update should not apply")
			}
		})
	}
}

func TestLoadRejectsBadStoredValue(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)
	if err := store.SetSetting(ctx, database, "strict_order", "maybe"); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(ctx, database); err == nil {
		t.Error("expected error for unparsable setting")
	}
}
