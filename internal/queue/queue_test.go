package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/age"
	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

type fakeDirectory struct {
	users   map[int64]*model.User
	holders []model.Holder
	err     error
}

func (f *fakeDirectory) LookupUser(_ context.Context, id int64) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func (f *fakeDirectory) FindHolders(context.Context) ([]model.Holder, error) {
	return f.holders, nil
}

var testNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.Add(-time.Duration(n) * age.Day)
	return &t
}

type fixture struct {
	db        *sql.DB
	dir       *fakeDirectory
	projector *Projector
	item      *model.Item
}

func newFixture(t *testing.T, maxDays int) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	item, err := store.CreateItem(context.Background(), database, store.ItemParams{Name: "Doser", MaxDays: maxDays})
	if err != nil {
		t.Fatal(err)
	}
	dir := &fakeDirectory{users: map[int64]*model.User{}}
	p := NewProjector(database, dir)
	p.Now = func() time.Time { return testNow }
	return &fixture{db: database, dir: dir, projector: p, item: item}
}

// add puts a user in the queue. received and done may be nil.
func (f *fixture) add(t *testing.T, userID int64, added, received, done *time.Time) {
	t.Helper()
	f.dir.users[userID] = &model.User{ID: userID, Name: "user", Location: "Austin", Allowed: true}

	var r, d any
	if received != nil {
		r = received.UTC()
	}
	if done != nil {
		d = done.UTC()
	}
	if _, err := f.db.Exec(
		`INSERT INTO queue (item_id, user_id, location, added_at, date_received, date_done) VALUES (?, ?, 'Austin', ?, ?, ?)`,
		f.item.ID, userID, added.UTC(), r, d,
	); err != nil {
		t.Fatalf("inserting entry: %v", err)
	}
}

func (f *fixture) build(t *testing.T) *View {
	t.Helper()
	v, err := f.projector.Build(context.Background(), f.item.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return v
}

func TestBuildMissingItem(t *testing.T) {
	f := newFixture(t, 10)
	v, err := f.projector.Build(context.Background(), 999)
	if err != nil || v != nil {
		t.Errorf("expected nil view, got %v %v", v, err)
	}
}

func TestOverdueHolder(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(20), daysAgo(12), nil)

	v := f.build(t)
	if len(v.Haves) != 1 {
		t.Fatalf("expected 1 have, got %d", len(v.Haves))
	}
	h := v.Haves[0]
	if !h.Overdue || h.Days != 12 || h.IsAvailable {
		t.Errorf("unexpected have: %+v", h)
	}
	if h.Age != "12 days" {
		t.Errorf("expected age %q, got %q", "12 days", h.Age)
	}
}

func TestExemptHolderNeverOverdue(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(90), daysAgo(60), nil)
	f.dir.users[1].CanHoldEquipment = true

	v := f.build(t)
	if v.Haves[0].Overdue {
		t.Error("exempt holder should not be overdue")
	}
}

func TestETAScenario(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(30), daysAgo(8), daysAgo(2))
	f.add(t, 2, daysAgo(5), nil, nil)
	f.add(t, 3, daysAgo(3), nil, nil)

	v := f.build(t)
	if !v.Haves[0].IsAvailable || v.Haves[0].DaysAvailable != 2 {
		t.Fatalf("unexpected have: %+v", v.Haves[0])
	}
	if got := InitialWaits(v.Haves, 10); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected waits [0], got %v", got)
	}

	want := []struct {
		user int64
		eta  string
		days int
	}{
		{2, "soon", 0},
		{3, "in about 10 days", 10},
	}
	for i, w := range want {
		got := v.Waiters[i]
		if got.UserID != w.user || got.Position != i+1 || got.ETA != w.eta || *got.ETADays != w.days {
			t.Errorf("waiter %d: got user %d eta %q days %v", i, got.UserID, got.ETA, *got.ETADays)
		}
	}
}

func TestNoHavesNoETAs(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(5), nil, nil)
	f.add(t, 2, daysAgo(3), nil, nil)

	v := f.build(t)
	for _, w := range v.Waiters {
		if w.ETA != "" || w.ETADays != nil {
			t.Errorf("waiter %d should have no ETA, got %q", w.UserID, w.ETA)
		}
	}
}

func TestEstimateWaits(t *testing.T) {
	tests := []struct {
		name    string
		waits   []int
		n       int
		maxDays int
		want    []int
	}{
		{"no holders", nil, 3, 10, nil},
		{"single available", []int{0}, 2, 10, []int{0, 10}},
		{"two holders", []int{3, 7}, 4, 10, []int{3, 7, 13, 17}},
		{"no waiters", []int{4}, 0, 10, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateWaits(tt.waits, tt.n, tt.maxDays)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestInitialWaitsOnePerHolder(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(20), daysAgo(4), nil)
	f.add(t, 2, daysAgo(20), daysAgo(15), nil)
	f.add(t, 3, daysAgo(20), daysAgo(1), daysAgo(0))
	f.add(t, 4, daysAgo(2), nil, nil)

	v := f.build(t)
	waits := InitialWaits(v.Haves, 10)
	want := []int{0, 0, 6}
	if len(waits) != len(v.Haves) {
		t.Fatalf("expected %d waits, got %v", len(v.Haves), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("expected %v, got %v", want, waits)
		}
	}
	if *v.Waiters[0].ETADays != 0 {
		t.Errorf("first waiter should get the smallest wait, got %d", *v.Waiters[0].ETADays)
	}
}

func TestUnknownUsersKeepTheirPlace(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(5), nil, nil)
	f.add(t, 2, daysAgo(3), nil, nil)
	delete(f.dir.users, 1)

	v := f.build(t)
	if len(v.Waiters) != 2 || v.Waiters[0].User != nil || v.Waiters[1].Position != 2 {
		t.Errorf("unexpected waiters: %+v", v.Waiters)
	}
}

func TestBuildDirectoryError(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(5), nil, nil)
	f.dir.err = errors.New("forum database down")

	if _, err := f.projector.Build(context.Background(), f.item.ID); err == nil {
		t.Error("expected error")
	}
}

func TestViewPredicates(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(5), daysAgo(2), nil)
	f.add(t, 2, daysAgo(3), nil, nil)

	v := f.build(t)
	if !v.HasIt(1) || v.HasIt(2) || !v.IsWaiting(2) || v.IsWaiting(1) {
		t.Error("unexpected predicates")
	}
	if e := v.Entry(2); e == nil || e.UserID != 2 {
		t.Errorf("unexpected entry %+v", e)
	}
	if v.Entry(3) != nil || v.Have(2) != nil {
		t.Error("expected no entry")
	}
	if w := v.FirstWaiter(); w == nil || w.UserID != 2 {
		t.Errorf("unexpected first waiter %+v", w)
	}
}

func TestRecipients(t *testing.T) {
	f := newFixture(t, 10)
	f.add(t, 1, daysAgo(5), daysAgo(2), nil)
	f.add(t, 2, daysAgo(3), nil, nil)

	f.dir.users[10] = &model.User{ID: 10, CanHoldEquipment: true, Allowed: true, Location: "Houston"}
	f.dir.users[11] = &model.User{ID: 11, CanHoldEquipment: false, Allowed: true}
	f.dir.users[12] = &model.User{ID: 12, CanHoldEquipment: true, Allowed: false}
	f.dir.holders = []model.Holder{
		{UserID: 1}, {UserID: 2}, {UserID: 10}, {UserID: 11}, {UserID: 12}, {UserID: 13},
	}

	v := f.build(t)
	got, err := f.projector.Recipients(context.Background(), v)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %+v", got)
	}
	if got[0].UserID != 2 || !got[0].Waiting {
		t.Errorf("expected waiter first, got %+v", got[0])
	}
	if got[1].UserID != 10 || got[1].Waiting || got[1].Location != "Houston" {
		t.Errorf("unexpected holder recipient %+v", got[1])
	}
}
