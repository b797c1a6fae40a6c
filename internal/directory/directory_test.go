package directory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/cache"
	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

const forumSchema = `
CREATE TABLE xf_user (
    user_id             INTEGER PRIMARY KEY,
    username            TEXT NOT NULL,
    user_group_id       INTEGER NOT NULL,
    secondary_group_ids BLOB NOT NULL DEFAULT '',
    is_banned           INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE xf_user_profile (
    user_id  INTEGER PRIMARY KEY,
    location TEXT
);
INSERT INTO xf_user VALUES (1, 'alice', 2, '5,31', 0);
INSERT INTO xf_user VALUES (2, 'bob', 2, '5', 0);
INSERT INTO xf_user VALUES (3, 'carol', 2, '', 0);
INSERT INTO xf_user VALUES (4, 'dave', 31, '', 1);
INSERT INTO xf_user VALUES (5, 'erin', 2, '131', 0);
INSERT INTO xf_user_profile VALUES (1, 'Austin, TX');
INSERT INTO xf_user_profile VALUES (2, 'Dallas, TX');
`

// newForumDB returns an in-memory stand-in for the forum database.
func newForumDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })
	if _, err := database.Exec(forumSchema); err != nil {
		t.Fatalf("creating forum schema: %v", err)
	}
	return database
}

func TestLookupUser(t *testing.T) {
	x := NewXenForo(newForumDB(t), 31, []int64{5})
	ctx := context.Background()

	tests := []struct {
		id   int64
		want *model.User
	}{
		{1, &model.User{ID: 1, Name: "alice", Location: "Austin, TX", CanHoldEquipment: true, Allowed: true}},
		{2, &model.User{ID: 2, Name: "bob", Location: "Dallas, TX", Allowed: true}},
		{3, &model.User{ID: 3, Name: "carol"}},
		{4, &model.User{ID: 4, Name: "dave", CanHoldEquipment: true}},
		{5, &model.User{ID: 5, Name: "erin"}},
		{99, nil},
	}
	for _, tt := range tests {
		u, err := x.LookupUser(ctx, tt.id)
		if err != nil {
			t.Fatalf("LookupUser(%d): %v", tt.id, err)
		}
		if tt.want == nil {
			if u != nil {
				t.Errorf("user %d: expected nil, got %+v", tt.id, u)
			}
			continue
		}
		if u == nil || *u != *tt.want {
			t.Errorf("user %d: got %+v, want %+v", tt.id, u, tt.want)
		}
	}
}

func TestLookupUserNoAllowedGroups(t *testing.T) {
	x := NewXenForo(newForumDB(t), 31, nil)

	u, _ := x.LookupUser(context.Background(), 3)
	if !u.Allowed {
		t.Error("expected every member to be allowed")
	}
	u, _ = x.LookupUser(context.Background(), 4)
	if u.Allowed {
		t.Error("forum-banned member should not be allowed")
	}
}

func TestFindHolders(t *testing.T) {
	x := NewXenForo(newForumDB(t), 31, nil)

	holders, err := x.FindHolders(context.Background())
	if err != nil {
		t.Fatalf("FindHolders: %v", err)
	}
	// dave is banned on the forum and erin's group 131 only looks similar.
	if len(holders) != 1 || holders[0] != (model.Holder{UserID: 1, Location: "Austin, TX"}) {
		t.Errorf("unexpected holders: %+v", holders)
	}
}

type countingDirectory struct {
	Directory
	lookups int
	holders int
}

func (c *countingDirectory) LookupUser(ctx context.Context, id int64) (*model.User, error) {
	c.lookups++
	return c.Directory.LookupUser(ctx, id)
}

func (c *countingDirectory) FindHolders(ctx context.Context) ([]model.Holder, error) {
	c.holders++
	return c.Directory.FindHolders(ctx)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{Directory: NewXenForo(newForumDB(t), 31, nil)}
	c := NewCached(inner, cache.NewMemory(16), time.Minute)

	for i := 0; i < 3; i++ {
		u, err := c.LookupUser(ctx, 1)
		if err != nil || u == nil || u.Name != "alice" {
			t.Fatalf("LookupUser: %+v %v", u, err)
		}
		if u, _ := c.LookupUser(ctx, 99); u != nil {
			t.Fatalf("expected nil for unknown user, got %+v", u)
		}
		if h, _ := c.FindHolders(ctx); len(h) != 1 {
			t.Fatalf("expected 1 holder, got %v", h)
		}
	}
	if inner.lookups != 2 || inner.holders != 1 {
		t.Errorf("expected 2 lookups and 1 holders call, got %d and %d", inner.lookups, inner.holders)
	}

	if err := c.Forget(ctx, 1); err != nil {
		t.Fatal(err)
	}
	c.LookupUser(ctx, 1)
	if inner.lookups != 3 {
		t.Errorf("expected lookup after Forget, got %d", inner.lookups)
	}
}
