package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppissanetzky/barcode-sub000/internal/age"
	"github.com/ppissanetzky/barcode-sub000/internal/directory"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// defaultLookups bounds concurrent directory lookups per view.
const defaultLookups = 8

// Projector builds views from the store and the user directory.
type Projector struct {
	db  *sql.DB
	dir directory.Directory

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Lookups bounds concurrent directory calls.
	Lookups int
}

// NewProjector creates a projector.
func NewProjector(db *sql.DB, dir directory.Directory) *Projector {
	return &Projector{db: db, dir: dir, Now: time.Now, Lookups: defaultLookups}
}

// Build returns the view of an item, or nil if the item does not exist.
// Queue users the directory does not know are kept with a nil User.
func (p *Projector) Build(ctx context.Context, itemID int64) (*View, error) {
	item, err := store.GetItem(ctx, p.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	entries, err := store.GetQueue(ctx, p.db, itemID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].UserID
	}
	users, err := p.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	return project(item, entries, users, p.Now()), nil
}

// project is the pure part of Build. users is parallel to entries.
func project(item *model.Item, entries []model.QueueEntry, users []*model.User, now time.Time) *View {
	v := &View{Item: *item, Haves: []Have{}, Waiters: []Waiter{}}

	for i, e := range entries {
		if e.Holding() {
			h := Have{
				QueueEntry: e,
				User:       users[i],
				Days:       age.DaysBetween(*e.DateReceived, now),
				Age:        age.Age(*e.DateReceived, now),
			}
			h.Overdue = !h.Exempt() && h.Days > item.MaxDays
			if e.DateDone != nil {
				h.IsAvailable = true
				h.DaysAvailable = age.DaysBetween(*e.DateDone, now)
			}
			v.Haves = append(v.Haves, h)
			continue
		}
		v.Waiters = append(v.Waiters, Waiter{
			QueueEntry: e,
			User:       users[i],
			Position:   len(v.Waiters) + 1,
			Waiting:    age.Age(e.AddedAt, now),
		})
	}

	annotateETAs(v)
	return v
}

// lookup resolves ids concurrently. The result is parallel to ids.
func (p *Projector) lookup(ctx context.Context, ids []int64) ([]*model.User, error) {
	users := make([]*model.User, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Lookups, 1))
	for i, id := range ids {
		g.Go(func() error {
			u, err := p.dir.LookupUser(ctx, id)
			if err != nil {
				return fmt.Errorf("resolving user %d: %w", id, err)
			}
			users[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}

// Recipient is someone the item can be handed to.
type Recipient struct {
	UserID   int64       `json:"user_id"`
	User     *model.User `json:"user,omitempty"`
	Location string      `json:"location,omitempty"`

	// Waiting is false for holders-list members who never enrolled.
	Waiting bool `json:"waiting"`
}

// Recipients lists everyone who may receive the item: all waiters in queue
// order, then members of the holders list who are not already in the queue
// and are currently eligible to hold equipment.
func (p *Projector) Recipients(ctx context.Context, v *View) ([]Recipient, error) {
	out := make([]Recipient, 0, len(v.Waiters))
	for _, w := range v.Waiters {
		out = append(out, Recipient{UserID: w.UserID, User: w.User, Location: w.Location, Waiting: true})
	}

	holders, err := p.dir.FindHolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding holders: %w", err)
	}

	var candidates []model.Holder
	for _, h := range holders {
		if v.HasIt(h.UserID) || v.IsWaiting(h.UserID) {
			continue
		}
		candidates = append(candidates, h)
	}

	ids := make([]int64, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].UserID
	}
	users, err := p.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i, h := range candidates {
		u := users[i]
		if u == nil || !u.CanHoldEquipment || !u.Allowed {
			continue
		}
		loc := h.Location
		if loc == "" {
			loc = u.Location
		}
		out = append(out, Recipient{UserID: h.UserID, User: u, Location: loc})
	}
	return out, nil
}
