// Package queue builds the annotated view of an item's holders and waiters.
package queue

import (
	"sort"

	"github.com/ppissanetzky/barcode-sub000/internal/age"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// Have is a user who currently holds the item.
type Have struct {
	model.QueueEntry
	User *model.User `json:"user,omitempty"`

	Days    int    `json:"days"`
	Age     string `json:"age"`
	Overdue bool   `json:"overdue"`

	IsAvailable   bool `json:"is_available"`
	DaysAvailable int  `json:"days_available,omitempty"`
}

// Exempt reports whether the holder may keep the item indefinitely.
func (h *Have) Exempt() bool {
	return h.User != nil && h.User.CanHoldEquipment
}

// Waiter is a user enrolled and waiting for the item.
type Waiter struct {
	model.QueueEntry
	User *model.User `json:"user,omitempty"`

	// Position is 1 for the first in line.
	Position int    `json:"position"`
	Waiting  string `json:"waiting"`

	// ETA is empty when nobody holds the item.
	ETA     string `json:"eta,omitempty"`
	ETADays *int   `json:"eta_days,omitempty"`
}

// View is an item with its current holders and waiters, in queue order.
type View struct {
	Item    model.Item `json:"item"`
	Haves   []Have     `json:"haves"`
	Waiters []Waiter   `json:"waiters"`
}

// HasIt reports whether userID holds the item.
func (v *View) HasIt(userID int64) bool {
	for i := range v.Haves {
		if v.Haves[i].UserID == userID {
			return true
		}
	}
	return false
}

// IsWaiting reports whether userID is waiting for the item.
func (v *View) IsWaiting(userID int64) bool {
	for i := range v.Waiters {
		if v.Waiters[i].UserID == userID {
			return true
		}
	}
	return false
}

// Have returns userID's holding entry, or nil.
func (v *View) Have(userID int64) *Have {
	for i := range v.Haves {
		if v.Haves[i].UserID == userID {
			return &v.Haves[i]
		}
	}
	return nil
}

// Entry returns userID's queue entry, holding or waiting, or nil.
func (v *View) Entry(userID int64) *model.QueueEntry {
	if h := v.Have(userID); h != nil {
		return &h.QueueEntry
	}
	for i := range v.Waiters {
		if v.Waiters[i].UserID == userID {
			return &v.Waiters[i].QueueEntry
		}
	}
	return nil
}

// FirstWaiter returns the waiter at the front of the line, or nil.
func (v *View) FirstWaiter() *Waiter {
	if len(v.Waiters) == 0 {
		return nil
	}
	return &v.Waiters[0]
}

// InitialWaits returns, for each holder, the days until they are expected to
// release the item: zero when already available, otherwise what is left of
// maxDays. The result is sorted ascending.
func InitialWaits(haves []Have, maxDays int) []int {
	waits := make([]int, 0, len(haves))
	for i := range haves {
		w := 0
		if !haves[i].IsAvailable {
			w = max(maxDays-haves[i].Days, 0)
		}
		waits = append(waits, w)
	}
	sort.Ints(waits)
	return waits
}

// EstimateWaits assigns a wait to each of n waiters in queue order. Each
// waiter takes the smallest remaining wait; once they receive the item they
// hold it for up to maxDays, so wait+maxDays goes back into the pipeline.
// With no holders there is nothing to estimate and nil is returned.
func EstimateWaits(waits []int, n, maxDays int) []int {
	if len(waits) == 0 {
		return nil
	}
	pipeline := append([]int(nil), waits...)
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		// Values are appended in non-decreasing order, so the front
		// is always the smallest.
		w := pipeline[0]
		pipeline = append(pipeline[1:], w+maxDays)
		out = append(out, w)
	}
	return out
}

func annotateETAs(v *View) {
	waits := EstimateWaits(InitialWaits(v.Haves, v.Item.MaxDays), len(v.Waiters), v.Item.MaxDays)
	for i, w := range waits {
		v.Waiters[i].ETA = age.ETA(w)
		v.Waiters[i].ETADays = &waits[i]
	}
}
