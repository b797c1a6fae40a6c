package model

import "time"

// QueueEntry is one user's position regarding one item. A nil DateReceived
// means the user is waiting; a set DateReceived means they hold the item.
type QueueEntry struct {
	ItemID       int64      `json:"item_id"`
	UserID       int64      `json:"user_id"`
	Phone        string     `json:"-"`
	Location     string     `json:"location,omitempty"`
	AddedAt      time.Time  `json:"added_at"`
	DateReceived *time.Time `json:"date_received,omitempty"`
	DateDone     *time.Time `json:"date_done,omitempty"`
}

// Holding reports whether the entry's user currently has the item.
func (e *QueueEntry) Holding() bool {
	return e.DateReceived != nil
}

// Available reports whether the holder has offered the item for hand-off.
func (e *QueueEntry) Available() bool {
	return e.DateReceived != nil && e.DateDone != nil
}

// HistoryRecord is an immutable audit row written when a holder hands an
// item off.
type HistoryRecord struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	UserID    int64     `json:"user_id"`
	StartDate time.Time `json:"start_date"`
	Days      int       `json:"days"`

	// MaxDays is the item's fair-use limit at the time of the hand-off.
	MaxDays   int       `json:"max_days"`
	CreatedAt time.Time `json:"created_at"`
}

// EndDate returns when the hold ended.
func (h *HistoryRecord) EndDate() time.Time {
	return h.CreatedAt
}
