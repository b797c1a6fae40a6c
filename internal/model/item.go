package model

import "time"

// Item is one physical piece of shared equipment.
type Item struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// MaxDays is the fair-use holding duration.
	MaxDays int `json:"max_days"`

	// AlertStartDay is the number of days after which a holder starts
	// receiving overdue reminders. Nil disables reminders.
	AlertStartDay *int `json:"alert_start_day,omitempty"`

	// ThreadID is the forum thread that receives announcements for the item.
	ThreadID int64 `json:"thread_id,omitempty"`

	ImageMime string    `json:"image_mime,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserItem is an item annotated for a specific user.
type UserItem struct {
	Item
	InList bool `json:"in_list"`
	HasIt  bool `json:"has_it"`
}
