package model

// User is a forum member as seen by the equipment program.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`

	// CanHoldEquipment marks users allowed to hold equipment indefinitely.
	// They are never overdue, never banned and skip phone verification.
	CanHoldEquipment bool `json:"can_hold_equipment"`

	// Allowed reports whether the user may take part in the program at all.
	Allowed bool `json:"allowed"`
}

// Holder is an entry of the forum's equipment holders list.
type Holder struct {
	UserID   int64  `json:"user_id"`
	Location string `json:"location,omitempty"`
}
