package model

import "time"

// Ban prevents a user from enrolling in or receiving any equipment until EndsOn.
type Ban struct {
	UserID    int64     `json:"user_id"`
	EndsOn    time.Time `json:"ends_on"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the ban is still in force at now.
func (b *Ban) Active(now time.Time) bool {
	return b != nil && now.Before(b.EndsOn)
}

// OtpEntry is a pending one-time passcode for a user. Only the bcrypt hash
// of the code is kept.
type OtpEntry struct {
	UserID    int64
	Phone     string
	CodeHash  string
	CreatedAt time.Time
	SentAt    time.Time
	SendCount int

	// Attempts counts incorrect codes entered since the code was sent.
	Attempts int
}
