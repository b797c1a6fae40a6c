// Package ban decides whether a holder who just handed an item off should be
// barred from the equipment program for a while.
package ban

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppissanetzky/barcode-sub000/internal/age"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// Policy evaluates a user's complete hold history after a transfer. It
// returns nil when the user should not be banned.
type Policy interface {
	Evaluate(userID int64, history []model.HistoryRecord, exempt bool, now time.Time) *model.Ban
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(userID int64, history []model.HistoryRecord, exempt bool, now time.Time) *model.Ban

func (f PolicyFunc) Evaluate(userID int64, history []model.HistoryRecord, exempt bool, now time.Time) *model.Ban {
	return f(userID, history, exempt, now)
}

// Never is the policy that bans nobody.
var Never Policy = never{}

type never struct{}

func (never) Evaluate(int64, []model.HistoryRecord, bool, time.Time) *model.Ban { return nil }

// Rule bans a user for BanDays once they have returned OverdueHolds items
// late within the last WindowDays. A hold is late when it lasted more than
// the item's limit plus GraceDays.
type Rule struct {
	OverdueHolds int `yaml:"overdue_holds"`
	WindowDays   int `yaml:"window_days"`
	GraceDays    int `yaml:"grace_days"`
	BanDays      int `yaml:"ban_days"`
}

func (r Rule) validate() error {
	switch {
	case r.OverdueHolds <= 0:
		return fmt.Errorf("overdue_holds must be positive")
	case r.WindowDays <= 0:
		return fmt.Errorf("window_days must be positive")
	case r.GraceDays < 0:
		return fmt.Errorf("grace_days must not be negative")
	case r.BanDays <= 0:
		return fmt.Errorf("ban_days must be positive")
	}
	return nil
}

// Threshold applies a list of rules. When several match, the longest ban wins.
type Threshold struct {
	Rules []Rule `yaml:"rules"`
}

// ParseThreshold reads a threshold policy from YAML.
func ParseThreshold(data []byte) (*Threshold, error) {
	var t Threshold
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing ban policy: %w", err)
	}
	for i, r := range t.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("ban rule %d: %w", i+1, err)
		}
	}
	return &t, nil
}

// LoadThreshold reads a threshold policy from a YAML file.
func LoadThreshold(path string) (*Threshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ban policy: %w", err)
	}
	return ParseThreshold(data)
}

// Load returns the policy in path, or Never when path is empty.
func Load(path string) (Policy, error) {
	if path == "" {
		return Never, nil
	}
	t, err := LoadThreshold(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Threshold) Evaluate(userID int64, history []model.HistoryRecord, exempt bool, now time.Time) *model.Ban {
	if exempt {
		return nil
	}

	var best *Rule
	var bestCount int
	for i := range t.Rules {
		r := &t.Rules[i]
		n := r.overdue(history, now)
		if n < r.OverdueHolds {
			continue
		}
		if best == nil || r.BanDays > best.BanDays {
			best, bestCount = r, n
		}
	}
	if best == nil {
		return nil
	}

	return &model.Ban{
		UserID:    userID,
		EndsOn:    now.Add(time.Duration(best.BanDays) * age.Day),
		Reason:    fmt.Sprintf("%d late returns in the last %d days", bestCount, best.WindowDays),
		CreatedAt: now,
	}
}

func (r *Rule) overdue(history []model.HistoryRecord, now time.Time) int {
	n := 0
	for i := range history {
		h := &history[i]
		if h.Days <= h.MaxDays+r.GraceDays {
			continue
		}
		if age.DaysBetween(h.EndDate(), now) > r.WindowDays {
			continue
		}
		n++
	}
	return n
}
