package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/distance"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
	"github.com/ppissanetzky/barcode-sub000/internal/notify"
	"github.com/ppissanetzky/barcode-sub000/internal/queue"
	"github.com/ppissanetzky/barcode-sub000/internal/settings"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// Jobs holds the collaborators of the periodic jobs.
type Jobs struct {
	DB        *sql.DB
	Projector *queue.Projector
	Matrix    distance.Matrix
	Messenger notify.Messenger
	Settings  *settings.Settings

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (j *Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Candidate is a waiter close to an idle holder.
type Candidate struct {
	UserID   int64
	Name     string
	Location string
	Distance string
	Duration time.Duration
	// Travel is the human readable duration.
	Travel string
}

// Offer is an item that has sat idle with a holder, and the waiters it
// could go to.
type Offer struct {
	Have       queue.Have
	Candidates []Candidate
}

// ItemOffers are the offers made for one item.
type ItemOffers struct {
	Item   model.Item
	Offers []Offer
}

// Distribute finds holders who have had an item ready to pass on for longer
// than its lending period and pairs each with the closest waiters. A summary
// is posted to each item's thread. A failing item is logged and skipped.
func (j *Jobs) Distribute(ctx context.Context) ([]ItemOffers, error) {
	if !j.Settings.DistributionEnabled() {
		slog.Info("distribution disabled")
		return nil, nil
	}
	if j.Matrix == nil {
		slog.Warn("distribution skipped, no distance service configured")
		return nil, nil
	}

	items, err := store.ListItems(ctx, j.DB)
	if err != nil {
		return nil, err
	}

	var out []ItemOffers
	for _, item := range items {
		offers, err := j.distributeItem(ctx, item.ID)
		if err != nil {
			metrics.IncSideEffectFailure("distribution")
			slog.Error("distribution failed", "item", item.ID, "error", err)
			continue
		}
		if offers != nil {
			out = append(out, *offers)
		}
	}
	return out, nil
}

func (j *Jobs) distributeItem(ctx context.Context, itemID int64) (*ItemOffers, error) {
	v, err := j.Projector.Build(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("building view: %w", err)
	}
	if v == nil {
		return nil, nil
	}

	var stale []queue.Have
	for _, h := range v.Haves {
		if h.IsAvailable && h.DaysAvailable > v.Item.MaxDays && h.Location != "" {
			stale = append(stale, h)
		}
	}
	var waiters []queue.Waiter
	for _, w := range v.Waiters {
		if w.Location != "" {
			waiters = append(waiters, w)
		}
	}
	if len(stale) == 0 || len(waiters) == 0 {
		return nil, nil
	}

	origins := make([]string, len(stale))
	for i, h := range stale {
		origins[i] = h.Location
	}
	destinations := make([]string, len(waiters))
	for i, w := range waiters {
		destinations[i] = w.Location
	}

	matrix, err := j.Matrix.DistanceMatrix(ctx, origins, destinations)
	if err != nil {
		return nil, fmt.Errorf("getting distances: %w", err)
	}
	if len(matrix) != len(origins) {
		return nil, fmt.Errorf("distance matrix has %d rows for %d origins", len(matrix), len(origins))
	}
	for i, row := range matrix {
		if len(row) != len(destinations) {
			return nil, fmt.Errorf("distance matrix row %d has %d elements for %d destinations", i, len(row), len(destinations))
		}
	}

	assigned := Assign(matrix, len(destinations), j.Settings.MaxDistanceCandidates())

	result := &ItemOffers{Item: v.Item}
	for i, h := range stale {
		offer := Offer{Have: h}
		for _, d := range assigned[i] {
			w := waiters[d]
			el := matrix[i][d]
			offer.Candidates = append(offer.Candidates, Candidate{
				UserID:   w.UserID,
				Name:     userName(w.User, w.UserID),
				Location: w.Location,
				Distance: el.DistanceText,
				Duration: el.Duration,
				Travel:   el.DurationText,
			})
		}
		result.Offers = append(result.Offers, offer)
	}

	if v.Item.ThreadID != 0 {
		if err := j.Messenger.PostToThread(ctx, v.Item.ThreadID, distributionSummary(result)); err != nil {
			metrics.IncSideEffectFailure("thread_post")
			slog.Error("posting distribution summary failed", "item", itemID, "error", err)
		}
	}
	slog.Info("distribution planned", "item", itemID, "offers", len(result.Offers))
	return result, nil
}

func distributionSummary(o *ItemOffers) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s is ready to move on:\n", o.Item.Name)
	for _, offer := range o.Offers {
		fmt.Fprintf(&b, "\n%s (%s) has been done with it for %d days.",
			userName(offer.Have.User, offer.Have.UserID), offer.Have.Location, offer.Have.DaysAvailable)
		if len(offer.Candidates) == 0 {
			b.WriteString(" Nobody waiting is close by.")
			continue
		}
		b.WriteString(" Closest waiting:")
		for _, c := range offer.Candidates {
			fmt.Fprintf(&b, "\n- %s in %s, %s away", c.Name, c.Location, c.Travel)
		}
	}
	return b.String()
}

func userName(u *model.User, id int64) string {
	if u != nil && u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("user %d", id)
}

// ExpireBans deletes bans that have ended.
func (j *Jobs) ExpireBans(ctx context.Context) error {
	users, err := store.DeleteExpiredBans(ctx, j.DB, j.now())
	if err != nil {
		return err
	}
	if len(users) > 0 {
		slog.Info("bans expired", "users", users)
	}
	return nil
}

// CleanupOtps deletes passcodes older than the validity window.
func (j *Jobs) CleanupOtps(ctx context.Context) error {
	n, err := store.DeleteStaleOtps(ctx, j.DB, j.now().Add(-j.Settings.OtpValidity()))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("passcodes cleaned up", "count", n)
	}
	return nil
}

// CleanupSessions forgets logged out sessions whose tokens have expired.
func (j *Jobs) CleanupSessions(ctx context.Context) error {
	n, err := store.DeleteExpiredRevocations(ctx, j.DB, j.now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("revoked sessions cleaned up", "count", n)
	}
	return nil
}

// Alert is a reminder sent to a holder.
type Alert struct {
	ItemID int64
	UserID int64
	Days   int
}

// OverdueAlerts reminds holders of items with an alert day who have had the
// item at least that many days without passing it on. Exempt holders are
// not reminded. A failing item or message is logged and skipped.
func (j *Jobs) OverdueAlerts(ctx context.Context) ([]Alert, error) {
	if !j.Settings.OverdueAlertsEnabled() {
		slog.Info("overdue alerts disabled")
		return nil, nil
	}

	items, err := store.ListItems(ctx, j.DB)
	if err != nil {
		return nil, err
	}

	held, err := store.ListHeldEntries(ctx, j.DB)
	if err != nil {
		return nil, err
	}
	busy := make(map[int64]bool)
	for _, e := range held {
		if e.DateDone == nil {
			busy[e.ItemID] = true
		}
	}

	var sent []Alert
	for _, item := range items {
		if item.AlertStartDay == nil || !busy[item.ID] {
			continue
		}
		v, err := j.Projector.Build(ctx, item.ID)
		if err != nil {
			slog.Error("building view for alerts failed", "item", item.ID, "error", err)
			continue
		}
		if v == nil {
			continue
		}
		for _, h := range v.Haves {
			if h.Exempt() || h.IsAvailable || h.Days < *item.AlertStartDay {
				continue
			}
			title := fmt.Sprintf("Time to pass on the %s", item.Name)
			body := fmt.Sprintf("You have had the %s for %d days. The lending period is %d days, please get it ready for the next person and mark it done.",
				item.Name, h.Days, item.MaxDays)
			if err := j.Messenger.StartPrivateMessage(ctx, []int64{h.UserID}, title, body); err != nil {
				metrics.IncSideEffectFailure("private_message")
				slog.Error("overdue alert failed", "item", item.ID, "user", h.UserID, "error", err)
				continue
			}
			sent = append(sent, Alert{ItemID: item.ID, UserID: h.UserID, Days: h.Days})
		}
	}
	return sent, nil
}

// Register adds the jobs to s.
func (j *Jobs) Register(s *Scheduler, distributeEvery time.Duration) {
	s.Add(Job{
		Name:     "distribution",
		Interval: distributeEvery,
		Delay:    time.Minute,
		Run: func(ctx context.Context) error {
			_, err := j.Distribute(ctx)
			return err
		},
	})
	s.Add(Job{Name: "ban-expiry", Interval: 24 * time.Hour, Delay: 30 * time.Second, Run: j.ExpireBans})
	s.Add(Job{Name: "otp-cleanup", Interval: time.Hour, Delay: 30 * time.Second, Run: j.CleanupOtps})
	s.Add(Job{Name: "session-cleanup", Interval: 24 * time.Hour, Delay: time.Minute, Run: j.CleanupSessions})
	s.Add(Job{
		Name:     "overdue-alerts",
		Interval: 24 * time.Hour,
		Delay:    2 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := j.OverdueAlerts(ctx)
			return err
		},
	})
}
