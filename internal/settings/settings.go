// Package settings holds the runtime system settings that administrators
// can change without a restart.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// Values is a complete set of settings.
type Values struct {
	// MaxDistanceCandidates caps recipients proposed per available holder.
	MaxDistanceCandidates int `json:"max_distance_candidates"`

	OtpCooldownMinutes int `json:"otp_cooldown_minutes"`
	OtpValidityMinutes int `json:"otp_validity_minutes"`

	// StrictOrder requires transfers to go to the first waiter unless the
	// recipient is an equipment holder.
	StrictOrder bool `json:"strict_order"`

	ModerationThreadID int64 `json:"moderation_thread_id"`

	DistributionEnabled  bool `json:"distribution_enabled"`
	OverdueAlertsEnabled bool `json:"overdue_alerts_enabled"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Values {
	return Values{
		MaxDistanceCandidates: 3,
		StrictOrder:           true,
		OtpCooldownMinutes:    1,
		OtpValidityMinutes:    15,
		DistributionEnabled:   true,
		OverdueAlertsEnabled:  true,
	}
}

// Validate checks that every value is usable.
func (v Values) Validate() error {
	switch {
	case v.MaxDistanceCandidates < 1:
		return fmt.Errorf("max_distance_candidates must be at least 1")
	case v.OtpCooldownMinutes < 0:
		return fmt.Errorf("otp_cooldown_minutes must not be negative")
	case v.OtpValidityMinutes < 1:
		return fmt.Errorf("otp_validity_minutes must be at least 1")
	case v.OtpCooldownMinutes >= v.OtpValidityMinutes:
		return fmt.Errorf("otp_cooldown_minutes must be shorter than otp_validity_minutes")
	case v.ModerationThreadID < 0:
		return fmt.Errorf("moderation_thread_id must not be negative")
	}
	return nil
}

const (
	keyMaxDistanceCandidates = "max_distance_candidates"
	keyOtpCooldown           = "otp_cooldown_minutes"
	keyOtpValidity           = "otp_validity_minutes"
	keyStrictOrder           = "strict_order"
	keyModerationThread      = "moderation_thread_id"
	keyDistribution          = "distribution_enabled"
	keyOverdueAlerts         = "overdue_alerts_enabled"
)

func (v Values) encode() map[string]string {
	return map[string]string{
		keyMaxDistanceCandidates: strconv.Itoa(v.MaxDistanceCandidates),
		keyOtpCooldown:           strconv.Itoa(v.OtpCooldownMinutes),
		keyOtpValidity:           strconv.Itoa(v.OtpValidityMinutes),
		keyStrictOrder:           strconv.FormatBool(v.StrictOrder),
		keyModerationThread:      strconv.FormatInt(v.ModerationThreadID, 10),
		keyDistribution:          strconv.FormatBool(v.DistributionEnabled),
		keyOverdueAlerts:         strconv.FormatBool(v.OverdueAlertsEnabled),
	}
}

func decode(stored map[string]string) (Values, error) {
	v := Defaults()
	var err error
	for key, s := range stored {
		switch key {
		case keyMaxDistanceCandidates:
			v.MaxDistanceCandidates, err = strconv.Atoi(s)
		case keyOtpCooldown:
			v.OtpCooldownMinutes, err = strconv.Atoi(s)
		case keyOtpValidity:
			v.OtpValidityMinutes, err = strconv.Atoi(s)
		case keyStrictOrder:
			v.StrictOrder, err = strconv.ParseBool(s)
		case keyModerationThread:
			v.ModerationThreadID, err = strconv.ParseInt(s, 10, 64)
		case keyDistribution:
			v.DistributionEnabled, err = strconv.ParseBool(s)
		case keyOverdueAlerts:
			v.OverdueAlertsEnabled, err = strconv.ParseBool(s)
		}
		if err != nil {
			return Values{}, fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return v, nil
}

// Settings is the live, persisted settings object shared by the service and
// the scheduler.
type Settings struct {
	db *sql.DB

	mu sync.RWMutex
	v  Values
}

// Load reads stored settings over the defaults and validates the result.
func Load(ctx context.Context, db *sql.DB) (*Settings, error) {
	stored, err := store.ListSettings(ctx, db)
	if err != nil {
		return nil, err
	}
	v, err := decode(stored)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stored settings: %w", err)
	}
	return &Settings{db: db, v: v}, nil
}

// Static returns settings that are never persisted.
func Static(v Values) *Settings {
	return &Settings{v: v}
}

// Values returns a copy of the current settings.
func (s *Settings) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update validates v, stores it and makes it current.
func (s *Settings) Update(ctx context.Context, v Values) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if s.db != nil {
		if err := store.SetSettings(ctx, s.db, v.encode()); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	return nil
}

func (s *Settings) MaxDistanceCandidates() int { return s.Values().MaxDistanceCandidates }

func (s *Settings) OtpCooldown() time.Duration {
	return time.Duration(s.Values().OtpCooldownMinutes) * time.Minute
}

func (s *Settings) OtpValidity() time.Duration {
	return time.Duration(s.Values().OtpValidityMinutes) * time.Minute
}

func (s *Settings) StrictOrder() bool { return s.Values().StrictOrder }

func (s *Settings) ModerationThreadID() int64 { return s.Values().ModerationThreadID }

func (s *Settings) DistributionEnabled() bool { return s.Values().DistributionEnabled }

func (s *Settings) OverdueAlertsEnabled() bool { return s.Values().OverdueAlertsEnabled }
