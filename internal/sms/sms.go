// Package sms sends text messages.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidPhone is returned by NormalizePhone.
var ErrInvalidPhone = errors.New("invalid phone number")

// Sender sends one message to one number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// NormalizePhone strips formatting from a phone number and returns it in
// +<digits> form. Ten digit numbers are taken to be North American.
func NormalizePhone(s string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		digits = "1" + digits
	}
	if len(digits) < 11 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

// Twilio sends messages through the Twilio Messages API.
type Twilio struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
}

// NewTwilio creates a sender for a Twilio account.
func NewTwilio(accountSID, authToken, from string) *Twilio {
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Twilio) Send(ctx context.Context, phone, text string) error {
	form := url.Values{"To": {phone}, "From": {t.from}, "Body": {text}}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return fmt.Errorf("sending sms: %s", e.Message)
		}
		return fmt.Errorf("sending sms: status %d", resp.StatusCode)
	}
	return nil
}

// Log writes messages to the log. Used when no SMS provider is configured.
type Log struct{}

func (Log) Send(_ context.Context, phone, text string) error {
	slog.Info("sms", "to", phone, "text", text)
	return nil
}
