package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is where forum messages are published.
const DefaultSubject = "barcode.forum"

// Message is the wire form of a queued forum message.
type Message struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	ThreadID int64     `json:"thread_id,omitempty"`
	UserIDs  []int64   `json:"user_ids,omitempty"`
	Title    string    `json:"title,omitempty"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

const (
	kindThreadPost     = "thread_post"
	kindPrivateMessage = "private_message"
)

// Publisher is the part of *nats.Conn used to send messages.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS hands messages to a relay process over NATS instead of calling the
// forum directly.
type NATS struct {
	pub     Publisher
	subject string
}

// NewNATS creates a messenger publishing on subject.
func NewNATS(pub Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{pub: pub, subject: subject}
}

func (n *NATS) publish(m Message) error {
	m.ID = uuid.NewString()
	m.SentAt = time.Now().UTC()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

func (n *NATS) PostToThread(_ context.Context, threadID int64, text string) error {
	return n.publish(Message{Kind: kindThreadPost, ThreadID: threadID, Body: text})
}

func (n *NATS) StartPrivateMessage(_ context.Context, userIDs []int64, title, body string) error {
	return n.publish(Message{Kind: kindPrivateMessage, UserIDs: userIDs, Title: title, Body: body})
}

// Relay delivers messages published by NATS to the forum.
type Relay struct {
	to      Messenger
	timeout time.Duration
}

// NewRelay creates a relay sending to m.
func NewRelay(m Messenger, timeout time.Duration) *Relay {
	return &Relay{to: m, timeout: timeout}
}

// Handle delivers one encoded message.
func (r *Relay) Handle(ctx context.Context, data []byte) error {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch m.Kind {
	case kindThreadPost:
		return r.to.PostToThread(ctx, m.ThreadID, m.Body)
	case kindPrivateMessage:
		return r.to.StartPrivateMessage(ctx, m.UserIDs, m.Title, m.Body)
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

// Subscribe relays every message on subject until the subscription is
// drained. A queue group lets several relays share the load.
func (r *Relay) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return nc.QueueSubscribe(subject, "relay", func(msg *nats.Msg) {
		if err := r.Handle(context.Background(), msg.Data); err != nil {
			slog.Error("relaying message failed", "subject", msg.Subject, "error", err)
		}
	})
}
