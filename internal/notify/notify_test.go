package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type sent struct {
	threadID int64
	userIDs  []int64
	title    string
	body     string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recorder) PostToThread(_ context.Context, threadID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{threadID: threadID, body: text})
	return r.err
}

func (r *recorder) StartPrivateMessage(_ context.Context, userIDs []int64, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userIDs: userIDs, title: title, body: body})
	return r.err
}

func TestAsyncDelivers(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, time.Second)

	a.PostToThread(5, "hello")
	a.PostToThread(0, "dropped")
	a.StartPrivateMessage([]int64{1}, "t", "b")
	a.StartPrivateMessage(nil, "t", "dropped")

	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 messages, got %+v", rec.sent)
	}
}

func TestAsyncSwallowsErrors(t *testing.T) {
	rec := &recorder{err: errors.New("forum down")}
	a := NewAsync(rec, time.Second)

	a.PostToThread(5, "hello")
	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Errorf("expected the attempt to be made, got %d", len(rec.sent))
	}
}

type fakePublisher struct {
	subject string
	data    [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = append(f.data, data)
	return nil
}

func TestNATSRelayRoundTrip(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	n := NewNATS(pub, "")

	if err := n.PostToThread(ctx, 9, "Doser is available"); err != nil {
		t.Fatal(err)
	}
	if err := n.StartPrivateMessage(ctx, []int64{3, 4}, "Banned", "You are banned"); err != nil {
		t.Fatal(err)
	}
	if pub.subject != DefaultSubject || len(pub.data) != 2 {
		t.Fatalf("unexpected publishes on %q: %d", pub.subject, len(pub.data))
	}

	rec := &recorder{}
	relay := NewRelay(rec, time.Second)
	for _, d := range pub.data {
		if err := relay.Handle(ctx, d); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	if rec.sent[0].threadID != 9 || rec.sent[0].body != "Doser is available" {
		t.Errorf("unexpected thread post %+v", rec.sent[0])
	}
	if len(rec.sent[1].userIDs) != 2 || rec.sent[1].title != "Banned" {
		t.Errorf("unexpected private message %+v", rec.sent[1])
	}
}

func TestRelayRejectsUnknownKind(t *testing.T) {
	relay := NewRelay(&recorder{}, time.Second)
	if err := relay.Handle(context.Background(), []byte(`{"kind":"telegram","body":"x"}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := relay.Handle(context.Background(), []byte(`not json`)); err == nil {
		t.Error("expected error for bad payload")
	}
}
