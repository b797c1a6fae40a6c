// Package notify delivers forum posts and private messages.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
)

// Messenger posts to the forum.
type Messenger interface {
	PostToThread(ctx context.Context, threadID int64, text string) error
	StartPrivateMessage(ctx context.Context, userIDs []int64, title, body string) error
}

// Async sends messages in the background. Failures are logged and counted,
// never returned.
type Async struct {
	next    Messenger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync wraps next. Each send is given timeout to complete.
func NewAsync(next Messenger, timeout time.Duration) *Async {
	return &Async{next: next, timeout: timeout}
}

func (a *Async) run(kind string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.IncSideEffectFailure(kind)
			slog.Error("notification failed", "kind", kind, "error", err)
		}
	}()
}

// PostToThread queues a thread post. Zero thread ids are ignored.
func (a *Async) PostToThread(threadID int64, text string) {
	if threadID == 0 {
		return
	}
	a.run("thread_post", func(ctx context.Context) error {
		return a.next.PostToThread(ctx, threadID, text)
	})
}

// StartPrivateMessage queues a private message.
func (a *Async) StartPrivateMessage(userIDs []int64, title, body string) {
	if len(userIDs) == 0 {
		return
	}
	ids := append([]int64(nil), userIDs...)
	a.run("private_message", func(ctx context.Context) error {
		return a.next.StartPrivateMessage(ctx, ids, title, body)
	})
}

// Go runs fn in the background under the same rules as a notification.
func (a *Async) Go(kind string, fn func(ctx context.Context) error) {
	a.run(kind, fn)
}

// Wait blocks until queued sends finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log writes messages to the log instead of the forum.
type Log struct{}

func (Log) PostToThread(_ context.Context, threadID int64, text string) error {
	slog.Info("thread post", "thread", threadID, "text", text)
	return nil
}

func (Log) StartPrivateMessage(_ context.Context, userIDs []int64, title, body string) error {
	slog.Info("private message", "to", userIDs, "title", title, "body", body)
	return nil
}
