package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender delivers one notification, synchronously.
type Sender interface {
	Notify(ctx context.Context, text string) error
}

// Dispatcher wraps a Sender with a fire-and-forget boundary: Dispatch
// returns immediately, each send runs on its own goroutine with its own
// timeout, and failures are logged and discarded. The notification side
// channel must never block or fail the synthesis pipeline.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, timeout: 15 * time.Second}
}

func (d *Dispatcher) Dispatch(text string) {
	if d == nil || d.sender == nil || strings.TrimSpace(text) == "" {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Notify(ctx, text); err != nil {
			slog.Warn("notification dropped", "error", err)
		}
	}()
}

// Wait blocks until all in-flight sends settle. Used at shutdown and in
// tests; the pipeline itself never waits.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
