package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campus-portal/app/models"
)

const (
	defaultQueueSize    = 256
	defaultSendTimeout  = 15 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the channel buffer capacity. Default: 256.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

// WithOnError sets the callback invoked when a send fails.
// Default: logs a warning via slog.
func WithOnError(f func(*models.ProctoringAlert, error)) Option {
	return func(d *Dispatcher) { d.errFunc = f }
}

// Dispatcher hands alerts to a Sender on a background goroutine so event
// ingestion never waits on the notification system. A full queue drops the
// alert; alerts stay queryable and on the live stream either way.
type Dispatcher struct {
	sender    Sender
	ch        chan *models.ProctoringAlert
	done      chan struct{}
	errFunc   func(*models.ProctoringAlert, error)
	queueSize int
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewDispatcher starts the drain goroutine immediately.
func NewDispatcher(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:    sender,
		queueSize: defaultQueueSize,
		errFunc: func(a *models.ProctoringAlert, err error) {
			slog.Warn("alert notification failed", "alert_id", a.ID, "error", err)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ch = make(chan *models.ProctoringAlert, d.queueSize)
	d.done = make(chan struct{})
	go d.drain()
	return d
}

// NotifyAlert enqueues alert without blocking.
func (d *Dispatcher) NotifyAlert(_ context.Context, alert *models.ProctoringAlert) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- alert:
	default:
		slog.Warn("alert notification queue full, dropping", "alert_id", alert.ID)
	}
}

// Close stops accepting alerts, waits for the queue to drain (with a
// timeout), then closes the sender.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		select {
		case <-d.done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("alert notification drain timed out")
		}
		err = d.sender.Close()
	})
	return err
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for alert := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		if err := d.sender.Send(ctx, alert); err != nil {
			d.errFunc(alert, err)
		}
		cancel()
	}
}
