package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"brewline/internal/domain"
	"brewline/internal/repo"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatch        = 100
)

// Notifier delivers one alert to the user.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

// LogNotifier delivers alerts as structured log records.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n domain.Notification) error {
	l.Logger.InfoContext(ctx, n.Title, "body", n.Body, "kind", n.Kind, "subject_id", n.SubjectID)
	return nil
}

// TerminalNotifier rings the terminal bell and prints the alert.
type TerminalNotifier struct {
	mu  sync.Mutex
	Out io.Writer
}

func (t *TerminalNotifier) Notify(_ context.Context, n domain.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.Out, "\a[%s] %s: %s\n", n.FireAt.Local().Format("15:04"), n.Title, n.Body)
	return err
}

// Dispatcher polls for due notifications and hands them to a Notifier.
// A failed delivery stays pending and is retried on the next poll.
type Dispatcher struct {
	Repo     repo.Repo
	Notifier Notifier
	Interval time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run dispatches until ctx is canceled.
func (d Dispatcher) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchDue(ctx); err != nil {
			d.logger().Warn("notify: dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DispatchDue delivers every notification due now and returns how many were delivered.
func (d Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.Repo.DueNotifications(ctx, now, defaultBatch)
	if err != nil {
		return 0, fmt.Errorf("fetch due notifications: %w", err)
	}
	delivered := 0
	for _, n := range due {
		if err := d.Notifier.Notify(ctx, n); err != nil {
			failuresTotal.WithLabelValues("deliver").Inc()
			d.logger().Warn("notify: deliver failed", "id", n.ID, "kind", n.Kind, "error", err)
			continue
		}
		if err := d.Repo.MarkNotificationDelivered(ctx, n.ID, now); err != nil {
			return delivered, fmt.Errorf("mark delivered %s: %w", n.ID, err)
		}
		deliveredTotal.WithLabelValues(string(n.Kind)).Inc()
		delivered++
	}
	return delivered, nil
}
