package notify

import (
	"context"
	"log/slog"

	"timerd/internal/core"
)

// Multi fans one notification out to several sinks. Errors are collected
// per sink; the last one wins, the rest are the logger's business.
type Multi struct {
	sinks []core.Sink
}

func NewMulti(sinks ...core.Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, n core.Notification) error {
	var last error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, n); err != nil {
			last = err
		}
	}
	return last
}

// NoOp swallows notifications.
type NoOp struct{}

func (NoOp) Notify(ctx context.Context, n core.Notification) error {
	return nil
}

// Log writes fired-timer events to the logger. Useful as the default sink
// when no webhook is configured.
type Log struct {
	Logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{Logger: logger}
}

func (l *Log) Notify(ctx context.Context, n core.Notification) error {
	l.Logger.Info("timer fired",
		"timer_id", n.TimerID,
		"name", n.Name,
		"notification_key", n.NotificationKey,
		"fired_at", n.FiredAt)
	return nil
}
