// Package notify delivers user-facing messages for terminal auth outcomes.
// Every terminal failure path in the SDK emits exactly one notification, so
// UI layers never need to re-derive messages from raw errors.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level classifies a notification for presentation purposes.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives user-facing messages. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, level Level, message string)

// Notify calls the underlying function.
func (f Func) Notify(ctx context.Context, level Level, message string) {
	f(ctx, level, message)
}

// LogNotifier writes notifications to a structured logger. It is the default
// sink for headless embedders.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the message at a level matching the notification level.
func (n *LogNotifier) Notify(ctx context.Context, level Level, message string) {
	attrs := []any{slog.String("notification", string(level))}
	switch level {
	case LevelError:
		n.logger.ErrorContext(ctx, message, attrs...)
	case LevelWarning:
		n.logger.WarnContext(ctx, message, attrs...)
	default:
		n.logger.InfoContext(ctx, message, attrs...)
	}
}

// Notification is one recorded message.
type Notification struct {
	Level   Level
	Message string
}

// Recorder collects notifications in memory. UIs can drain it to render
// toasts; tests assert on the exact sequence.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify appends the message to the recorded sequence.
func (r *Recorder) Notify(_ context.Context, level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Level: level, Message: message})
}

// All returns a copy of every recorded notification in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Drain returns all recorded notifications and resets the recorder.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notifications
	r.notifications = nil
	return out
}
