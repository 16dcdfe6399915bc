package transfer

import (
	"context"
	"sync"
	"time"

	"banca-client/pkg/logging"

	"go.uber.org/zap"
)

// NotificationKind is what the user is told.
type NotificationKind string

const (
	NotifySuccess        NotificationKind = "success"
	NotifyRejected       NotificationKind = "rejected"
	NotifyFailure        NotificationKind = "failure"
	NotifyPending        NotificationKind = "pending"
	NotifyReauthenticate NotificationKind = "reauthenticate"
)

// Notification is a single user-visible message about an attempt.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	Message        string           `json:"message"`
	TransferID     string           `json:"transferId,omitempty"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
	Time           time.Time        `json:"time"`
}

// Notifier delivers notifications. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier over l, or the global logger when nil.
func NewLogNotifier(l *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrGlobal(l, "transfer.notify")}
}

// Notify logs n. Failures are logged at warn.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) {
	fields := []zap.Field{
		zap.String("kind", string(note.Kind)),
		zap.String("message", note.Message),
		zap.String("idempotency_key", note.IdempotencyKey),
	}
	if note.TransferID != "" {
		fields = append(fields, zap.String("transfer_id", note.TransferID))
	}

	switch note.Kind {
	case NotifyFailure, NotifyRejected:
		n.logger.Warn("transfer notification", fields...)
	default:
		n.logger.Info("transfer notification", fields...)
	}
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

// Notify appends n.
func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// Notifications returns a copy of everything recorded.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return Notification{}, false
	}
	return r.notes[len(r.notes)-1], true
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

// Notify calls each notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
