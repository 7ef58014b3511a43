// Package notice delivers user-facing notices about hub operations.
package notice

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_notifier.go -package=mocks github.com/starford/mocsync/internal/notice Notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mocsync/internal/apperr"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a message surfaced to the user.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Hub     string    `json:"hub,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notices. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// New builds a notice with a fresh ID.
func New(level Level, hub, message string) Notice {
	return Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Hub:     hub,
		Message: message,
		Time:    time.Now().UTC(),
	}
}

// FromError builds an error notice classified by the error's kind.
func FromError(hub string, err error) Notice {
	n := New(LevelError, hub, err.Error())
	n.Kind = apperr.KindOf(err).String()
	return n
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n at the level matching its severity.
func (l *LogNotifier) Notify(ctx context.Context, n Notice) {
	lvl := slog.LevelInfo
	switch n.Level {
	case LevelWarn:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	l.logger.LogAttrs(ctx, lvl, "notice",
		slog.String("id", n.ID),
		slog.String("hub", n.Hub),
		slog.String("kind", n.Kind),
		slog.String("message", n.Message))
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Notify forwards n to every notifier in order.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, nt := range m {
		nt.Notify(ctx, n)
	}
}

// Discard drops every notice.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Notice) {}
