package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter prints capture events through an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter. A nil logger selects slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.Uint64("handle", uint64(event.Handle)),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Access != nil:
		attrs = append(attrs,
			slog.String("op", event.Access.Operation),
			slog.String("char", event.Access.Characteristic),
			slog.String("status", event.Access.Status),
			slog.Int("size", event.Access.Size),
		)
	case event.Auth != nil:
		attrs = append(attrs,
			slog.String("step", event.Auth.Step),
			slog.Bool("success", event.Auth.Success),
		)
		if event.Auth.Method != "" {
			attrs = append(attrs, slog.String("method", event.Auth.Method))
		}
		if event.Auth.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Auth.Reason))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("intent", event.Command.Intent),
			slog.Bool("handled", event.Command.Handled),
			slog.Duration("duration", event.Command.Duration),
		)
		if len(event.Command.Applied) > 0 {
			attrs = append(attrs, slog.String("applied", strings.Join(event.Command.Applied, ",")))
		}
		if len(event.Command.Rejected) > 0 {
			attrs = append(attrs, slog.String("rejected", strings.Join(event.Command.Rejected, ",")))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "capture", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
