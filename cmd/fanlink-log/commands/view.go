// Package commands implements the fanlink-log subcommands.
package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fanlink/fanlink-go/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// RunView prints every event of path matching filter.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// eventType names the payload carried by event.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Access != nil:
		return "Access"
	case event.Auth != nil:
		return "Auth"
	case event.Command != nil:
		return "Command"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes one event followed by a blank line.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)
	fmt.Fprintf(w, "%s [sess:%s h:%d] %-3s %s %s\n",
		ts, shortenSessionID(event.SessionID), event.Handle,
		event.Direction.String(), event.Layer.String(), eventType(event))

	switch {
	case event.Frame != nil:
		formatFrame(w, event.Frame)
	case event.Access != nil:
		formatAccess(w, event.Access)
	case event.Auth != nil:
		formatAuth(w, event.Auth)
	case event.Command != nil:
		formatCommand(w, event.Command)
	case event.StateChange != nil:
		formatStateChange(w, event.StateChange)
	case event.Error != nil:
		formatError(w, event.Error)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	fmt.Fprintln(w)
}

func shortenSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrame(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatAccess(w io.Writer, a *log.AccessEvent) {
	fmt.Fprintf(w, "  %s %s", strings.ToUpper(a.Operation), a.Characteristic)
	if a.Size > 0 {
		fmt.Fprintf(w, " (%d bytes)", a.Size)
	}
	fmt.Fprintln(w)
	if a.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", a.Status)
	}
}

func formatAuth(w io.Writer, a *log.AuthEvent) {
	result := "ok"
	if !a.Success {
		result = "failed"
	}
	fmt.Fprintf(w, "  Step: %s (%s)\n", a.Step, result)
	if a.Method != "" {
		fmt.Fprintf(w, "  Method: %s\n", a.Method)
	}
	if a.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", a.Reason)
	}
}

func formatCommand(w io.Writer, c *log.CommandEvent) {
	fmt.Fprintf(w, "  Intent: %s handled=%t\n", c.Intent, c.Handled)
	if len(c.Applied) > 0 {
		fmt.Fprintf(w, "  Applied: %s\n", strings.Join(c.Applied, ", "))
	}
	if len(c.Rejected) > 0 {
		fmt.Fprintf(w, "  Rejected: %s\n", strings.Join(c.Rejected, ", "))
	}
	if c.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(c.Duration))
	}
}

func formatStateChange(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}
