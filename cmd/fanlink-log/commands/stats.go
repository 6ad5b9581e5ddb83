package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fanlink/fanlink-go/pkg/log"
)

// Stats aggregates a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats aggregates one connection session.
type SessionStats struct {
	Handle    uint16
	Remote    string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Bytes     int

	AuthFailures   int
	Authenticated  bool
	Commands       int
	Unhandled      int
	RejectedFields int
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
	}
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}
	if event.Error != nil {
		s.Errors++
	}

	// Device-level events (boot update, restored controls) have no session.
	if event.SessionID == "" {
		return
	}
	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Handle != 0 {
		sess.Handle = event.Handle
	}
	if sess.Remote == "" {
		sess.Remote = event.RemoteAddr
	}
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}

	switch {
	case event.Frame != nil:
		sess.Bytes += event.Frame.Size
	case event.Auth != nil:
		if event.Auth.Success {
			if event.Auth.Step != "nonce-issued" && event.Auth.Step != "cleared" {
				sess.Authenticated = true
			}
		} else {
			sess.AuthFailures++
		}
	case event.Command != nil:
		sess.Commands++
		if !event.Command.Handled {
			sess.Unhandled++
		}
		sess.RejectedFields += len(event.Command.Rejected)
	}
}

// RunStats prints the statistics of path.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== FanLink Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", stats.TotalEvents)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerGateway, log.LayerCommand} {
		if n := stats.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{
		log.CategoryFrame, log.CategoryAccess, log.CategoryAuth,
		log.CategoryCommand, log.CategoryState, log.CategoryError,
	} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if n := stats.EventsByDirection[d]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", d.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		ids := make([]string, 0, len(stats.Sessions))
		for id := range stats.Sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Sessions[ids[i]].FirstSeen.Before(stats.Sessions[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			ss := stats.Sessions[id]
			fmt.Fprintf(w, "  [%s h:%d] %d events, %d bytes, duration %s\n",
				shortenSessionID(id), ss.Handle, ss.Events, ss.Bytes,
				ss.LastSeen.Sub(ss.FirstSeen).Round(time.Millisecond))
			if ss.Remote != "" {
				fmt.Fprintf(w, "           Remote: %s\n", ss.Remote)
			}
			fmt.Fprintf(w, "           Authenticated: %t (failures: %d)\n", ss.Authenticated, ss.AuthFailures)
			if ss.Commands > 0 {
				fmt.Fprintf(w, "           Commands: %d (unhandled: %d, rejected fields: %d)\n",
					ss.Commands, ss.Unhandled, ss.RejectedFields)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
