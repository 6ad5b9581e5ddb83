package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fanlink/fanlink-go/pkg/log"
)

func TestCollectStats(t *testing.T) {
	events := sampleEvents()
	events = append(events, log.Event{
		Timestamp:   events[0].Timestamp.Add(time.Second),
		Layer:       log.LayerCommand,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityUpdate, NewState: "requested"},
	})
	path := createTestLogFile(t, events)

	stats, err := Collect(path)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("expected 6 events, got %d", stats.TotalEvents)
	}
	if stats.EventsByCategory[log.CategoryAuth] != 2 {
		t.Errorf("expected 2 auth events, got %d", stats.EventsByCategory[log.CategoryAuth])
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if len(stats.Sessions) != 2 {
		t.Fatalf("expected 2 sessions (sessionless events skipped), got %d", len(stats.Sessions))
	}

	a := stats.Sessions["sess-aaaa-1111"]
	if a.Handle != 1 || a.Bytes != 5 || a.AuthFailures != 1 || a.Authenticated {
		t.Errorf("unexpected session a: %+v", a)
	}
	if a.Remote != "10.0.0.9:51000" {
		t.Errorf("expected remote address, got %q", a.Remote)
	}

	b := stats.Sessions["sess-bbbb-2222"]
	if b.Commands != 1 || b.Unhandled != 0 || b.RejectedFields != 1 {
		t.Errorf("unexpected session b: %+v", b)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"GATEWAY:",
		"AUTH:",
		"Sessions: 2",
		"[sess-aaa h:1] 3 events, 5 bytes",
		"Authenticated: false (failures: 1)",
		"Commands: 1 (unhandled: 0, rejected fields: 1)",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestRunStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
