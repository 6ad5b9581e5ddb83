package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "captures", "test.flog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestFileLoggerReaderRoundTrip(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s-1", Handle: 1, Category: CategoryState},
		{Timestamp: time.Now(), SessionID: "s-1", Handle: 1, Category: CategoryAuth, Auth: &AuthEvent{Step: "nonce-issued", Success: true}},
		{Timestamp: time.Now(), SessionID: "s-2", Handle: 2, Category: CategoryCommand, Command: &CommandEvent{Intent: "UNRECOGNIZED"}},
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read, err := reader.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[1].Auth == nil || read[1].Auth.Step != "nonce-issued" {
		t.Errorf("event 1: got %+v", read[1])
	}
	if read[2].SessionID != "s-2" {
		t.Errorf("event 2 session: got %q", read[2].SessionID)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next after end: got %v, want io.EOF", err)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := createTestLogFile(t, []Event{{SessionID: "first"}})

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	logger.Log(Event{SessionID: "second"})
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read, err := reader.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(read) != 2 || read[0].SessionID != "first" || read[1].SessionID != "second" {
		t.Errorf("got %+v", read)
	}
}

func TestFileLoggerCloseTwiceAndLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.flog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	logger.Log(Event{SessionID: "ignored"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size after close: %d", info.Size())
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped: %d", logger.Dropped())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.flog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(h uint16) {
			defer wg.Done()
			for range 25 {
				logger.Log(Event{Handle: h, Category: CategoryFrame, Frame: &FrameEvent{Size: 4}})
			}
		}(uint16(i + 1))
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	read, err := reader.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(read) != 200 {
		t.Errorf("got %d events, want 200", len(read))
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, SessionID: "a", Handle: 1, Direction: DirectionIn, Layer: LayerTransport, Category: CategoryFrame},
		{Timestamp: base.Add(time.Second), SessionID: "a", Handle: 1, Direction: DirectionOut, Layer: LayerGateway, Category: CategoryAccess},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", Handle: 2, Direction: DirectionIn, Layer: LayerCommand, Category: CategoryCommand, DeviceID: "fan-01"},
	}
	path := createTestLogFile(t, events)

	out := DirectionOut
	cmd := CategoryCommand
	transport := LayerTransport
	start := base.Add(time.Second)
	end := base.Add(2 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"session", Filter{SessionID: "a"}, 2},
		{"handle", Filter{Handle: 2}, 1},
		{"direction", Filter{Direction: &out}, 1},
		{"layer", Filter{Layer: &transport}, 1},
		{"category", Filter{Category: &cmd}, 1},
		{"device", Filter{DeviceID: "fan-01"}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 1},
		{"no match", Filter{SessionID: "zzz"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			got, err := reader.All()
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.flog")); err == nil {
		t.Error("expected error for missing file")
	}
}
