package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fanlink/fanlink-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return []log.Event{
		{
			Timestamp: ts, SessionID: "sess-aaaa-1111", Handle: 1,
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryFrame,
			RemoteAddr: "10.0.0.9:51000",
			Frame:      log.NewFrameEvent([]byte{0x01, 0x04, 's', '5', '0'}),
		},
		{
			Timestamp: ts.Add(time.Millisecond), SessionID: "sess-aaaa-1111", Handle: 1,
			Direction: log.DirectionOut, Layer: log.LayerGateway, Category: log.CategoryAuth,
			Auth: &log.AuthEvent{Step: "nonce-issued", Success: true},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), SessionID: "sess-aaaa-1111", Handle: 1,
			Direction: log.DirectionIn, Layer: log.LayerGateway, Category: log.CategoryAuth,
			Auth: &log.AuthEvent{Step: "digest-verified", Method: "nonce-hmac", Success: false, Reason: "digest mismatch"},
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), SessionID: "sess-bbbb-2222", Handle: 2,
			Direction: log.DirectionIn, Layer: log.LayerCommand, Category: log.CategoryCommand,
			Command: &log.CommandEvent{Intent: "control", Handled: true, Applied: []string{"speed"}, Rejected: []string{"angle"}, Duration: 40 * time.Microsecond},
		},
		{
			Timestamp: ts.Add(4 * time.Millisecond), SessionID: "sess-bbbb-2222", Handle: 2,
			Layer: log.LayerTransport, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "frame too large", Context: "read"},
		},
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	var lines []log.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e log.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if lines[3].Command == nil || lines[3].Command.Intent != "control" {
		t.Errorf("expected command payload on line 4, got %+v", lines[3])
	}
	if lines[0].SessionID != "sess-aaaa-1111" {
		t.Errorf("expected session ID to survive export, got %q", lines[0].SessionID)
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected header plus 5 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("unexpected header: %v", records[0])
	}

	row := records[3]
	if row[1] != "sess-aaaa-1111" || row[2] != "1" {
		t.Errorf("unexpected session columns: %v", row)
	}
	if row[5] != "AUTH" || row[7] != "Auth" {
		t.Errorf("unexpected category/type columns: %v", row)
	}
	if row[8] != "digest-verified success=false" {
		t.Errorf("unexpected detail: %q", row[8])
	}
	if records[1][8] != "5" {
		t.Errorf("expected frame size detail, got %q", records[1][8])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	err := RunExport(path, "xml", "")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestExportMissingFile(t *testing.T) {
	err := RunExport(filepath.Join(t.TempDir(), "missing.cbor"), "jsonl", "")
	if err == nil {
		t.Error("expected error for missing file")
	}
}
