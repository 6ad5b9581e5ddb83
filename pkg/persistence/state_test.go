package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/provision"
)

func TestStateStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("SaveCreatesDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
		store := NewStateStore(path)

		if err := store.Save(&DeviceState{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("CredentialsRoundTrip", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		store.timeNow = func() time.Time { return fixed }

		if err := store.SaveCredentials(provision.Record{SSID: "MyNet", Password: "p@ss"}); err != nil {
			t.Fatalf("SaveCredentials() error = %v", err)
		}

		rec, ok, err := store.LoadCredentials()
		if err != nil || !ok {
			t.Fatalf("LoadCredentials() = %v, %v", ok, err)
		}
		if rec.SSID != "MyNet" || rec.Password != "p@ss" {
			t.Errorf("LoadCredentials() = %+v", rec)
		}

		state, _ := store.Load()
		if !state.Credentials.StoredAt.Equal(fixed) {
			t.Errorf("StoredAt = %v, want %v", state.Credentials.StoredAt, fixed)
		}
		if state.Version != StateVersion {
			t.Errorf("Version = %d, want %d", state.Version, StateVersion)
		}
	})

	t.Run("SaveCredentialsValidates", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

		err := store.SaveCredentials(provision.Record{})
		if !errors.Is(err, provision.ErrEmptySSID) {
			t.Fatalf("SaveCredentials() error = %v, want ErrEmptySSID", err)
		}
		if _, ok, _ := store.LoadCredentials(); ok {
			t.Error("invalid credentials were stored")
		}
	})

	t.Run("UpdatesPreserveOtherFields", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

		if err := store.SaveCredentials(provision.Record{SSID: "n"}); err != nil {
			t.Fatal(err)
		}
		if err := store.SaveControls(control.Values{Speed: 120, Power: 1}); err != nil {
			t.Fatal(err)
		}
		if err := store.PutBlob("k", []byte{1, 2}); err != nil {
			t.Fatal(err)
		}

		state, err := store.Load()
		if err != nil {
			t.Fatal(err)
		}
		if state.Credentials == nil || state.Credentials.SSID != "n" {
			t.Errorf("Credentials = %+v", state.Credentials)
		}
		if state.Controls == nil || state.Controls.Speed != 120 || state.Controls.Power != 1 {
			t.Errorf("Controls = %+v", state.Controls)
		}
		if got := state.Blobs["k"]; len(got) != 2 {
			t.Errorf("Blobs[k] = %v", got)
		}
	})

	t.Run("BlobIsCopied", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		data := []byte{1, 2, 3}
		if err := store.PutBlob("b", data); err != nil {
			t.Fatal(err)
		}
		data[0] = 9

		got, ok, err := store.GetBlob("b")
		if err != nil || !ok {
			t.Fatalf("GetBlob() = %v, %v", ok, err)
		}
		if got[0] != 1 {
			t.Errorf("GetBlob()[0] = %d, want 1", got[0])
		}

		if _, ok, err := store.GetBlob("missing"); ok || err != nil {
			t.Errorf("GetBlob(missing) = %v, %v", ok, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(&DeviceState{}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("second Clear() error = %v", err)
		}
		if got, _ := store.Load(); got != nil {
			t.Error("state still present after Clear()")
		}
	})

	t.Run("RejectsNewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := NewStateStore(path).Load()
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Load() error = %v, want ErrUnsupportedVersion", err)
		}
	})

	t.Run("CorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewStateStore(path).Load(); err == nil {
			t.Error("Load() of corrupt file succeeded")
		}
	})
}
