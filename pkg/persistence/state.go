package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/provision"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned when the state file was written by a
// newer format.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// DeviceState contains the persisted state of a device.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Credentials are the last provisioned Wi-Fi credentials.
	Credentials *Credentials `json:"credentials,omitempty"`

	// Controls is the last reported control record.
	Controls *control.Values `json:"controls,omitempty"`

	// Blobs holds named binary records.
	Blobs map[string][]byte `json:"blobs,omitempty"`
}

// Credentials is a persisted provisioning record.
type Credentials struct {
	SSID     string    `json:"ssid"`
	Password string    `json:"password,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// StateStore manages the state file. Every method reads and writes the file
// under one mutex.
type StateStore struct {
	mu   sync.Mutex
	path string

	timeNow func() time.Time
}

// NewStateStore creates a store backed by path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path, timeNow: time.Now}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Save replaces the state file.
func (s *StateStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(state)
}

// Load reads the state file.
// Returns nil, nil if the file doesn't exist.
func (s *StateStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Update loads the state (empty if absent), applies fn and saves the result.
// Nothing is written when fn fails.
func (s *StateStore) Update(fn func(*DeviceState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	if state == nil {
		state = &DeviceState{}
	}
	if err := fn(state); err != nil {
		return err
	}
	state.SavedAt = time.Time{}
	return s.saveLocked(state)
}

// GetBlob returns a copy of the blob stored under key.
func (s *StateStore) GetBlob(key string) ([]byte, bool, error) {
	state, err := s.Load()
	if err != nil || state == nil {
		return nil, false, err
	}
	b, ok := state.Blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// PutBlob stores a copy of data under key.
func (s *StateStore) PutBlob(key string, data []byte) error {
	return s.Update(func(state *DeviceState) error {
		if state.Blobs == nil {
			state.Blobs = make(map[string][]byte)
		}
		state.Blobs[key] = append([]byte(nil), data...)
		return nil
	})
}

// SaveCredentials persists a provisioning record.
func (s *StateStore) SaveCredentials(rec provision.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.Update(func(state *DeviceState) error {
		state.Credentials = &Credentials{
			SSID:     rec.SSID,
			Password: rec.Password,
			StoredAt: s.timeNow(),
		}
		return nil
	})
}

// LoadCredentials returns the persisted provisioning record, if any.
func (s *StateStore) LoadCredentials() (provision.Record, bool, error) {
	state, err := s.Load()
	if err != nil || state == nil || state.Credentials == nil {
		return provision.Record{}, false, err
	}
	return provision.Record{SSID: state.Credentials.SSID, Password: state.Credentials.Password}, true, nil
}

// SaveControls persists the reported control record.
func (s *StateStore) SaveControls(v control.Values) error {
	return s.Update(func(state *DeviceState) error {
		state.Controls = &v
		return nil
	})
}

func (s *StateStore) saveLocked(state *DeviceState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = s.timeNow()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write to a sibling and rename so a crash never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *StateStore) loadLocked() (*DeviceState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &DeviceState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}
