package control

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Field identifies one actuator attribute.
type Field uint8

const (
	FieldSpeed Field = iota
	FieldAngle
	FieldLight
	FieldPower
)

// Fields lists every field in notification order.
var Fields = []Field{FieldSpeed, FieldAngle, FieldLight, FieldPower}

// String returns the lower-case field name used on the wire.
func (f Field) String() string {
	switch f {
	case FieldSpeed:
		return "speed"
	case FieldAngle:
		return "angle"
	case FieldLight:
		return "light"
	case FieldPower:
		return "power"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	return f <= FieldPower
}

// ParseField parses a field name case-insensitively.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Control errors.
var (
	ErrUnknownField  = errors.New("unknown control field")
	ErrNegativeValue = errors.New("negative control value")
)

// Values is one record of the four attributes.
type Values struct {
	Speed uint32 `json:"speed"`
	Angle uint32 `json:"angle"`
	Light uint32 `json:"light"`
	Power uint32 `json:"power"`
}

// Get returns the value of f.
func (v Values) Get(f Field) uint32 {
	switch f {
	case FieldSpeed:
		return v.Speed
	case FieldAngle:
		return v.Angle
	case FieldLight:
		return v.Light
	case FieldPower:
		return v.Power
	}
	return 0
}

func (v *Values) set(f Field, value uint32) {
	switch f {
	case FieldSpeed:
		v.Speed = value
	case FieldAngle:
		v.Angle = value
	case FieldLight:
		v.Light = value
	case FieldPower:
		v.Power = value
	}
}

// Notifier is told about every successfully applied field.
type Notifier interface {
	Notify(field Field, value uint32)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(field Field, value uint32)

// Notify calls fn.
func (fn NotifierFunc) Notify(field Field, value uint32) { fn(field, value) }

// State is the shared control/status model.
type State struct {
	mu       sync.RWMutex
	desired  Values
	reported Values

	notifiers []Notifier
	logger    *slog.Logger
}

// NewState creates a zeroed state.
func NewState() *State {
	return &State{logger: slog.Default()}
}

// SetLogger sets the operational logger.
func (s *State) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// AddNotifier registers a change subscriber.
func (s *State) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Apply sets Desired[field] and mirrors it into Reported. Negative values are
// rejected and leave both records untouched.
func (s *State) Apply(field Field, value int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownField, field)
	}
	if value < 0 {
		return fmt.Errorf("%w: %s=%d", ErrNegativeValue, field, value)
	}
	v := uint32(value)

	s.mu.Lock()
	s.desired.set(field, v)
	s.reported.set(field, v)
	notifiers := append([]Notifier(nil), s.notifiers...)
	logger := s.logger
	s.mu.Unlock()

	for _, n := range notifiers {
		n.Notify(field, v)
	}
	logger.Info("control applied", "field", field.String(), "desired", v, "reported", v)
	return nil
}

// Desired returns a snapshot of the desired record.
func (s *State) Desired() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desired
}

// Reported returns a snapshot of the reported record.
func (s *State) Reported() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reported
}
