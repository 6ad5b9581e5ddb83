package packet

import (
	"fmt"
	"strings"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/provision"
)

// MaxSize is the largest packet the gateway accepts.
const MaxSize = 128

// Kind classifies a parsed packet.
type Kind uint8

const (
	KindUnrecognized Kind = iota
	KindAuthKey
	KindWifiCredentials
	KindControl
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnrecognized:
		return "UNRECOGNIZED"
	case KindAuthKey:
		return "AUTH_KEY"
	case KindWifiCredentials:
		return "WIFI_CREDENTIALS"
	case KindControl:
		return "CONTROL"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// ControlUpdate is one extracted control field. Value may be negative; the
// dispatcher decides what to do with it.
type ControlUpdate struct {
	Field control.Field
	Value int64
}

// Intent is the result of parsing one packet.
type Intent struct {
	Kind Kind

	// AuthKey is set for KindAuthKey.
	AuthKey string

	// Credentials is set for KindWifiCredentials.
	Credentials provision.Record

	// Controls is set for KindControl, in control.Fields order.
	Controls []ControlUpdate
}

// Unrecognized returns the zero intent.
func Unrecognized() Intent { return Intent{Kind: KindUnrecognized} }

// String returns a log-safe description.
func (i Intent) String() string {
	switch i.Kind {
	case KindAuthKey:
		return fmt.Sprintf("AUTH_KEY(len=%d)", len(i.AuthKey))
	case KindWifiCredentials:
		return "WIFI_CREDENTIALS(" + i.Credentials.String() + ")"
	case KindControl:
		parts := make([]string, 0, len(i.Controls))
		for _, c := range i.Controls {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Field, c.Value))
		}
		return "CONTROL(" + strings.Join(parts, ",") + ")"
	default:
		return i.Kind.String()
	}
}

// fields collects whatever either pass extracted before precedence is
// applied.
type fields struct {
	authKey    string
	hasAuthKey bool

	wifi      bool
	ssid      string
	hasSSID   bool
	wifiValue string
	password  string

	controls [4]int64
	present  [4]bool

	// recognized counts every known key, including ignored ones.
	recognized int
}

func (f *fields) setControl(field control.Field, v int64) {
	if f.present[field] {
		return
	}
	f.controls[field] = v
	f.present[field] = true
}

func (f *fields) intent() Intent {
	if f.hasAuthKey {
		return Intent{Kind: KindAuthKey, AuthKey: f.authKey}
	}

	if f.wifi {
		ssid := f.ssid
		if !f.hasSSID {
			ssid = f.wifiValue
		}
		return Intent{
			Kind:        KindWifiCredentials,
			Credentials: provision.Record{SSID: ssid, Password: f.password},
		}
	}

	var updates []ControlUpdate
	for _, field := range control.Fields {
		if f.present[field] {
			updates = append(updates, ControlUpdate{Field: field, Value: f.controls[field]})
		}
	}
	if len(updates) > 0 {
		return Intent{Kind: KindControl, Controls: updates}
	}
	return Unrecognized()
}
