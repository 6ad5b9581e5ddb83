package interactive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/provision"
)

type fakeControls struct {
	state   *control.State
	creds   *provision.Record
	key     []byte
	token   string
	setErr  error
	connCnt int
}

func newFakeControls() *fakeControls {
	return &fakeControls{state: control.NewState()}
}

func (f *fakeControls) Status() Status {
	return Status{
		DeviceID:     "fan-01",
		Desired:      f.state.Desired(),
		Reported:     f.state.Reported(),
		Connections:  f.connCnt,
		AuthCapacity: 6,
		Listen:       "127.0.0.1:7420",
	}
}

func (f *fakeControls) Set(field control.Field, v int64) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.state.Apply(field, v)
}

func (f *fakeControls) Credentials() (provision.Record, bool, error) {
	if f.creds == nil {
		return provision.Record{}, false, nil
	}
	return *f.creds, true, nil
}

func (f *fakeControls) SetKey(key []byte) error { f.key = key; return nil }

func (f *fakeControls) RequestUpdate(token string) error {
	if token == "bad" {
		return errors.New("invalid token")
	}
	f.token = token
	return nil
}

func TestExecSet(t *testing.T) {
	ctrl := newFakeControls()
	var out bytes.Buffer

	assert.True(t, Exec(ctrl, "set speed 120", &out))
	assert.Equal(t, uint32(120), ctrl.state.Reported().Speed)
	assert.Contains(t, out.String(), "speed = 120")

	out.Reset()
	Exec(ctrl, "set Power -1", &out)
	assert.Contains(t, out.String(), "negative")
	assert.Equal(t, uint32(0), ctrl.state.Reported().Power)

	out.Reset()
	Exec(ctrl, "set fan 1", &out)
	assert.Contains(t, out.String(), "unknown control field")

	out.Reset()
	Exec(ctrl, "set speed", &out)
	assert.Contains(t, out.String(), "Usage")
}

func TestExecStatus(t *testing.T) {
	ctrl := newFakeControls()
	ctrl.connCnt = 2
	_ = ctrl.state.Apply(control.FieldAngle, 45)
	var out bytes.Buffer

	Exec(ctrl, "status", &out)
	assert.Contains(t, out.String(), "fan-01")
	assert.Contains(t, out.String(), "Connections: 2 (auth slots 0/6)")
	assert.Contains(t, out.String(), "angle        45        45")
}

func TestExecCreds(t *testing.T) {
	ctrl := newFakeControls()
	var out bytes.Buffer

	Exec(ctrl, "creds", &out)
	assert.Contains(t, out.String(), "No credentials")

	ctrl.creds = &provision.Record{SSID: "MyNet", Password: "secret"}
	out.Reset()
	Exec(ctrl, "creds", &out)
	assert.Contains(t, out.String(), "MyNet")
	assert.NotContains(t, out.String(), "secret")
}

func TestExecKeyAndUpdate(t *testing.T) {
	ctrl := newFakeControls()
	var out bytes.Buffer

	Exec(ctrl, "key n3wkey", &out)
	assert.Equal(t, []byte("n3wkey"), ctrl.key)

	Exec(ctrl, "update abc", &out)
	assert.Equal(t, "abc", ctrl.token)

	out.Reset()
	Exec(ctrl, "update bad", &out)
	assert.Contains(t, out.String(), "Error: invalid token")
}

func TestExecQuitAndUnknown(t *testing.T) {
	ctrl := newFakeControls()
	var out bytes.Buffer

	assert.True(t, Exec(ctrl, "   ", &out))
	assert.True(t, Exec(ctrl, "bogus", &out))
	assert.Contains(t, out.String(), "Unknown command: bogus")
	assert.False(t, Exec(ctrl, "quit", &out))
}
