package discovery

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTXT(t *testing.T) {
	info := &Info{
		DeviceID:      "a1b2c3",
		Version:       "1.0",
		AuthMethods:   []string{AuthHMAC, AuthPassphrase},
		WebSocketPath: "/ws",
		Name:          "Bedroom fan",
	}

	txt := EncodeTXT(info)
	assert.Equal(t, TXTRecordMap{
		"id":   "a1b2c3",
		"ver":  "1.0",
		"auth": "hmac,passphrase",
		"ws":   "/ws",
		"name": "Bedroom fan",
	}, txt)

	got, err := DecodeTXT(StringsToTXTRecords(TXTRecordsToStrings(txt)))
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.True(t, got.SupportsAuth(AuthPassphrase))
	assert.False(t, got.SupportsAuth("cert"))
}

func TestEncodeTXTOmitsEmptyOptionals(t *testing.T) {
	txt := EncodeTXT(&Info{DeviceID: "x", Version: "1.0"})
	assert.NotContains(t, txt, TXTKeyWSPath)
	assert.NotContains(t, txt, TXTKeyName)
	assert.Equal(t, "", txt[TXTKeyAuth])

	got, err := DecodeTXT(txt)
	require.NoError(t, err)
	assert.Nil(t, got.AuthMethods)
}

func TestDecodeTXTMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
	}{
		{"no id", TXTRecordMap{"ver": "1.0"}},
		{"empty id", TXTRecordMap{"id": "", "ver": "1.0"}},
		{"no ver", TXTRecordMap{"id": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			assert.True(t, errors.Is(err, ErrMissingRequired), "got %v", err)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "b=x=y", "flag", ""})
	assert.Equal(t, TXTRecordMap{"a": "1", "b": "x=y", "flag": ""}, txt)
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	got := TXTRecordsToStrings(TXTRecordMap{"ver": "1.0", "id": "x", "auth": "hmac"})
	assert.Equal(t, []string{"auth=hmac", "id=x", "ver=1.0"}, got)
}

func TestValidateTXT(t *testing.T) {
	assert.NoError(t, ValidateTXT(EncodeTXT(&Info{DeviceID: "x", Version: "1.0"})))

	long := TXTRecordMap{"name": strings.Repeat("n", 300)}
	assert.ErrorIs(t, ValidateTXT(long), ErrInvalidTXTRecord)

	big := TXTRecordMap{}
	for _, k := range []string{"a", "b", "c"} {
		big[k] = strings.Repeat("v", 200)
	}
	assert.ErrorIs(t, ValidateTXT(big), ErrInvalidTXTRecord)
}

func TestInstanceName(t *testing.T) {
	info := &Info{DeviceID: "a1b2c3"}
	assert.Equal(t, "FanLink-a1b2c3", info.InstanceName())
	assert.NoError(t, ValidateInstanceName(info.InstanceName()))

	long := &Info{DeviceID: strings.Repeat("d", 100)}
	assert.Len(t, long.InstanceName(), MaxInstanceNameLen)

	assert.ErrorIs(t, ValidateInstanceName(""), ErrMissingRequired)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", 64)), ErrInstanceNameTooLong)
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"10.0.0.2"}, []string{"10.0.0.2", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.2", "fe80::1"}, got)
}

func TestAdvertiserUpdateRequiresAdvertise(t *testing.T) {
	a := NewMDNSAdvertiser(AdvertiserConfig{})
	assert.False(t, a.Advertising())
	assert.ErrorIs(t, a.Update(Info{DeviceID: "x", Version: "1.0"}), ErrNotAdvertising)
	a.Stop()
}
