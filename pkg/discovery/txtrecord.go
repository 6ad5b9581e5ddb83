package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyID:   info.DeviceID,
		TXTKeyVer:  info.Version,
		TXTKeyAuth: strings.Join(info.AuthMethods, ","),
	}
	if info.WebSocketPath != "" {
		txt[TXTKeyWSPath] = info.WebSocketPath
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodeTXT parses TXT records. id and ver are required.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	info := &Info{}

	var ok bool
	if info.DeviceID, ok = txt[TXTKeyID]; !ok || info.DeviceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	if info.Version, ok = txt[TXTKeyVer]; !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVer)
	}
	if auth := txt[TXTKeyAuth]; auth != "" {
		info.AuthMethods = strings.Split(auth, ",")
	}
	info.WebSocketPath = txt[TXTKeyWSPath]
	info.Name = txt[TXTKeyName]
	return info, nil
}

// SupportsAuth reports whether info lists method.
func (i *Info) SupportsAuth(method string) bool {
	return slices.Contains(i.AuthMethods, method)
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings, sorted
// by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateTXT checks the encoded size of txt.
func ValidateTXT(txt TXTRecordMap) error {
	size := 0
	for _, s := range TXTRecordsToStrings(txt) {
		if len(s) > 255 {
			return fmt.Errorf("%w: entry %q exceeds 255 bytes", ErrInvalidTXTRecord, s[:16])
		}
		size += 1 + len(s)
	}
	if size > MaxTXTRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidTXTRecord, size)
	}
	return nil
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
