package persistence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Update record layout: one flag byte followed by the download token.
const (
	UpdateBlobKey    = "ota"
	UpdateTokenSize  = 32
	UpdateRecordSize = 1 + UpdateTokenSize
)

// UpdateFlag is the state byte of an update record. The values are ASCII
// digits so the record reads naturally in a hex dump.
type UpdateFlag byte

const (
	UpdateNone      UpdateFlag = 0
	UpdateRequested UpdateFlag = '1'
	UpdateSucceeded UpdateFlag = '2'
	UpdateFailed    UpdateFlag = '3'
)

// String returns the flag name.
func (f UpdateFlag) String() string {
	switch f {
	case UpdateNone:
		return "none"
	case UpdateRequested:
		return "requested"
	case UpdateSucceeded:
		return "succeeded"
	case UpdateFailed:
		return "failed"
	default:
		return fmt.Sprintf("flag(0x%02x)", byte(f))
	}
}

// Update errors.
var (
	ErrInvalidUpdateRecord = errors.New("invalid update record")
	ErrNoPendingUpdate     = errors.New("no pending update")
)

// UpdateRecord is a firmware update request.
type UpdateRecord struct {
	Flag  UpdateFlag
	Token [UpdateTokenSize]byte
}

// MarshalBinary encodes the record as flag byte plus token.
func (r UpdateRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, UpdateRecordSize)
	b[0] = byte(r.Flag)
	copy(b[1:], r.Token[:])
	return b, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (r *UpdateRecord) UnmarshalBinary(data []byte) error {
	if len(data) != UpdateRecordSize {
		return fmt.Errorf("%w: length %d", ErrInvalidUpdateRecord, len(data))
	}
	r.Flag = UpdateFlag(data[0])
	copy(r.Token[:], data[1:])
	return nil
}

// TokenString returns the token up to its first NUL.
func (r UpdateRecord) TokenString() string {
	for i, c := range r.Token {
		if c == 0 {
			return string(r.Token[:i])
		}
	}
	return string(r.Token[:])
}

// URL returns the download URL for the record: base with the token in the
// ota_token query parameter.
func (r UpdateRecord) URL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ota_token", r.TokenString())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BlobStore stores named binary records.
type BlobStore interface {
	GetBlob(key string) ([]byte, bool, error)
	PutBlob(key string, data []byte) error
}

// RequestUpdate records an update request with token. Tokens longer than
// UpdateTokenSize are rejected.
func RequestUpdate(store BlobStore, token string) error {
	if len(token) == 0 || len(token) > UpdateTokenSize {
		return fmt.Errorf("%w: token length %d", ErrInvalidUpdateRecord, len(token))
	}
	rec := UpdateRecord{Flag: UpdateRequested}
	copy(rec.Token[:], token)
	data, _ := rec.MarshalBinary()
	return store.PutBlob(UpdateBlobKey, data)
}

// CheckUpdate reads the update record at boot. pending is true only when
// the flag is UpdateRequested. A missing record is not an error.
func CheckUpdate(store BlobStore) (rec UpdateRecord, pending bool, err error) {
	data, ok, err := store.GetBlob(UpdateBlobKey)
	if err != nil || !ok {
		return UpdateRecord{}, false, err
	}
	if err := rec.UnmarshalBinary(data); err != nil {
		return UpdateRecord{}, false, err
	}
	return rec, rec.Flag == UpdateRequested, nil
}

// CompleteUpdate rewrites the flag of a pending record to UpdateSucceeded
// or UpdateFailed. The token is kept.
func CompleteUpdate(store BlobStore, ok bool) error {
	rec, pending, err := CheckUpdate(store)
	if err != nil {
		return err
	}
	if !pending {
		return ErrNoPendingUpdate
	}
	rec.Flag = UpdateFailed
	if ok {
		rec.Flag = UpdateSucceeded
	}
	data, _ := rec.MarshalBinary()
	return store.PutBlob(UpdateBlobKey, data)
}

// Updater performs a firmware update.
type Updater interface {
	Update(ctx context.Context, rec UpdateRecord) error
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, rec UpdateRecord) error

// Update calls fn.
func (fn UpdaterFunc) Update(ctx context.Context, rec UpdateRecord) error { return fn(ctx, rec) }

// RunPendingUpdate runs u when an update is pending and records the outcome.
// ran reports whether an update was attempted; the returned error is the
// updater's error (or a store error).
func RunPendingUpdate(ctx context.Context, store BlobStore, u Updater) (ran bool, err error) {
	rec, pending, err := CheckUpdate(store)
	if err != nil || !pending {
		return false, err
	}
	updErr := u.Update(ctx, rec)
	if err := CompleteUpdate(store, updErr == nil); err != nil {
		return true, errors.Join(updErr, err)
	}
	return true, updErr
}
