// Package persistence stores device state that must survive restarts.
//
// State is a single JSON file holding the provisioned Wi-Fi credentials, the
// last applied control values and named binary blobs. The firmware update
// request record lives in the "ota" blob.
package persistence
