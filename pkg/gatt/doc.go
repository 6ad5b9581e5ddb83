// Package gatt exposes the device as a small set of characteristics and
// enforces the authentication gate in front of them.
//
// Characteristics:
//
//	nonce           read nonce, write 32-byte digest, notify     (ungated)
//	auth_key        write pass-phrase packet                     (ungated)
//	packet          write command packet, at most 128 bytes      (gated)
//	control_speed   read/write uint32 little-endian              (gated)
//	control_angle   read/write uint32 little-endian              (gated)
//	control_light   read/write uint8                             (gated)
//	control_power   read/write uint8                             (gated)
//	status_*        read/notify reported values                  (gated)
//
// Status codes follow the ATT error codes so a BLE front end can pass them
// through unchanged.
package gatt
