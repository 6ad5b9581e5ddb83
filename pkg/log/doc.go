// Package log provides protocol capture for the fan-link command channel.
//
// Capture is separate from operational logging (slog): it records a
// machine-readable trace of every frame, characteristic access,
// authentication step and dispatched command, keyed by session id.
//
// # Basic Usage
//
//	// Development: print events through slog
//	capture := log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR records to a file
//	capture, _ := log.NewFileLogger("/var/log/fanlink/device.flog")
//
//	// Both
//	capture := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded Event values with integer keys.
// Reader iterates a file and optionally applies a Filter. Secrets (pass-phrases,
// Wi-Fi passwords, digests) are never written into events.
package log
