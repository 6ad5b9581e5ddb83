// Package provision carries validated Wi-Fi credentials from the command
// channel to the network-provisioning subsystem.
//
// The hand-off is a bounded queue. Producers never block for longer than the
// configured send timeout (default 50ms); a full queue is reported as
// ErrQueueFull and the caller moves on. A Worker drains the queue and passes
// each record to a Provisioner, which owns the actual network join.
package provision
