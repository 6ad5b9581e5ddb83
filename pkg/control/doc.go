// Package control holds the actuator model: the commanded (desired) and last
// applied (reported) values of speed, angle, light and power.
//
// Actuation has no latency in this model. Apply writes Desired and mirrors it
// into Reported in the same call, then notifies the field's subscribers. If
// real actuation delay is introduced later this becomes a state machine
// (desired set, pending, reported).
package control
