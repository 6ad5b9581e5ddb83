// Package dispatch applies parsed packets to the device.
//
// A Dispatcher owns no state of its own. Everything it touches lives in an
// explicit Device context: the authentication table, the control state, the
// provisioning hand-off and the device pass-phrase. Authorization is the
// caller's job; the gateway checks the gate before it hands a packet here.
package dispatch
