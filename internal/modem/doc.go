// Package modem owns the simulated packet radio attached to one machine.
//
// Ownership boundary:
// - open-port registry
// - outbound send/broadcast through the wire codec
// - per-tick inbound drain, filtering and signal delivery
//
// The modem is driven from a single machine goroutine. The transport queue
// is the only boundary filled from another goroutine.
//
// Lifecycle order:
// - constructed -> running -> stopped
package modem
