// Package transport owns the drivers that move raw modem packets.
//
// Ownership boundary:
// - bounded non-blocking inbound queue
// - in-process medium (Ether) for single-process simulations
// - TCP driver speaking to a relay
//
// Drivers fill their queue from their own goroutine; the modem drains it
// from the machine goroutine.
package transport
