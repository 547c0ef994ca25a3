// Package host runs the machine side of the simulation: it owns attached
// modems, ticks them, and queues the signals they deliver.
package host
