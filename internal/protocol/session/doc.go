// Package session owns modem<->relay stream helpers.
//
// Ownership boundary:
// - hello and packet frame exchange
// - dial/write timeouts
// - retry/backoff primitives
package session
