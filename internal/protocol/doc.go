// Package protocol owns the modem wire contract and parsing primitives.
//
// Ownership boundary:
// - typed argument values
// - packet encode with argument and size quotas
// - packet decode with bounds checking
//
// Packet layout (little-endian):
//
//	[int32 len][sender]
//	[1 byte has_target]
//	( [int32 len][target] if has_target )
//	[int32 port]
//	[int32 num_args]
//	num_args x ( [int32 tag][payload] )
package protocol
