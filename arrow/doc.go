// Package arrow provides Apache Arrow IPC framing for the relay hub.
// This package implements:
// - Stream serialization of journal record batches for the HTTP endpoint
// - Stream deserialization for clients and tests reading it back
package arrow
