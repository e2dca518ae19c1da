// Package core provides the relay hub's message handling.
// This package implements:
// - Relay: verbatim forwarding of block proposals and announcements
// - Tracker: fan-out and fan-in of longest chain queries
// - SelectWinner: the longest reply rule
// - Dispatcher: the single goroutine that owns the peer registry and pending table
package core
