// Package canvas holds the authoritative drawing state of the shared surface.
//
// A Session owns the ordered stroke log and a coverage Meter. The Coordinator owns the
// ACTIVE / SNAPSHOT_IN_PROGRESS state machine on top of it and is the only code that moves
// a Session between states.
//
// Nothing in this package is safe for concurrent use. The realtime hub confines a Session
// and its Coordinator to a single goroutine, which is what makes the check-and-transition
// in Coordinator.Evaluate atomic with respect to every other stroke.
package canvas
