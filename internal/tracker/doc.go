// Package tracker drives one chat log upload through submission, processing
// start, and status polling to a terminal, timed-out, or cancelled state.
//
// The poll loop and the timeout timer are owned by a single goroutine per
// processing episode; every exit path stops both together, and a generation
// counter drops late responses so no state mutates after the episode ends.
package tracker
