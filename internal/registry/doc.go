// Package registry resolves cross-segment timing for one shared master
// timeline.
//
// Segments register independently and in any order. Each one may declare
// dependencies on qualified labels ("<segmentId>.<label>") published by other
// segments. A registration waits for those labels, starts at the latest of
// their resolved global times, inserts its content into the master timeline
// and publishes its own labels offset by its start.
//
// # Ledger and readiness
//
// Register increments the expected count before it returns, so a burst of
// registrations submitted together can never make the registry ready after
// only a subset of them. Every registration settles exactly once, whatever
// its outcome. The first time the settled count catches up with the expected
// count, Done is closed. Auto-play happens just before that and OnReady
// callbacks just after. A registration submitted after that point re-opens
// Ready but does not fire readiness again.
//
// # Failure
//
// A dependency that is not published within the dependency timeout fails the
// registration. Its OnDependencyFailure producer, when present, picks one of
// the Fallback variants. Failures never propagate to other segments; in strict
// mode they are additionally collected and reported by Err and Wait.
package registry
