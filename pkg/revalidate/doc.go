// Package revalidate provides a stale-while-revalidate cache for a single
// value loaded from a remote source.
//
// A Coordinator holds exactly one current Snapshot of the value. Reads of a
// fresh snapshot never lock and never perform I/O. Once the snapshot expires
// the next reader becomes the refresher: it calls the Source while holding the
// refresh gate, so there is never more than one call to the source in flight.
//
// ## Freshness facts
//
// Every FetchResult carries its own freshness: an absolute expiry or a
// max-age that is converted to an absolute expiry when the result arrives,
// and a must-revalidate flag. The flag belongs to the snapshot, not to the
// coordinator, so each refresh may change whether stale data is usable.
//
// If the expired snapshot does not require revalidation, readers get the
// stale value immediately and the refresh runs in the background. If it does,
// readers wait for the refresh that is in flight and all of them observe its
// single outcome: the new snapshot or the identical *SourceError.
//
// ## Failures and backoff
//
// A failed refresh never replaces the current snapshot. The failure is
// remembered together with the time it happened, and no further attempt is
// made until RetryInterval has passed. During that window readers that must
// revalidate receive the remembered *SourceError and everyone else receives
// the stale value.
//
// A panic inside the source is not a failure. It is recovered on the refresh
// goroutine and re-raised as a *RefreshPanic in the caller waiting on that
// attempt.
package revalidate
