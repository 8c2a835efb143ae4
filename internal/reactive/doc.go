// Package reactive provides a single-value cache with lazy, deduplicated
// recomputation and invalidation-aware change notification.
//
// A Cache holds one value produced by a fetch function. The value is
// computed on first access, shared between concurrent callers, and
// recomputed after invalidation. Subscribers are notified in registration
// order after each successful recomputation, which lets derived caches
// invalidate themselves when a dependency changes.
//
// # Invalidation semantics
//
// Invalidate marks the cached value stale. If a fetch is in flight, any
// number of Invalidate calls coalesce into exactly one follow-up fetch,
// started after the in-flight fetch commits. A failed fetch leaves the
// cache stale, so the next Get retries; an owed follow-up collapses into
// that lazy retry.
package reactive
