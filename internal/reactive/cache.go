package reactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FetchFunc computes the cached value.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// FetchError wraps a failure of the underlying fetch function.
// The cache stays stale after a FetchError, so the next Get retries.
type FetchError struct {
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrDisposed is returned by Get after the cache has been disposed.
var ErrDisposed = errors.New("cache disposed")

// call is one fetch in flight. Concurrent Get callers share it.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (cl *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-cl.done:
		return cl.val, cl.err
	}
}

// subscriber pairs a callback with a registration ID so Subscribe can
// hand back an unsubscribe function.
type subscriber[T any] struct {
	id int
	fn func(T)
}

// Cache is a lazily computed single-value cache.
//
// Cache is safe for concurrent use. At most one fetch is outstanding at
// any instant; all concurrent Get callers observe the result of the same
// fetch.
type Cache[T any] struct {
	mu sync.Mutex

	fetch FetchFunc[T]

	value T
	valid bool

	inflight *call[T]
	owed     bool // one follow-up fetch owed once the in-flight call settles

	subs     []subscriber[T]
	nextSub  int
	disposed bool
}

// NewCache creates a cache around the given fetch function.
// The value is not computed until the first Get.
func NewCache[T any](fetch FetchFunc[T]) *Cache[T] {
	return &Cache[T]{fetch: fetch}
}

// Get returns the cached value, computing it if stale.
//
// If a fetch is already in flight the caller joins it and receives the
// same result; no duplicate work is performed. A fetch failure is
// returned as a *FetchError and leaves the cache stale.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		var zero T
		return zero, ErrDisposed
	}
	if c.valid {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	if c.inflight != nil {
		cl := c.inflight
		c.mu.Unlock()
		return cl.wait(ctx)
	}

	cl := &call[T]{done: make(chan struct{})}
	c.inflight = cl
	c.mu.Unlock()

	c.run(ctx, cl)
	return cl.wait(ctx)
}

// Invalidate marks the cached value stale.
//
// If a fetch is in flight, one follow-up fetch is scheduled after it
// settles, no matter how many times Invalidate is called in the interim.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.valid = false
	if c.inflight != nil {
		c.owed = true
	}
}

// Subscribe registers a callback invoked once per successful
// recomputation, after the value is committed. Callbacks run in
// registration order, outside the cache's lock. The returned function
// removes the registration; it is safe to call more than once.
func (c *Cache[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispose releases all subscribers. Further Dispose calls are no-ops and
// no callback fires after disposal. Get returns ErrDisposed afterwards.
func (c *Cache[T]) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disposed = true
	c.subs = nil
}

// Valid reports whether the cache currently holds a fresh value.
func (c *Cache[T]) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// run executes the fetch for cl, commits the result and starts the owed
// follow-up fetch if one was scheduled while cl was in flight.
func (c *Cache[T]) run(ctx context.Context, cl *call[T]) {
	v, err := c.fetch(ctx)
	if err != nil {
		cl.err = &FetchError{Err: err}
	} else {
		cl.val = v
	}

	var notify []func(T)
	var next *call[T]

	c.mu.Lock()
	c.inflight = nil
	owed := c.owed
	c.owed = false

	if err == nil {
		c.value = v
		c.valid = true
		for _, s := range c.subs {
			notify = append(notify, s.fn)
		}
		if owed && !c.disposed {
			// Invalidated while fetching: exactly one recomputation is
			// owed, run it in the background.
			c.valid = false
			next = &call[T]{done: make(chan struct{})}
			c.inflight = next
		}
	}
	c.mu.Unlock()

	close(cl.done)

	for _, fn := range notify {
		fn(v)
	}

	if next != nil {
		go c.run(context.Background(), next)
	}
}
