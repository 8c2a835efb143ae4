package toolchain

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dshills/cadet/internal/reactive"
)

// leaf is one tracked binary: its cache plus the subscription that
// propagates recomputations to the root aggregate.
type leaf struct {
	cache *reactive.Cache[*ToolBinary]
	unsub func()
}

// versionSub is one aggregate change-stream registration.
type versionSub struct {
	id int
	fn func([]*ToolBinary)
}

// Registry tracks a set of tool binaries and aggregates their resolved
// versions into one derived list.
//
// The registry starts with a fixed baseline of names that cannot be
// removed; more names can be added and removed dynamically. Each name
// owns a reactive cache whose recomputation invalidates the root
// aggregate, so the aggregate is always recomputed lazily from the
// current leaves.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	runner Runner
	log    *log.Logger

	baseline map[string]bool
	order    []string
	leaves   map[string]*leaf

	root *reactive.Cache[[]*ToolBinary]

	// Aggregate change stream, deduplicated by value equality.
	streamMu   sync.Mutex
	streamSubs []versionSub
	nextStream int
	last       []*ToolBinary
	emitted    bool
}

// NewRegistry creates a registry tracking the given baseline names.
// Baseline names cannot be removed.
func NewRegistry(runner Runner, logger *log.Logger, baseline ...string) *Registry {
	r := &Registry{
		runner:   runner,
		log:      logger,
		baseline: make(map[string]bool, len(baseline)),
		leaves:   make(map[string]*leaf),
	}

	r.root = reactive.NewCache(r.aggregate)
	r.root.Subscribe(r.emitVersions)

	for _, name := range baseline {
		r.baseline[name] = true
		r.Add(name)
	}
	return r
}

// Add registers a binary for version tracking. Adding an already
// registered name is a no-op.
func (r *Registry) Add(name string) {
	r.mu.Lock()
	if _, exists := r.leaves[name]; exists {
		r.mu.Unlock()
		return
	}

	cache := reactive.NewCache(r.resolver(name))
	unsub := cache.Subscribe(func(*ToolBinary) {
		r.root.Invalidate()
	})

	r.leaves[name] = &leaf{cache: cache, unsub: unsub}
	r.order = append(r.order, name)
	r.mu.Unlock()

	r.root.Invalidate()
}

// Remove discards a dynamically added binary. Baseline names are never
// removed; removing them is a no-op, as is removing an unknown name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	if r.baseline[name] {
		r.mu.Unlock()
		return
	}
	lf, exists := r.leaves[name]
	if !exists {
		r.mu.Unlock()
		return
	}

	lf.unsub()
	lf.cache.Dispose()
	delete(r.leaves, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.root.Invalidate()
}

// Refresh invalidates every tracked binary and the aggregate, forcing
// re-resolution on next access.
func (r *Registry) Refresh() {
	r.mu.Lock()
	caches := make([]*reactive.Cache[*ToolBinary], 0, len(r.leaves))
	for _, lf := range r.leaves {
		caches = append(caches, lf.cache)
	}
	r.mu.Unlock()

	for _, c := range caches {
		c.Invalidate()
	}
	r.root.Invalidate()
}

// Get returns the cache tracking name, or nil if unregistered.
func (r *Registry) Get(name string) *reactive.Cache[*ToolBinary] {
	r.mu.Lock()
	defer r.mu.Unlock()

	lf, exists := r.leaves[name]
	if !exists {
		return nil
	}
	return lf.cache
}

// Names returns the tracked names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Versions returns the aggregate list of resolved tool binaries in
// registration order. Binaries that failed to resolve or resolved to no
// value are excluded.
func (r *Registry) Versions(ctx context.Context) ([]*ToolBinary, error) {
	return r.root.Get(ctx)
}

// SubscribeVersions registers a callback on the aggregate change stream.
// Emissions are deduplicated: a recomputation that produces a list equal
// by value to the previous emission is not delivered. The returned
// function removes the registration.
func (r *Registry) SubscribeVersions(fn func([]*ToolBinary)) (unsubscribe func()) {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()

	id := r.nextStream
	r.nextStream++
	r.streamSubs = append(r.streamSubs, versionSub{id: id, fn: fn})

	return func() {
		r.streamMu.Lock()
		defer r.streamMu.Unlock()
		for i, s := range r.streamSubs {
			if s.id == id {
				r.streamSubs = append(r.streamSubs[:i], r.streamSubs[i+1:]...)
				return
			}
		}
	}
}

// Dispose tears down every leaf cache and the aggregate.
func (r *Registry) Dispose() {
	r.mu.Lock()
	for _, lf := range r.leaves {
		lf.unsub()
		lf.cache.Dispose()
	}
	r.leaves = make(map[string]*leaf)
	r.order = nil
	r.mu.Unlock()

	r.root.Dispose()
}

// resolver builds the fetch function for one binary name.
func (r *Registry) resolver(name string) reactive.FetchFunc[*ToolBinary] {
	return func(ctx context.Context) (*ToolBinary, error) {
		bin, err := ResolveVersion(ctx, r.runner, name)
		if err != nil {
			return nil, err
		}
		if bin == nil {
			r.log.Debug("no resolvable version", "binary", name)
		}
		return bin, nil
	}
}

// aggregate is the root cache's fetch function: every resolved, non-nil
// leaf in registration order.
func (r *Registry) aggregate(ctx context.Context) ([]*ToolBinary, error) {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	caches := make(map[string]*reactive.Cache[*ToolBinary], len(r.leaves))
	for name, lf := range r.leaves {
		caches[name] = lf.cache
	}
	r.mu.Unlock()

	var tools []*ToolBinary
	for _, name := range names {
		cache, exists := caches[name]
		if !exists {
			continue
		}
		bin, err := cache.Get(ctx)
		if err != nil || bin == nil {
			// Failed or valueless resolution is filtered, not surfaced.
			continue
		}
		tools = append(tools, bin)
	}
	return tools, nil
}

// emitVersions delivers an aggregate recomputation to the change stream,
// dropping emissions equal by value to the previous one.
func (r *Registry) emitVersions(tools []*ToolBinary) {
	r.streamMu.Lock()
	if r.emitted && equalToolLists(r.last, tools) {
		r.streamMu.Unlock()
		return
	}
	r.emitted = true
	r.last = tools
	subs := make([]versionSub, len(r.streamSubs))
	copy(subs, r.streamSubs)
	r.streamMu.Unlock()

	for _, s := range subs {
		s.fn(tools)
	}
}

func equalToolLists(a, b []*ToolBinary) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
