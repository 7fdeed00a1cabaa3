package device

import (
	"slices"
	"strings"
	"sync"
)

// Change is a registry notification.
type Change struct {
	Info      Info
	Connected bool
}

// Registry tracks connected devices. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Info
	subs    map[int]func(Change)
	nextSub int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Info),
		subs:    make(map[int]func(Change)),
	}
}

// Add registers a device, replacing any previous entry with the same id.
func (r *Registry) Add(info Info) {
	r.mu.Lock()
	r.devices[info.ID] = info
	subs := r.subscribers()
	r.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Info: info, Connected: true})
	}
}

// Remove drops a device. It reports whether the device was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	info, ok := r.devices[id]
	delete(r.devices, id)
	subs := r.subscribers()
	r.mu.Unlock()

	if ok {
		for _, fn := range subs {
			fn(Change{Info: info, Connected: false})
		}
	}
	return ok
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.devices[id]
	return info, ok
}

// List returns all devices ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.devices))
	for _, info := range r.devices {
		out = append(out, info)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Subscribe calls fn after every Add and Remove. fn runs on the caller's
// goroutine and must not call back into Subscribe. The returned function
// cancels the subscription.
func (r *Registry) Subscribe(fn func(Change)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// subscribers must be called with mu held.
func (r *Registry) subscribers() []func(Change) {
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Change), len(ids))
	for i, id := range ids {
		out[i] = r.subs[id]
	}
	return out
}
