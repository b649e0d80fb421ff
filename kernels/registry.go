// Package kernels maps kernel names to device entry handles.
//
// Upstream binds every compute and custom AICPU context to one or two kernel
// names. The lowering stage never loads binaries itself; it asks a Registry
// for the entry address and the instruction prefetch count registered under a
// name, and writes both into the context struct.
//
// A single Registry is typically shared by every task built in a process, so
// lookups and registrations are safe for concurrent use.
package kernels

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hicann/fftsplus/core"
)

// Handle is a loaded kernel: its device entry address and the number of
// instruction cache lines to prefetch before dispatch.
type Handle struct {
	Entry    uint64
	Prefetch uint8
}

// Registry holds kernel handles by name.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register binds name to h, replacing any previous binding. An empty name or a
// zero entry address is rejected.
func (r *Registry) Register(name string, h Handle) error {
	if name == "" {
		return core.ParamInvalidf("kernel name is empty")
	}
	if h.Entry == 0 {
		return core.ParamInvalidf("kernel %q registered with a zero entry address", name)
	}
	r.mu.Lock()
	r.handles[name] = h
	r.mu.Unlock()
	return nil
}

// Lookup returns the handle bound to name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	return h, ok
}

// ResolveKernelHandle implements the lowering stage's kernel resolver.
func (r *Registry) ResolveKernelHandle(name string) (uint64, uint8, bool) {
	h, ok := r.Lookup(name)
	return h.Entry, h.Prefetch, ok
}

// Len returns the number of bound names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Names returns the bound names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ParseHandles parses a comma-separated list of name=entry[:prefetch] bindings,
// e.g. "add_fwd=0x1000:2,mul_fwd=0x2000". Entries accept any strconv base
// prefix; prefetch defaults to 0.
func ParseHandles(s string) (map[string]Handle, error) {
	out := make(map[string]Handle)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, core.ParamInvalidf("kernel binding %q is not name=entry[:prefetch]", item)
		}

		entryText, prefetchText, hasPrefetch := strings.Cut(value, ":")
		entry, err := strconv.ParseUint(entryText, 0, 64)
		if err != nil {
			return nil, core.ParamInvalidf("kernel %q entry %q: %v", name, entryText, err)
		}
		h := Handle{Entry: entry}
		if hasPrefetch {
			pf, err := strconv.ParseUint(prefetchText, 0, 8)
			if err != nil {
				return nil, core.ParamInvalidf("kernel %q prefetch %q: %v", name, prefetchText, err)
			}
			h.Prefetch = uint8(pf)
		}
		out[name] = h
	}
	return out, nil
}

// RegisterAll binds every handle in hs.
func (r *Registry) RegisterAll(hs map[string]Handle) error {
	for name, h := range hs {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
