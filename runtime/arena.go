package runtime

import (
	"github.com/hicann/fftsplus/core"
)

// Allocator hands out descriptor buffers.
type Allocator interface {
	Allocate(size, align int) ([]byte, error)
	Free(buf []byte)
}

// HostAllocator allocates cache-aligned host memory from the Go heap.
type HostAllocator struct{}

// Allocate returns a zeroed buffer of size bytes aligned to align.
func (HostAllocator) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, core.ParamInvalidf("negative allocation size %d", size)
	}
	if align != 0 && !core.IsPowerOfTwo(align) {
		return nil, core.ParamInvalidf("allocation alignment %d is not a power of two", align)
	}
	return core.AlignedBytes(size, align), nil
}

// Free is a no-op; the garbage collector reclaims host buffers.
func (HostAllocator) Free([]byte) {}

// Arena is one descriptor buffer partitioned into the regions of a layout:
//  1. Contexts (fixed-size context structs)
//  2. ArgsTable, Level1, Aicpu (the merged argument table)
//  3. Tiling (per-operator tiling data)
//  4. Blob (AICPU payloads)
type Arena struct {
	buffer  []byte
	layout  core.Layout
	regions map[string]core.Region
	alloc   Allocator
}

// NewArena allocates a buffer for layout through alloc. A nil alloc uses
// HostAllocator.
func NewArena(layout core.Layout, alloc Allocator) (*Arena, error) {
	if layout.Total <= 0 {
		return nil, core.ParamInvalidf("cannot create a zero-size descriptor arena")
	}
	if alloc == nil {
		alloc = HostAllocator{}
	}
	buf, err := alloc.Allocate(layout.Total, layout.Align)
	if err != nil {
		return nil, err
	}
	if len(buf) < layout.Total {
		return nil, core.OutOfSpacef("allocator returned %d bytes, layout needs %d", len(buf), layout.Total)
	}

	a := &Arena{
		buffer:  buf[:layout.Total],
		layout:  layout,
		regions: make(map[string]core.Region),
		alloc:   alloc,
	}
	for _, r := range layout.Regions() {
		a.regions[r.Name] = r
	}
	return a, nil
}

// Buffer returns the whole descriptor buffer.
func (a *Arena) Buffer() []byte { return a.buffer }

// Layout returns the layout the arena was created from.
func (a *Arena) Layout() core.Layout { return a.layout }

// Region returns the named region.
func (a *Arena) Region(name string) (core.Region, bool) {
	r, ok := a.regions[name]
	return r, ok
}

// Bytes returns the bytes of the named region. The slice aliases the arena.
func (a *Arena) Bytes(name string) ([]byte, error) {
	r, ok := a.regions[name]
	if !ok {
		return nil, core.Inconsistentf("region %s not found", name)
	}
	if a.buffer == nil {
		return nil, core.Inconsistentf("arena already released")
	}
	return a.buffer[r.Offset:r.End():r.End()], nil
}

// WriteRegion copies data to the start of the named region.
func (a *Arena) WriteRegion(name string, data []byte) error {
	dst, err := a.Bytes(name)
	if err != nil {
		return err
	}
	if len(data) > len(dst) {
		return core.OutOfSpacef("writing %d bytes into region %s of %d bytes", len(data), name, len(dst))
	}
	copy(dst, data)
	return nil
}

// WriteAt copies data at a descriptor offset.
func (a *Arena) WriteAt(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(a.buffer) {
		return core.OutOfSpacef("write of %d bytes at %d exceeds descriptor size %d", len(data), offset, len(a.buffer))
	}
	copy(a.buffer[offset:], data)
	return nil
}

// TotalSize returns the descriptor size.
func (a *Arena) TotalSize() int { return len(a.buffer) }

// Clone returns an independent host copy of the arena.
func (a *Arena) Clone() *Arena {
	buf := core.AlignedBytes(len(a.buffer), a.layout.Align)
	copy(buf, a.buffer)
	return &Arena{buffer: buf, layout: a.layout, regions: a.regions, alloc: HostAllocator{}}
}

// Release returns the buffer to its allocator. Further access fails.
func (a *Arena) Release() {
	if a.buffer == nil {
		return
	}
	a.alloc.Free(a.buffer)
	a.buffer = nil
}

// span is a bump allocator over a fixed buffer; the tiling data of a task is
// collected in one before the descriptor layout is known.
type span struct {
	buf  []byte
	used int
}

func newSpan(size int) *span {
	return &span{buf: make([]byte, size)}
}

// AllocateTiling copies data at the next 8-byte aligned offset.
func (s *span) AllocateTiling(data []byte) (uint32, error) {
	off := core.AlignSize(s.used, core.ArgsAlign)
	if off+len(data) > len(s.buf) {
		return 0, core.OutOfSpacef("tiling span exhausted: requested %d bytes at offset %d, span is %d", len(data), off, len(s.buf))
	}
	copy(s.buf[off:], data)
	s.used = off + len(data)
	return uint32(off), nil
}

// Bytes returns the used part of the span.
func (s *span) Bytes() []byte { return s.buf[:s.used] }
