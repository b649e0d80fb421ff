package core

import "unsafe"

const (
	// CacheLineSize is the default platform descriptor-buffer alignment.
	CacheLineSize = 64

	// SlotSize is the width of one argument table entry.
	SlotSize = 8

	// ArgsAlign is the alignment of the argument table region inside a descriptor.
	ArgsAlign = 8
)

// IsAligned reports whether addr is a multiple of align. align must be a power of two.
func IsAligned(addr uintptr, align uintptr) bool {
	return addr&(align-1) == 0
}

// AlignSize rounds size up to the specified alignment boundary.
// align must be a power of two.
func AlignSize(size, align int) int {
	if align <= 1 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AlignedBytes allocates a byte slice with its underlying array aligned to align.
// align must be a power of two; values below 1 fall back to CacheLineSize.
func AlignedBytes(size, align int) []byte {
	if size == 0 {
		return nil
	}
	if align < 1 {
		align = CacheLineSize
	}
	// Allocate extra space to allow for alignment.
	buf := make([]byte, size+align-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr & uintptr(align-1); mod != 0 {
		offset = uintptr(align) - mod
	}

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}
