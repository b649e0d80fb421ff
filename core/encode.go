package core

import "encoding/binary"

// Struct is a fixed-size little-endian context struct under construction.
// Field writers panic on out-of-range offsets; offsets are compile-time
// constants of the context formats, so an overrun is a programming error.
type Struct [ContextSize]byte

// PutU8 writes v at off.
func (s *Struct) PutU8(off int, v uint8) {
	s[off] = v
}

// PutU16 writes v at off.
func (s *Struct) PutU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(s[off:off+2], v)
}

// PutU32 writes v at off.
func (s *Struct) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(s[off:off+4], v)
}

// PutU64 writes v at off.
func (s *Struct) PutU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(s[off:off+8], v)
}

// U16 reads the field at off.
func (s *Struct) U16(off int) uint16 {
	return binary.LittleEndian.Uint16(s[off : off+2])
}

// U32 reads the field at off.
func (s *Struct) U32(off int) uint32 {
	return binary.LittleEndian.Uint32(s[off : off+4])
}

// U64 reads the field at off.
func (s *Struct) U64(off int) uint64 {
	return binary.LittleEndian.Uint64(s[off : off+8])
}

// PutWord writes a 64-bit little-endian word into buf at off.
func PutWord(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+SlotSize], v)
}

// Word reads a 64-bit little-endian word from buf at off.
func Word(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+SlotSize])
}
