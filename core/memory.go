package core

import (
	"fmt"
	"strconv"
	"strings"
)

// MemoryKind tags which memory region an address belongs to.
type MemoryKind uint8

const (
	MemNone MemoryKind = iota
	MemFeatureMap
	MemWeight
	MemWorkspace
	MemModelIO
	MemArgs // the descriptor's own device base
	MemHost
	MemTiling // tiling region of the descriptor, derived from MemArgs at layout time
)

var memoryKindNames = [...]string{
	MemNone:       "none",
	MemFeatureMap: "featuremap",
	MemWeight:     "weight",
	MemWorkspace:  "workspace",
	MemModelIO:    "modelio",
	MemArgs:       "args",
	MemHost:       "host",
	MemTiling:     "tiling",
}

func (k MemoryKind) String() string {
	if int(k) < len(memoryKindNames) {
		return memoryKindNames[k]
	}
	return fmt.Sprintf("memkind(%d)", uint8(k))
}

// ParseMemoryKind maps a name produced by String back to its kind.
func ParseMemoryKind(s string) (MemoryKind, error) {
	for i, name := range memoryKindNames {
		if name == s {
			return MemoryKind(i), nil
		}
	}
	return MemNone, ParamInvalidf("unknown memory kind %q", s)
}

// Bases holds the base address of every memory region a logical slot may be
// resolved against.
type Bases map[MemoryKind]uint64

// Clone returns an independent copy of b.
func (b Bases) Clone() Bases {
	out := make(Bases, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ParseBases parses a "kind=addr,kind=addr" list such as
// "featuremap=0x10000,workspace=0x20000". Addresses accept any Go integer
// literal base.
func ParseBases(s string) (Bases, error) {
	b := make(Bases)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, ParamInvalidf("base %q is not kind=addr", field)
		}
		kind, err := ParseMemoryKind(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(value), 0, 64)
		if err != nil {
			return nil, ParamInvalidf("base address %q: %v", value, err)
		}
		b[kind] = addr
	}
	return b, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k MemoryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MemoryKind) UnmarshalText(text []byte) error {
	v, err := ParseMemoryKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
