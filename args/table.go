// Package args builds the flat argument (address) table of one FFTS+ task.
//
// The table is append-only and two-phase. During the build phase contexts
// append their addresses and receive stable indices; addresses that live inside
// a context struct (Level1) or inside the AICPU blob are deferred. Finalize
// merges the three groups in a fixed order:
//
//	[normal entries][Level1 entries][AICPU entries]
//
// so downstream consumers can slice the merged table with two length counters.
// After finalize only UpdateSlotAtIndex and Resolve mutate the table.
package args

import (
	"fmt"

	"github.com/hicann/fftsplus/core"
)

// Placement decides who resolves a slot's 64-bit value.
type Placement uint8

const (
	PlacementAbsolute Placement = iota // resolved on the host
	PlacementLogical                   // base+offset, resolved against the slot's memory kind
	PlacementModelIO                   // pre-bound model input/output, rebound via UpdateSlotAtIndex
)

func (p Placement) String() string {
	switch p {
	case PlacementAbsolute:
		return "absolute"
	case PlacementLogical:
		return "logical"
	case PlacementModelIO:
		return "modelio"
	}
	return fmt.Sprintf("placement(%d)", uint8(p))
}

// Slot is one argument table entry.
type Slot struct {
	Value     uint64 // current content
	Offset    uint64 // logical offset, meaningful for PlacementLogical
	Placement Placement
	Kind      core.MemoryKind
}

// Addr is an address not yet placed in the table.
type Addr struct {
	Value     uint64
	Placement Placement
	Kind      core.MemoryKind
}

// AbsoluteAddr returns a host-resolved address.
func AbsoluteAddr(v uint64) Addr { return Addr{Value: v, Placement: PlacementAbsolute} }

// LogicalAddr returns an offset resolved against kind's base.
func LogicalAddr(off uint64, kind core.MemoryKind) Addr {
	return Addr{Value: off, Placement: PlacementLogical, Kind: kind}
}

// ModelIOAddr returns a pre-bound model I/O address.
func ModelIOAddr(v uint64) Addr {
	return Addr{Value: v, Placement: PlacementModelIO, Kind: core.MemModelIO}
}

func (a Addr) slot() Slot {
	s := Slot{Value: a.Value, Placement: a.Placement, Kind: a.Kind}
	if a.Placement == PlacementLogical {
		s.Offset = a.Value
	}
	return s
}

// LogicalResolver is the memory-allocation owner. ok is false when offset is not
// known yet and must be resolved at dispatch time.
type LogicalResolver interface {
	ResolveLogicalAddress(offset uint64) (addr uint64, kind core.MemoryKind, ok bool)
}

// Ref is the ordinal of a deferred Level1 or AICPU entry within its group.
type Ref uint32

// Level1Addr is an address field of an already-built context struct.
type Level1Addr struct {
	ContextID   uint32
	FieldOffset uint32 // byte offset inside the context struct
	Addr        Addr
}

// Phase is the table's build phase.
type Phase uint8

const (
	PhaseBuilding Phase = iota
	PhaseFinalized
)

func (p Phase) String() string {
	if p == PhaseFinalized {
		return "finalized"
	}
	return "building"
}

// Table is the argument table builder of one task. Not safe for concurrent use.
type Table struct {
	phase      Phase
	resolver   LogicalResolver
	slotBudget int

	normal []Slot
	level1 []Slot
	aicpu  []Slot
	merged []Slot

	patches  *PatchTracker
	embedded *AicpuTracker

	blob     []byte // pre-sized tail span
	blobUsed int
}

// NewTable creates a table limited to slotBudget entries (0 means unbounded)
// with a blob span of blobBudget bytes. resolver may be nil.
func NewTable(slotBudget, blobBudget int, resolver LogicalResolver) *Table {
	if slotBudget < 0 {
		slotBudget = 0
	}
	if blobBudget < 0 {
		blobBudget = 0
	}
	return &Table{
		resolver:   resolver,
		slotBudget: slotBudget,
		normal:     make([]Slot, 0, slotBudget),
		patches:    newPatchTracker(),
		embedded:   newAicpuTracker(),
		blob:       make([]byte, blobBudget),
	}
}

// Phase returns the current phase.
func (t *Table) Phase() Phase { return t.phase }

func (t *Table) requireBuilding(op string) error {
	if t.phase != PhaseBuilding {
		return core.Inconsistentf("%s called on a %s table", op, t.phase)
	}
	return nil
}

func (t *Table) requireFinalized(op string) error {
	if t.phase != PhaseFinalized {
		return core.Inconsistentf("%s called on a %s table", op, t.phase)
	}
	return nil
}

func (t *Table) total() int {
	return len(t.normal) + len(t.level1) + len(t.aicpu)
}

func (t *Table) reserve(op string) error {
	if err := t.requireBuilding(op); err != nil {
		return err
	}
	if t.slotBudget > 0 && t.total() >= t.slotBudget {
		return core.OutOfSpacef("%s: argument table budget of %d slots exhausted", op, t.slotBudget)
	}
	return nil
}

func (t *Table) appendNormal(op string, s Slot) (uint32, error) {
	if err := t.reserve(op); err != nil {
		return 0, err
	}
	t.normal = append(t.normal, s)
	return uint32(len(t.normal) - 1), nil
}

// Classify asks the memory owner about offset: a recognized offset folds to an
// absolute address tagged with its memory kind, anything else stays logical in
// the feature-map region.
func (t *Table) Classify(offset uint64) Addr {
	if t.resolver != nil {
		if addr, kind, ok := t.resolver.ResolveLogicalAddress(offset); ok {
			return Addr{Value: addr, Placement: PlacementAbsolute, Kind: kind}
		}
	}
	return LogicalAddr(offset, core.MemFeatureMap)
}

// AppendResolvedAddress appends an already-resolved host/device address.
func (t *Table) AppendResolvedAddress(value uint64) (uint32, error) {
	return t.appendNormal("AppendResolvedAddress", AbsoluteAddr(value).slot())
}

// AppendLogicalAddress appends offset, folded to absolute when the memory owner
// recognizes it.
func (t *Table) AppendLogicalAddress(offset uint64) (uint32, error) {
	return t.appendNormal("AppendLogicalAddress", t.Classify(offset).slot())
}

// AppendRawValue appends a runtime-only value resolved against kind's base.
func (t *Table) AppendRawValue(value uint64, kind core.MemoryKind) (uint32, error) {
	return t.appendNormal("AppendRawValue", LogicalAddr(value, kind).slot())
}

// AppendModelIOAddress appends a pre-bound model input/output address.
func (t *Table) AppendModelIOAddress(value uint64) (uint32, error) {
	return t.appendNormal("AppendModelIOAddress", ModelIOAddr(value).slot())
}

// AppendAddr appends a, whatever its placement.
func (t *Table) AppendAddr(a Addr) (uint32, error) {
	return t.appendNormal("AppendAddr", a.slot())
}

// AppendLevel1 defers an address that lives inside a context struct. It joins
// the merged table after every normal entry at Finalize.
func (t *Table) AppendLevel1(a Level1Addr) (Ref, error) {
	if err := t.reserve("AppendLevel1"); err != nil {
		return 0, err
	}
	if int(a.FieldOffset)+core.SlotSize > core.ContextSize {
		return 0, core.Inconsistentf("level1 field offset %d of context %d outside the %d-byte struct", a.FieldOffset, a.ContextID, core.ContextSize)
	}
	ref := Ref(len(t.level1))
	t.level1 = append(t.level1, a.Addr.slot())
	t.patches.record(a.ContextID, a.FieldOffset, ref)
	return ref, nil
}

// AppendLevel1Group defers every address of group or none of them: budget and
// field offsets are checked for the whole group before the first append.
func (t *Table) AppendLevel1Group(group []Level1Addr) ([]Ref, error) {
	if err := t.requireBuilding("AppendLevel1Group"); err != nil {
		return nil, err
	}
	if t.slotBudget > 0 && t.total()+len(group) > t.slotBudget {
		return nil, core.OutOfSpacef("AppendLevel1Group: %d entries exceed the remaining budget of %d slots", len(group), t.slotBudget-t.total())
	}
	for _, a := range group {
		if int(a.FieldOffset)+core.SlotSize > core.ContextSize {
			return nil, core.Inconsistentf("level1 field offset %d of context %d outside the %d-byte struct", a.FieldOffset, a.ContextID, core.ContextSize)
		}
	}
	refs := make([]Ref, 0, len(group))
	for _, a := range group {
		ref := Ref(len(t.level1))
		t.level1 = append(t.level1, a.Addr.slot())
		t.patches.record(a.ContextID, a.FieldOffset, ref)
		refs = append(refs, ref)
	}
	return refs, nil
}

// AppendAicpuEmbeddedAddress records that a's value must be copied into the
// AICPU blob at blobOffset on every refresh, and appends one AICPU-group table
// entry carrying it. blobOffset+8 beyond the blob span fails with ErrOutOfSpace
// and changes nothing.
func (t *Table) AppendAicpuEmbeddedAddress(a Addr, blobOffset uint32) (Ref, error) {
	if err := t.reserve("AppendAicpuEmbeddedAddress"); err != nil {
		return 0, err
	}
	if uint64(blobOffset)+core.SlotSize > uint64(len(t.blob)) {
		return 0, core.OutOfSpacef("aicpu embedded address at blob offset %d exceeds blob size %d", blobOffset, len(t.blob))
	}
	ref := Ref(len(t.aicpu))
	t.aicpu = append(t.aicpu, a.slot())
	t.embedded.record(blobOffset, ref)
	return ref, nil
}

// AppendBinaryBlob bump-allocates len(data) bytes, 8-byte aligned, from the
// blob span and copies data in. It returns the blob-relative offset.
func (t *Table) AppendBinaryBlob(data []byte) (uint32, error) {
	if err := t.requireBuilding("AppendBinaryBlob"); err != nil {
		return 0, err
	}
	off := core.AlignSize(t.blobUsed, core.ArgsAlign)
	if off+len(data) > len(t.blob) {
		return 0, core.OutOfSpacef("binary blob exhausted: requested %d bytes at offset %d, span is %d", len(data), off, len(t.blob))
	}
	copy(t.blob[off:], data)
	t.blobUsed = off + len(data)
	return uint32(off), nil
}

// UpdateSlotAtIndex overwrites one entry. A logical entry becomes absolute;
// model I/O entries keep their placement.
func (t *Table) UpdateSlotAtIndex(index uint32, value uint64) error {
	slots := t.normal
	if t.phase == PhaseFinalized {
		slots = t.merged
	}
	if int(index) >= len(slots) {
		return core.ParamInvalidf("slot index %d out of range (table has %d entries)", index, len(slots))
	}
	s := &slots[index]
	s.Value = value
	if s.Placement == PlacementLogical {
		s.Placement = PlacementAbsolute
		s.Offset = 0
	}
	return nil
}

// Finalize merges normal, Level1 and AICPU entries in that order.
func (t *Table) Finalize() error {
	if err := t.requireBuilding("Finalize"); err != nil {
		return err
	}
	t.merged = make([]Slot, 0, t.total())
	t.merged = append(t.merged, t.normal...)
	t.merged = append(t.merged, t.level1...)
	t.merged = append(t.merged, t.aicpu...)
	t.phase = PhaseFinalized
	return nil
}

// Resolve recomputes every logical entry as bases[kind]+offset.
func (t *Table) Resolve(bases core.Bases) {
	slots := t.normal
	if t.phase == PhaseFinalized {
		slots = t.merged
	}
	for i := range slots {
		if slots[i].Placement == PlacementLogical {
			slots[i].Value = bases[slots[i].Kind] + slots[i].Offset
		}
	}
}

// Counts returns the sizes of the normal, Level1 and AICPU groups.
func (t *Table) Counts() (normal, level1, aicpu int) {
	return len(t.normal), len(t.level1), len(t.aicpu)
}

// Len returns the number of entries appended so far, deferred ones included.
func (t *Table) Len() int { return t.total() }

// Slots returns the merged table once finalized, the normal entries before.
// The slice aliases the table.
func (t *Table) Slots() []Slot {
	if t.phase == PhaseFinalized {
		return t.merged
	}
	return t.normal
}

// Level1Index returns the merged index of a Level1 entry.
func (t *Table) Level1Index(ref Ref) (uint32, error) {
	if err := t.requireFinalized("Level1Index"); err != nil {
		return 0, err
	}
	if int(ref) >= len(t.level1) {
		return 0, core.Inconsistentf("level1 ref %d out of range (%d entries)", ref, len(t.level1))
	}
	return uint32(len(t.normal)) + uint32(ref), nil
}

// AicpuIndex returns the merged index of an AICPU entry.
func (t *Table) AicpuIndex(ref Ref) (uint32, error) {
	if err := t.requireFinalized("AicpuIndex"); err != nil {
		return 0, err
	}
	if int(ref) >= len(t.aicpu) {
		return 0, core.Inconsistentf("aicpu ref %d out of range (%d entries)", ref, len(t.aicpu))
	}
	return uint32(len(t.normal)+len(t.level1)) + uint32(ref), nil
}

// Level1Slots returns the Level1 slice of the merged table.
func (t *Table) Level1Slots() []Slot {
	if t.phase != PhaseFinalized {
		return nil
	}
	n := len(t.normal)
	return t.merged[n : n+len(t.level1)]
}

// AicpuStart returns the merged index of the first AICPU entry.
func (t *Table) AicpuStart() int {
	return len(t.normal) + len(t.level1)
}

// Blob returns the used part of the blob span.
func (t *Table) Blob() []byte { return t.blob[:t.blobUsed] }

// BlobSize returns the size of the pre-sized blob span.
func (t *Table) BlobSize() int { return len(t.blob) }

// Patches returns the Level1 patch tracker.
func (t *Table) Patches() *PatchTracker { return t.patches }

// Embedded returns the AICPU embedded-address tracker.
func (t *Table) Embedded() *AicpuTracker { return t.embedded }

// TableRefreshList emits one instruction per normal entry that is not host
// resolved. anchorOffset is the descriptor offset of the table region.
func (t *Table) TableRefreshList(anchorOffset uint64, placement ArgsPlacement) []RefreshInstruction {
	var out []RefreshInstruction
	for i, s := range t.Slots()[:len(t.normal)] {
		if s.Placement == PlacementAbsolute {
			continue
		}
		out = append(out, RefreshInstruction{
			Kind:         RefreshTable,
			TargetOffset: anchorOffset + uint64(i)*core.SlotSize,
			SourceIndex:  uint32(i),
			Placement:    placement,
		})
	}
	return out
}
