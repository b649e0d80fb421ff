package args

import "github.com/hicann/fftsplus/core"

// level1Patch records one address field of a context struct awaiting its value.
type level1Patch struct {
	contextID   uint32
	fieldOffset uint32
	ref         Ref
}

// PatchTracker remembers which merged-table entries must be copied into
// already-built context structs. It never copies itself.
type PatchTracker struct {
	patches []level1Patch
	lowered map[uint32]uint64 // context id -> struct offset from the context array start
}

func newPatchTracker() *PatchTracker {
	return &PatchTracker{lowered: make(map[uint32]uint64)}
}

func (p *PatchTracker) record(contextID, fieldOffset uint32, ref Ref) {
	p.patches = append(p.patches, level1Patch{contextID: contextID, fieldOffset: fieldOffset, ref: ref})
}

// MarkLowered registers the struct offset of a lowered context.
func (p *PatchTracker) MarkLowered(contextID uint32, structOffset uint64) {
	p.lowered[contextID] = structOffset
}

// Len returns the number of recorded patches.
func (p *PatchTracker) Len() int { return len(p.patches) }

// GenerateRefreshList emits one Level1 instruction per recorded patch. level1 is
// the Level1 slice of the merged table and firstIndex its merged start index;
// anchorOffset is the descriptor offset of the context array.
func (p *PatchTracker) GenerateRefreshList(level1 []Slot, firstIndex uint32, anchorOffset uint64, placement ArgsPlacement) ([]RefreshInstruction, error) {
	if len(level1) != len(p.patches) {
		return nil, core.Inconsistentf("level1 slice has %d entries, tracker recorded %d patches", len(level1), len(p.patches))
	}

	out := make([]RefreshInstruction, 0, len(p.patches))
	for _, patch := range p.patches {
		structOffset, ok := p.lowered[patch.contextID]
		if !ok {
			return nil, core.Inconsistentf("level1 patch references context %d which was never lowered", patch.contextID)
		}
		out = append(out, RefreshInstruction{
			Kind:         RefreshLevel1,
			TargetOffset: anchorOffset + structOffset + uint64(patch.fieldOffset),
			SourceIndex:  firstIndex + uint32(patch.ref),
			Placement:    placement,
		})
	}
	return out, nil
}
