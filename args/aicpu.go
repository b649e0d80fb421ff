package args

import "github.com/hicann/fftsplus/core"

type blobPatch struct {
	blobOffset uint32
	ref        Ref
}

// AicpuTracker records the AICPU blob words that mirror AICPU-group table
// entries. The entries form a contiguous suffix of the merged table, so a
// refresh is driven by one start index.
type AicpuTracker struct {
	patches []blobPatch
}

func newAicpuTracker() *AicpuTracker {
	return &AicpuTracker{}
}

func (a *AicpuTracker) record(blobOffset uint32, ref Ref) {
	a.patches = append(a.patches, blobPatch{blobOffset: blobOffset, ref: ref})
}

// Len returns the number of recorded patch points.
func (a *AicpuTracker) Len() int { return len(a.patches) }

// Refresh copies table[start+ref] into blob at every recorded offset. All
// bounds are checked before the first write, so a failure leaves blob intact.
func (a *AicpuTracker) Refresh(table []Slot, start int, blob []byte) error {
	if start < 0 || start+len(a.patches) > len(table) {
		return core.Inconsistentf("aicpu refresh range [%d, %d) outside table of %d entries", start, start+len(a.patches), len(table))
	}
	for _, p := range a.patches {
		if uint64(p.blobOffset)+core.SlotSize > uint64(len(blob)) {
			return core.OutOfSpacef("aicpu patch at blob offset %d exceeds blob size %d", p.blobOffset, len(blob))
		}
	}
	for _, p := range a.patches {
		core.PutWord(blob, int(p.blobOffset), table[start+int(p.ref)].Value)
	}
	return nil
}

// GenerateRefreshList emits one AICPU instruction per patch point. blobAnchor is
// the descriptor offset of the blob region.
func (a *AicpuTracker) GenerateRefreshList(firstIndex uint32, blobAnchor uint64, placement ArgsPlacement) []RefreshInstruction {
	out := make([]RefreshInstruction, 0, len(a.patches))
	for _, p := range a.patches {
		out = append(out, RefreshInstruction{
			Kind:         RefreshAicpu,
			TargetOffset: blobAnchor + uint64(p.blobOffset),
			SourceIndex:  firstIndex + uint32(p.ref),
			Placement:    placement,
		})
	}
	return out
}
