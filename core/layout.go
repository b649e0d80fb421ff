// Package core provides the shared primitives of the FFTS+ task-lowering engine.
//
// Key components:
//   - Descriptor layout planning: context array, argument table and its Level1 /
//     AICPU sub-regions, tiling data and the binary blob tail
//   - Alignment helpers for the platform descriptor-buffer alignment
//   - The error taxonomy shared by every lowering stage
//   - Little-endian field encoding for the fixed-size context structs
package core

// ContextSize is the fixed size of one hardware context struct.
const ContextSize = 128

// Descriptor region names.
const (
	RegionContexts = "Contexts"
	RegionTable    = "ArgsTable"
	RegionLevel1   = "Level1"
	RegionAicpu    = "Aicpu"
	RegionTiling   = "Tiling"
	RegionBlob     = "Blob"
)

// Region is one contiguous span of the descriptor.
type Region struct {
	Name   string
	Offset int
	Size   int
}

// End returns the first offset past the region.
func (r Region) End() int {
	return r.Offset + r.Size
}

// LayoutParams are the sizes a descriptor layout is planned from.
type LayoutParams struct {
	ContextCount int
	NormalSlots  int
	Level1Slots  int
	AicpuSlots   int
	TilingSize   int
	BlobSize     int
	Align        int // platform descriptor-buffer alignment
}

// Layout places every region of a descriptor:
// [contexts][pad][table][level1][aicpu][tiling][blob].
type Layout struct {
	Contexts Region
	Table    Region
	Level1   Region
	Aicpu    Region
	Tiling   Region
	Blob     Region
	Total    int
	Align    int
}

// PlanLayout computes region offsets. The table region is ArgsAlign aligned and
// the total size is rounded up to p.Align.
func PlanLayout(p LayoutParams) (Layout, error) {
	if p.ContextCount < 0 || p.NormalSlots < 0 || p.Level1Slots < 0 || p.AicpuSlots < 0 || p.TilingSize < 0 || p.BlobSize < 0 {
		return Layout{}, ParamInvalidf("negative layout size in %+v", p)
	}
	align := p.Align
	if align == 0 {
		align = CacheLineSize
	}
	if !IsPowerOfTwo(align) || align < ArgsAlign {
		return Layout{}, ParamInvalidf("descriptor alignment %d must be a power of two >= %d", align, ArgsAlign)
	}

	l := Layout{Align: align}
	offset := 0

	l.Contexts = Region{Name: RegionContexts, Offset: offset, Size: p.ContextCount * ContextSize}
	offset = AlignSize(l.Contexts.End(), ArgsAlign)

	l.Table = Region{Name: RegionTable, Offset: offset, Size: p.NormalSlots * SlotSize}
	l.Level1 = Region{Name: RegionLevel1, Offset: l.Table.End(), Size: p.Level1Slots * SlotSize}
	l.Aicpu = Region{Name: RegionAicpu, Offset: l.Level1.End(), Size: p.AicpuSlots * SlotSize}
	offset = l.Aicpu.End()

	l.Tiling = Region{Name: RegionTiling, Offset: offset, Size: AlignSize(p.TilingSize, ArgsAlign)}
	offset = l.Tiling.End()

	l.Blob = Region{Name: RegionBlob, Offset: offset, Size: AlignSize(p.BlobSize, ArgsAlign)}
	offset = l.Blob.End()

	l.Total = AlignSize(offset, align)
	return l, nil
}

// SlotOffset returns the descriptor offset of merged table entry index.
func (l Layout) SlotOffset(index int) int {
	return l.Table.Offset + index*SlotSize
}

// ContextOffset returns the descriptor offset of the context at array position pos.
func (l Layout) ContextOffset(pos int) int {
	return l.Contexts.Offset + pos*ContextSize
}

// Regions lists the regions in descriptor order.
func (l Layout) Regions() []Region {
	return []Region{l.Contexts, l.Table, l.Level1, l.Aicpu, l.Tiling, l.Blob}
}
