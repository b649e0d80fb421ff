package runtime

import (
	"github.com/sirupsen/logrus"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/core"
)

// effectiveBases derives the tiling base from the descriptor's own base.
func (t *Task) effectiveBases(bases core.Bases) core.Bases {
	b := bases.Clone()
	b[core.MemTiling] = b[core.MemArgs] + uint64(t.layout.Tiling.Offset)
	return b
}

// writeArgs resolves logical slots against bases and writes the merged table,
// the Level1 struct fields and the AICPU blob words into arena.
func (t *Task) writeArgs(arena *Arena, bases core.Bases) error {
	if p := t.table.Phase(); p != args.PhaseFinalized {
		return core.Inconsistentf("writing args of a table in phase %s", p)
	}
	t.table.Resolve(t.effectiveBases(bases))

	buf := arena.Buffer()
	slots := t.table.Slots()
	for i, s := range slots {
		core.PutWord(buf, t.layout.SlotOffset(i), s.Value)
	}
	for _, r := range t.level1 {
		if int(r.SourceIndex) >= len(slots) {
			return core.Inconsistentf("level1 refresh source %d outside table of %d entries", r.SourceIndex, len(slots))
		}
		core.PutWord(buf, int(r.TargetOffset), slots[r.SourceIndex].Value)
	}
	blob, err := arena.Bytes(core.RegionBlob)
	if err != nil {
		return err
	}
	return t.table.Embedded().Refresh(slots, t.table.AicpuStart(), blob)
}

// checkBases rejects bases lacking a memory kind some logical slot needs.
func (t *Task) checkBases(bases core.Bases) error {
	for i, s := range t.table.Slots() {
		if s.Placement != args.PlacementLogical {
			continue
		}
		need := s.Kind
		if need == core.MemTiling {
			need = core.MemArgs
		}
		if _, ok := bases[need]; !ok {
			return core.ParamInvalidf("slot %d needs a %s base, none given", i, need)
		}
	}
	return nil
}

// UpdateHostArgs rebinds every logical slot to bases without relowering. The
// new descriptor is written to a scratch copy and committed only on success,
// so a failure leaves the task exactly as it was.
func (t *Task) UpdateHostArgs(bases core.Bases) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("UpdateHostArgs", StateFinalized, StateDistributed); err != nil {
		return err
	}
	if err := t.checkBases(bases); err != nil {
		t.log.WithError(err).Warn("refresh rejected")
		return err
	}

	prev := t.state
	t.state = StateRefreshing
	defer func() { t.state = prev }()

	snapshot := append([]args.Slot(nil), t.table.Slots()...)
	scratch := t.arena.Clone()
	if err := t.writeArgs(scratch, bases); err != nil {
		copy(t.table.Slots(), snapshot)
		t.log.WithError(err).Warn("refresh failed, descriptor unchanged")
		return err
	}
	copy(t.arena.Buffer(), scratch.Buffer())
	t.bases = bases.Clone()

	t.log.WithFields(logrus.Fields{"bases": len(bases), "state": prev}).Debug("host args refreshed")
	return nil
}

// UpdateSlotAtIndex overwrites one merged-table entry after finalize and
// re-copies it into every struct field and blob word mirroring it.
func (t *Task) UpdateSlotAtIndex(index uint32, value uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("UpdateSlotAtIndex", StateFinalized, StateDistributed); err != nil {
		return err
	}
	if err := t.table.UpdateSlotAtIndex(index, value); err != nil {
		return err
	}

	buf := t.arena.Buffer()
	core.PutWord(buf, t.layout.SlotOffset(int(index)), value)
	mirrors := 0
	for _, list := range [][]args.RefreshInstruction{t.level1, t.aicpu} {
		for _, r := range list {
			if r.SourceIndex == index {
				core.PutWord(buf, int(r.TargetOffset), value)
				mirrors++
			}
		}
	}
	t.log.WithFields(logrus.Fields{"index": index, "mirrors": mirrors}).Debug("slot updated")
	return nil
}

// GetTaskArgsRefreshInfos returns the refresh instructions of the descriptor:
// table entries first, then Level1 fields, then AICPU blob words. Offsets are
// relative to the descriptor start. The list is fixed at finalize; later slot
// updates do not change it.
func (t *Task) GetTaskArgsRefreshInfos() ([]args.RefreshInstruction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("GetTaskArgsRefreshInfos", StateFinalized, StateDistributed); err != nil {
		return nil, err
	}
	return t.refreshList(), nil
}

func (t *Task) refreshList() []args.RefreshInstruction {
	list := make([]args.RefreshInstruction, 0, len(t.tableRefresh)+len(t.level1)+len(t.aicpu))
	list = append(list, t.tableRefresh...)
	list = append(list, t.level1...)
	return append(list, t.aicpu...)
}
