package compiler

import (
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// lowerCondSwitch puts the true branch in the common successor list and the
// false branch in the body.
func (d *Dispatcher) lowerCondSwitch(c *model.CondSwitch, env *Env, lw *Lowered) error {
	if len(c.Successors) > 0 {
		return core.ParamInvalidf("cond switch %d uses branch lists, not plain successors", c.ID)
	}
	if c.Condition > model.CondGE {
		return core.ParamInvalidf("unknown condition op %d", c.Condition)
	}
	raw := &lw.Raw
	if err := d.writeSuccessors(raw, offSuccCount, offSuccessors, c.TrueSuccessors, env); err != nil {
		return err
	}
	if err := d.writeSuccessors(raw, offFalseCount, offFalseSuccessors, c.FalseSuccessors, env); err != nil {
		return err
	}
	raw.PutU8(offCondOp, uint8(c.Condition))
	raw.PutU32(offCondValue1, c.Value1)
	raw.PutU32(offCondValue2, c.Value2)
	return nil
}

func (d *Dispatcher) lowerCaseSwitch(c *model.CaseSwitch, lw *Lowered) error {
	lw.Raw.PutU16(offStartLabel, c.StartLabel)
	lw.Raw.PutU16(offLabelCount, c.LabelCount)
	lw.Raw.PutU32(offCaseValue, c.Value)
	return nil
}

func (d *Dispatcher) lowerCaseDefault(c *model.CaseDefault, lw *Lowered) error {
	lw.Raw.PutU16(offStartLabel, c.StartLabel)
	lw.Raw.PutU16(offLabelCount, c.LabelCount)
	return nil
}

func (d *Dispatcher) lowerAtStart(c *model.AtStart, lw *Lowered) error {
	lw.Raw.PutU16(offThreadIDInit, c.ThreadIDInit)
	lw.Raw.PutU16(offThreadWindow, c.ThreadWindow)
	return nil
}

func (d *Dispatcher) lowerAtEnd(c *model.AtEnd, env *Env, lw *Lowered) error {
	limit := d.opts.maxAtStartSlots()
	if len(c.AtStartSlots) > limit {
		return core.ParamInvalidf("at end %d references %d at-start contexts, limit is %d", c.ID, len(c.AtStartSlots), limit)
	}
	starts, err := positionsOf(c.AtStartSlots, env)
	if err != nil {
		return err
	}
	out, err := positionsOf([]uint32{c.OutLabel}, env)
	if err != nil {
		return err
	}
	raw := &lw.Raw
	raw.PutU8(offAtStartCount, uint8(len(starts)))
	raw.PutU16(offOutLabel, out[0])
	for i, p := range starts {
		raw.PutU16(offAtStartSlots+2*i, p)
	}
	return nil
}

func (d *Dispatcher) lowerNotify(c *model.Notify, lw *Lowered) error {
	if c.Op > model.NotifyWait {
		return core.ParamInvalidf("unknown notify op %d", c.Op)
	}
	lw.Raw.PutU16(offNotifyID, c.NotifyID)
	lw.Raw.PutU8(offNotifyOp, uint8(c.Op))
	lw.Raw.PutU32(offNotifyTimeout, c.Timeout)
	return nil
}
