package compiler

import (
	"math"

	"github.com/x448/float16"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// dsaGroup stages the struct addresses of one DSA context. Nothing reaches the
// table until the collected output count equals the declared output size;
// then the whole group is committed at once.
type dsaGroup struct {
	table     *args.Table
	id        uint32
	declared  int
	outputs   int
	pending   []args.Level1Addr
	committed bool
}

func newDsaGroup(t *args.Table, id uint32, declared int) *dsaGroup {
	if declared == 0 {
		declared = 1
	}
	return &dsaGroup{table: t, id: id, declared: declared}
}

func (g *dsaGroup) stage(off int, a model.Address) {
	g.pending = append(g.pending, args.Level1Addr{ContextID: g.id, FieldOffset: uint32(off), Addr: tableAddr(g.table, a)})
}

// addOutput stages one output and commits the group once it is complete.
func (g *dsaGroup) addOutput(off int, a model.Address) error {
	if g.committed || g.outputs >= g.declared {
		return core.ParamInvalidf("dsa context %d has more outputs than its declared size %d", g.id, g.declared)
	}
	g.stage(off, a)
	g.outputs++
	if g.outputs < g.declared {
		return nil
	}
	if _, err := g.table.AppendLevel1Group(g.pending); err != nil {
		return err
	}
	g.committed = true
	g.pending = nil
	return nil
}

func (d *Dispatcher) lowerDSA(c *model.DSA, env *Env, lw *Lowered) error {
	switch {
	case len(c.Inputs) > MaxDsaInputs:
		return core.ParamInvalidf("dsa context %d has %d inputs, limit is %d", c.ID, len(c.Inputs), MaxDsaInputs)
	case len(c.Workspaces) > MaxDsaWorkspaces:
		return core.ParamInvalidf("dsa context %d has %d workspaces, limit is %d", c.ID, len(c.Workspaces), MaxDsaWorkspaces)
	case c.OutputSize > 1:
		return core.ParamInvalidf("dsa context %d declares output size %d, the struct has one output slot", c.ID, c.OutputSize)
	case c.DType > model.DsaFloat16:
		return core.ParamInvalidf("dsa context %d has unknown dtype %d", c.ID, c.DType)
	}

	raw := &lw.Raw
	g := newDsaGroup(env.Table, c.ID, c.OutputSize)

	var mask uint8
	for i, in := range c.Inputs {
		off := offDsaInputs + 8*i
		if !in.Immediate {
			g.stage(off, in.Addr)
			continue
		}
		if !in.Stateless {
			return core.ParamInvalidf("dsa context %d input %d: stateful inputs cannot be immediates", c.ID, i)
		}
		mask |= 1 << uint(i)
		raw.PutU64(off, dsaImmediate(c.DType, in))
	}
	for i, ws := range c.Workspaces {
		g.stage(offDsaWorkspace+8*i, ws)
	}
	for _, out := range c.Outputs {
		if err := g.addOutput(offDsaOutput, out); err != nil {
			return err
		}
	}
	if !g.committed {
		return core.ParamInvalidf("dsa context %d collected %d outputs, declared %d", c.ID, g.outputs, g.declared)
	}

	raw.PutU8(offDistribution, c.Distribution)
	raw.PutU8(offImmediateMask, mask)
	raw.PutU8(offDsaDType, uint8(c.DType))
	raw.PutU8(offDsaInputCount, uint8(len(c.Inputs)))
	return nil
}

// dsaImmediate encodes a stateless immediate in the context's element type.
func dsaImmediate(dtype model.DsaDType, in model.DsaInput) uint64 {
	switch dtype {
	case model.DsaFloat16:
		return uint64(float16.Fromfloat32(in.Float).Bits())
	case model.DsaFloat32:
		return uint64(math.Float32bits(in.Float))
	}
	return in.Raw
}
