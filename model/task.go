package model

import "github.com/hicann/fftsplus/core"

// Budgets are the declared sizes a task build is pre-sized with.
// A zero field is derived from the contexts' footprints.
type Budgets struct {
	Slots  int `json:"slots,omitempty"`
	Blob   int `json:"blob,omitempty"`
	Tiling int `json:"tiling,omitempty"`
}

// Task is one fused subgraph instance: contexts in declaration order.
type Task struct {
	Name     string
	Contexts []Context
	Budgets  Budgets
}

// Footprint sums the footprints of every context.
func (t *Task) Footprint() Footprint {
	var f Footprint
	for _, c := range t.Contexts {
		f = f.Add(c.Footprint())
	}
	return f
}

// EffectiveBudgets returns the declared budgets with zero fields filled in
// from the contexts' footprints.
func (t *Task) EffectiveBudgets() Budgets {
	b := t.Budgets
	f := t.Footprint()
	if b.Slots == 0 {
		b.Slots = f.Slots
	}
	if b.Blob == 0 {
		b.Blob = f.Blob
	}
	if b.Tiling == 0 {
		b.Tiling = f.Tiling
	}
	return b
}

// Validate checks structural consistency that does not need lowering:
// unique ids and known successor references.
func (t *Task) Validate() error {
	if len(t.Contexts) == 0 {
		return core.ParamInvalidf("task %q has no contexts", t.Name)
	}
	if len(t.Contexts) > 0xFFFF {
		return core.ParamInvalidf("task %q has %d contexts, more than a uint16 position can address", t.Name, len(t.Contexts))
	}

	ids := make(map[uint32]bool, len(t.Contexts))
	for i, c := range t.Contexts {
		if IsNil(c) {
			return core.ParamInvalidf("context %d is nil", i)
		}
		id := c.Head().ID
		if ids[id] {
			return core.ParamInvalidf("duplicate context id %d at index %d", id, i)
		}
		ids[id] = true
	}
	return nil
}
