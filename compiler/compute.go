package compiler

import (
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// computeArgs is the state of one compute context's args assembly.
type computeArgs struct {
	env          *Env
	c            *model.Compute
	fftsBase     uint64
	tilingOffset uint32
	hasTiling    bool
}

// tokenHandlers appends exactly one table entry per token kind.
var tokenHandlers = map[TokenKind]func(a *computeArgs, tok Token) error{
	TokInput:       func(a *computeArgs, tok Token) error { return a.appendIndexed("input", a.c.Inputs, tok.Index) },
	TokOutput:      func(a *computeArgs, tok Token) error { return a.appendIndexed("output", a.c.Outputs, tok.Index) },
	TokWorkspace:   func(a *computeArgs, tok Token) error { return a.appendIndexed("workspace", a.c.Workspaces, tok.Index) },
	TokTiling:      (*computeArgs).appendTiling,
	TokFfts:        func(a *computeArgs, _ Token) error { _, err := a.env.Table.AppendResolvedAddress(a.fftsBase); return err },
	TokPlaceholder: func(a *computeArgs, _ Token) error { _, err := a.env.Table.AppendResolvedAddress(0); return err },
}

func (a *computeArgs) appendIndexed(what string, list []model.Address, i int) error {
	if i >= len(list) {
		return core.ParamInvalidf("args format references %s %d, context has %d", what, i, len(list))
	}
	_, err := a.env.Table.AppendAddr(tableAddr(a.env.Table, list[i]))
	return err
}

func (a *computeArgs) appendTiling(Token) error {
	if !a.hasTiling {
		return core.ParamInvalidf("args format references tiling data, context has none")
	}
	_, err := a.env.Table.AppendRawValue(uint64(a.tilingOffset), core.MemTiling)
	return err
}

// defaultTokens is the args order used without an explicit format: inputs,
// outputs, workspaces, then the tiling pointer.
func defaultTokens(c *model.Compute) []Token {
	toks := make([]Token, 0, len(c.Inputs)+len(c.Outputs)+len(c.Workspaces)+1)
	for i := range c.Inputs {
		toks = append(toks, Token{Kind: TokInput, Index: i})
	}
	for i := range c.Outputs {
		toks = append(toks, Token{Kind: TokOutput, Index: i})
	}
	for i := range c.Workspaces {
		toks = append(toks, Token{Kind: TokWorkspace, Index: i})
	}
	if len(c.TilingData) > 0 {
		toks = append(toks, Token{Kind: TokTiling})
	}
	return toks
}

func (d *Dispatcher) lowerCompute(c *model.Compute, env *Env, lw *Lowered) error {
	if !c.Kind().IsCompute() {
		return core.ParamInvalidf("compute context carries non-compute kind %s", c.Kind())
	}

	// Kernel handles first: a missing handle must not leave table entries.
	entries, err := d.resolveEntries(c)
	if err != nil {
		return err
	}

	toks := defaultTokens(c)
	if c.ArgsFormat != "" {
		if toks, err = ParseArgsFormat(c.ArgsFormat); err != nil {
			return err
		}
	}

	a := &computeArgs{env: env, c: c, fftsBase: d.opts.FftsBase}
	if len(c.TilingData) > 0 {
		if env.Tiling == nil {
			return core.Inconsistentf("tiling data present but the task has no tiling span")
		}
		if a.tilingOffset, err = env.Tiling.AllocateTiling(c.TilingData); err != nil {
			return err
		}
		a.hasTiling = true
	}

	first := nextIndex(env.Table)
	for _, tok := range toks {
		handle, ok := tokenHandlers[tok.Kind]
		if !ok {
			return core.ParamInvalidf("no handler for args token %s", tok)
		}
		if err := handle(a, tok); err != nil {
			return err
		}
	}
	count := nextIndex(env.Table) - first

	raw := &lw.Raw
	raw.PutU16(offBlockDim, c.BlockDim)
	raw.PutU32(offArgsOffset, first*core.SlotSize)
	raw.PutU16(offArgsCount, uint16(count))
	raw.PutU8(offScheduleMode, c.ScheduleMode)
	if c.Kind().IsMix() {
		raw.PutU8(offRatioAIC, c.RatioAIC)
		raw.PutU8(offRatioAIV, c.RatioAIV)
	}
	if a.hasTiling {
		raw.PutU32(offTilingOffset, a.tilingOffset)
		raw.PutU32(offTilingSize, uint32(len(c.TilingData)))
	}
	for _, e := range entries {
		if e.Engine == EngineAIV {
			raw.PutU64(offEntryAIV, e.Entry)
			raw.PutU8(offPrefetchAIV, e.Prefetch)
		} else {
			raw.PutU64(offEntryAIC, e.Entry)
			raw.PutU8(offPrefetchAIC, e.Prefetch)
		}
	}
	lw.Entries = entries
	return nil
}

// resolveEntries binds the kernel names of c to engine entries.
//
// A mix-enhanced context with a 1:0 or 0:1 ratio and a single kernel name runs
// on one engine only; its resolved entry is written into both engine slots.
func (d *Dispatcher) resolveEntries(c *model.Compute) ([]EntryRecord, error) {
	names := c.KernelNames
	switch {
	case !c.Kind().IsMix():
		if len(names) != 1 {
			return nil, core.ParamInvalidf("%s context needs one kernel name, has %d", c.Kind(), len(names))
		}
		engine := EngineAIC
		if c.Kind() == model.KindAIV {
			engine = EngineAIV
		}
		e, err := d.resolve(engine, names[0])
		if err != nil {
			return nil, err
		}
		return []EntryRecord{e}, nil

	case len(names) == 1 && c.MixEnhanced && singleSided(c.RatioAIC, c.RatioAIV):
		aic, err := d.resolve(EngineAIC, names[0])
		if err != nil {
			return nil, err
		}
		aiv := aic
		aiv.Engine = EngineAIV
		return []EntryRecord{aic, aiv}, nil

	case len(names) == 2:
		aic, err := d.resolve(EngineAIC, names[0])
		if err != nil {
			return nil, err
		}
		aiv, err := d.resolve(EngineAIV, names[1])
		if err != nil {
			return nil, err
		}
		return []EntryRecord{aic, aiv}, nil
	}
	return nil, core.ParamInvalidf("%s context needs an AIC and an AIV kernel name, has %d (mix enhanced %t, ratio %d:%d)",
		c.Kind(), len(names), c.MixEnhanced, c.RatioAIC, c.RatioAIV)
}

func singleSided(aic, aiv uint8) bool {
	return (aic == 1 && aiv == 0) || (aic == 0 && aiv == 1)
}

func (d *Dispatcher) resolve(engine Engine, name string) (EntryRecord, error) {
	if d.kernels == nil {
		return EntryRecord{}, core.ParamInvalidf("no kernel registry to resolve %q", name)
	}
	entry, prefetch, ok := d.kernels.ResolveKernelHandle(name)
	if !ok {
		return EntryRecord{}, core.ParamInvalidf("kernel handle %q not found", name)
	}
	return EntryRecord{Engine: engine, Name: name, Entry: entry, Prefetch: prefetch}, nil
}
