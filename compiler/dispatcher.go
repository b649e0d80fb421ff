// Package compiler lowers abstract context descriptions into FFTS+ context structs.
//
// The Dispatcher is the central backend of a task build. Given one context of
// the closed variant set in package model and the open argument table of the
// task, it emits the fixed 128-byte context struct and routes every address
// the context needs to one of three places:
//
//   - the normal argument table, for addresses the kernel reads through its
//     args pointer (compute inputs, outputs, workspaces, tiling data)
//   - the Level1 group, for addresses stored inside the struct itself (SDMA,
//     CMO data, WriteValue, DSA); those are copied into the struct later
//   - the AICPU group, for addresses embedded in an AICPU blob payload
//
// Lowering pipeline of one context:
//  1. Write the common header (kind, flags, thread dims, successor positions)
//  2. Run the variant handler, which writes the body and appends addresses
//  3. Return the struct with its kernel entry records and persist tags
//
// Any failure is fatal to the whole task build; no partial result is returned.
package compiler

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// KernelResolver looks up a loaded kernel by name.
type KernelResolver interface {
	ResolveKernelHandle(name string) (entry uint64, prefetch uint8, ok bool)
}

// TilingWriter copies per-operator tiling data into the task's tiling span and
// returns its offset inside that span.
type TilingWriter interface {
	AllocateTiling(data []byte) (uint32, error)
}

// Env is the per-task state a context is lowered against.
type Env struct {
	Table     *args.Table
	Positions map[uint32]uint16 // context id -> position in the context array
	Tiling    TilingWriter
}

// Engine identifies one side of a compute context.
type Engine uint8

const (
	EngineAIC Engine = iota
	EngineAIV
)

func (e Engine) String() string {
	if e == EngineAIV {
		return "aiv"
	}
	return "aic"
}

// EntryRecord is a resolved kernel entry written into a compute struct.
type EntryRecord struct {
	Engine   Engine
	Name     string
	Entry    uint64
	Prefetch uint8
}

// PersistTag marks an input tensor as resident in a persistent cache region.
type PersistTag struct {
	Tensor string
	ID     uint16
}

// Lowered is the result of lowering one context.
type Lowered struct {
	ID          uint32
	Kind        model.Kind
	Position    uint16
	Raw         core.Struct
	Entries     []EntryRecord
	PersistTags []PersistTag
}

// Dispatcher lowers contexts. It holds no per-task state and may be shared by
// tasks built concurrently, provided the KernelResolver is safe for that.
type Dispatcher struct {
	kernels KernelResolver
	opts    Options
	log     *logrus.Entry
}

// NewDispatcher returns a dispatcher resolving kernels through kernels. A nil
// log uses the standard logger.
func NewDispatcher(kernels KernelResolver, opts Options, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{kernels: kernels, opts: opts, log: log}
}

// Lower emits the struct of c and appends its addresses to env.Table.
func (d *Dispatcher) Lower(c model.Context, env *Env) (*Lowered, error) {
	if model.IsNil(c) {
		return nil, core.ParamInvalidf("nil context")
	}
	if env == nil || env.Table == nil {
		return nil, core.Inconsistentf("lowering without an argument table")
	}
	h := c.Head()
	pos, ok := env.Positions[h.ID]
	if !ok {
		return nil, core.Inconsistentf("context %d has no array position", h.ID)
	}

	lw := &Lowered{ID: h.ID, Kind: c.Kind(), Position: pos}
	if err := d.lowerVariant(c, env, lw); err != nil {
		return nil, errors.WithMessagef(err, "lowering context %d (%s)", h.ID, c.Kind())
	}

	d.log.WithFields(logrus.Fields{
		"ctx":     h.ID,
		"kind":    c.Kind(),
		"pos":     pos,
		"entries": len(lw.Entries),
	}).Debug("context lowered")
	return lw, nil
}

func (d *Dispatcher) lowerVariant(c model.Context, env *Env, lw *Lowered) error {
	h := c.Head()
	if err := d.writeHeader(&lw.Raw, c.Kind(), h, env); err != nil {
		return err
	}

	switch c := c.(type) {
	case *model.Compute:
		return d.lowerCompute(c, env, lw)
	case *model.Aicpu:
		return d.lowerAicpu(c, env, lw)
	case *model.SDMA:
		return d.lowerSDMA(c, env, lw)
	case *model.Data:
		return d.lowerData(c, env, lw)
	case *model.CondSwitch:
		return d.lowerCondSwitch(c, env, lw)
	case *model.CaseSwitch:
		return d.lowerCaseSwitch(c, lw)
	case *model.CaseDefault:
		return d.lowerCaseDefault(c, lw)
	case *model.Label:
		return nil
	case *model.AtStart:
		return d.lowerAtStart(c, lw)
	case *model.AtEnd:
		return d.lowerAtEnd(c, env, lw)
	case *model.Notify:
		return d.lowerNotify(c, lw)
	case *model.WriteValue:
		return d.lowerWriteValue(c, env, lw)
	case *model.DSA:
		return d.lowerDSA(c, env, lw)
	case *model.CachePersist:
		return d.lowerCachePersist(c, lw)
	}
	return core.ParamInvalidf("unsupported context kind %s", c.Kind())
}

// writeHeader fills the common header. The successor list is h.Successors.
func (d *Dispatcher) writeHeader(raw *core.Struct, kind model.Kind, h *model.Header, env *Env) error {
	raw.PutU16(offKind, uint16(kind))

	var flags uint8
	if h.Aten {
		flags |= flagAten
	}
	if h.Dump {
		flags |= flagDump
	}
	raw.PutU8(offFlags, flags)
	raw.PutU8(offPredCount, h.PredCount)
	raw.PutU8(offPredInit, h.PredCount)
	raw.PutU16(offThreadDim, h.ThreadDim)
	raw.PutU16(offThreadID, h.ThreadID)

	return d.writeSuccessors(raw, offSuccCount, offSuccessors, h.Successors, env)
}

// writeSuccessors maps successor ids to array positions and writes the count
// byte at countOff and the position list at listOff.
func (d *Dispatcher) writeSuccessors(raw *core.Struct, countOff, listOff int, ids []uint32, env *Env) error {
	limit := d.opts.maxSuccessors()
	if len(ids) > limit {
		return core.ParamInvalidf("%d successors exceed the limit of %d", len(ids), limit)
	}
	positions, err := positionsOf(ids, env)
	if err != nil {
		return err
	}
	raw.PutU8(countOff, uint8(len(positions)))
	for i, p := range positions {
		raw.PutU16(listOff+2*i, p)
	}
	return nil
}

func positionsOf(ids []uint32, env *Env) ([]uint16, error) {
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		p, ok := env.Positions[id]
		if !ok {
			return nil, core.ParamInvalidf("reference to unknown context %d", id)
		}
		out = append(out, p)
	}
	return out, nil
}

func setFlag(raw *core.Struct, bit uint8) {
	raw[offFlags] |= bit
}

// tableAddr converts an IR position to a table address. Logical offsets are
// offered to the memory owner first.
func tableAddr(t *args.Table, a model.Address) args.Addr {
	switch a.Mode {
	case model.AddrLogical:
		return t.Classify(a.Value)
	case model.AddrTagged:
		return args.LogicalAddr(a.Value, a.Kind)
	case model.AddrModelIO:
		return args.ModelIOAddr(a.Value)
	}
	return args.AbsoluteAddr(a.Value)
}

// appendLevel1 defers a into the struct field at off of context id.
func appendLevel1(t *args.Table, id uint32, off int, a model.Address) error {
	_, err := t.AppendLevel1(args.Level1Addr{ContextID: id, FieldOffset: uint32(off), Addr: tableAddr(t, a)})
	return err
}

// nextIndex is the table index the next normal append will receive.
func nextIndex(t *args.Table) uint32 {
	n, _, _ := t.Counts()
	return uint32(n)
}
