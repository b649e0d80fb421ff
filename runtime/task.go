// Package runtime drives the build of FFTS+ tasks and owns their descriptors.
//
// A Task takes one fused subgraph's context descriptions through a fixed
// lifecycle:
//
//	Uninitialized -> ArgsBaseInitialized -> ContextsLowered -> Finalized -> Distributed -> Released
//
// with a transient Refreshing state entered from Finalized or Distributed
// while addresses are rebound, and a terminal Failed state for any build error.
// Calls out of this order are rejected.
//
// Key components:
//   - Task: the per-task state machine, argument table and descriptor
//   - Arena: the descriptor buffer partitioned into its layout regions
//   - HostAllocator: cache-aligned host buffers for descriptors
//   - BuildAll: concurrent build of independent tasks
//
// Every Task method holds the task's lock, so a refresh never interleaves with
// a distribution of the same task. Distinct tasks share nothing but the kernel
// registry and memory resolver they were created with.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/compiler"
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// State is a task lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateArgsBaseInitialized
	StateContextsLowered
	StateFinalized
	StateDistributed
	StateReleased
	StateRefreshing
	StateFailed
)

var stateNames = [...]string{
	StateUninitialized:       "uninitialized",
	StateArgsBaseInitialized: "args_base_initialized",
	StateContextsLowered:     "contexts_lowered",
	StateFinalized:           "finalized",
	StateDistributed:         "distributed",
	StateReleased:            "released",
	StateRefreshing:          "refreshing",
	StateFailed:              "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TaskOptions configures a task build.
type TaskOptions struct {
	Name            string // overrides the description's name in logs
	DescriptorAlign int    // platform descriptor-buffer alignment
	Placement       args.ArgsPlacement
	Bases           core.Bases // base addresses logical slots resolve against at finalize
	Compiler        compiler.Options
	Logger          *logrus.Logger
	Allocator       Allocator
}

// DefaultTaskOptions provides cache-line aligned, host-SVM placed descriptors.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		DescriptorAlign: core.CacheLineSize,
		Placement:       args.ArgsHostSvm,
		Compiler:        compiler.DefaultOptions(),
		Logger:          logrus.StandardLogger(),
		Allocator:       HostAllocator{},
	}
}

// Submitter hands a finished descriptor to the hardware scheduler.
type Submitter interface {
	Submit(ctx context.Context, d *Descriptor) error
}

// Descriptor is the built output of a task.
type Descriptor struct {
	Name    string
	Layout  core.Layout
	Bytes   []byte // aliases the task's arena
	Refresh []args.RefreshInstruction
}

// Task builds and owns the descriptor of one fused subgraph.
type Task struct {
	mu sync.Mutex

	name      string
	desc      *model.Task
	resolver  args.LogicalResolver
	dispatch  *compiler.Dispatcher
	opts      TaskOptions
	log       *logrus.Entry
	state     State
	lastError error

	positions map[uint32]uint16
	table     *args.Table
	tiling    *span
	lowered   []*compiler.Lowered
	tags      []compiler.PersistTag

	layout core.Layout
	arena  *Arena
	bases  core.Bases
	// refresh instructions, fixed at finalize
	tableRefresh []args.RefreshInstruction
	level1       []args.RefreshInstruction
	aicpu        []args.RefreshInstruction
}

// NewTask prepares desc for building. kernels resolves kernel names; resolver,
// which may be nil, folds logical offsets it already knows.
func NewTask(desc *model.Task, kernels compiler.KernelResolver, resolver args.LogicalResolver, opts TaskOptions) *Task {
	def := DefaultTaskOptions()
	if opts.DescriptorAlign == 0 {
		opts.DescriptorAlign = def.DescriptorAlign
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.Allocator == nil {
		opts.Allocator = def.Allocator
	}
	name := opts.Name
	if name == "" && desc != nil {
		name = desc.Name
	}
	log := opts.Logger.WithField("task", name)
	return &Task{
		name:     name,
		desc:     desc,
		resolver: resolver,
		dispatch: compiler.NewDispatcher(kernels, opts.Compiler, log),
		opts:     opts,
		log:      log,
		bases:    opts.Bases.Clone(),
	}
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that moved the task to StateFailed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

func (t *Task) require(op string, states ...State) error {
	for _, s := range states {
		if t.state == s {
			return nil
		}
	}
	err := core.Inconsistentf("%s called in state %s", op, t.state)
	t.log.WithField("op", op).Warn(err)
	return err
}

// fail aborts the build. The task cannot be resumed.
func (t *Task) fail(stage string, err error) error {
	t.state = StateFailed
	t.lastError = err
	t.log.WithFields(logrus.Fields{"stage": stage, "code": core.CodeOf(err)}).Warnf("build aborted: %v", err)
	return err
}

// Init sizes the argument table, tiling span and blob from the declared
// budgets, or from the contexts' footprints where none are declared.
func (t *Task) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("Init", StateUninitialized); err != nil {
		return err
	}
	if t.desc == nil {
		return t.fail("init", core.ParamInvalidf("nil task description"))
	}
	if err := t.desc.Validate(); err != nil {
		return t.fail("init", err)
	}

	b := t.desc.EffectiveBudgets()
	t.table = args.NewTable(b.Slots, b.Blob, t.resolver)
	t.tiling = newSpan(b.Tiling)
	t.positions = make(map[uint32]uint16, len(t.desc.Contexts))
	for i, c := range t.desc.Contexts {
		t.positions[c.Head().ID] = uint16(i)
	}
	t.state = StateArgsBaseInitialized
	t.log.WithFields(logrus.Fields{
		"contexts": len(t.desc.Contexts),
		"slots":    b.Slots,
		"blob":     b.Blob,
		"tiling":   b.Tiling,
	}).Debug("task initialized")
	return nil
}

// Build lowers every context in declaration order. The first failure aborts
// the build.
func (t *Task) Build() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("Build", StateArgsBaseInitialized); err != nil {
		return err
	}

	env := &compiler.Env{Table: t.table, Positions: t.positions, Tiling: t.tiling}
	t.lowered = make([]*compiler.Lowered, 0, len(t.desc.Contexts))
	for _, c := range t.desc.Contexts {
		lw, err := t.dispatch.Lower(c, env)
		if err != nil {
			return t.fail("build", err)
		}
		t.table.Patches().MarkLowered(lw.ID, uint64(lw.Position)*core.ContextSize)
		t.lowered = append(t.lowered, lw)
		t.tags = append(t.tags, lw.PersistTags...)
	}

	normal, level1, aicpu := t.table.Counts()
	t.state = StateContextsLowered
	t.log.WithFields(logrus.Fields{"normal": normal, "level1": level1, "aicpu": aicpu}).Debug("contexts lowered")
	return nil
}

// Finalize merges the argument table, lays out the descriptor and writes it:
// context structs, table, tiling data and blob. Logical slots are resolved
// against the configured bases; Level1 fields and AICPU blob words receive
// their table values.
func (t *Task) Finalize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("Finalize", StateContextsLowered); err != nil {
		return err
	}
	if err := t.table.Finalize(); err != nil {
		return t.fail("finalize", err)
	}

	normal, level1, aicpu := t.table.Counts()
	layout, err := core.PlanLayout(core.LayoutParams{
		ContextCount: len(t.lowered),
		NormalSlots:  normal,
		Level1Slots:  level1,
		AicpuSlots:   aicpu,
		TilingSize:   len(t.tiling.Bytes()),
		BlobSize:     len(t.table.Blob()),
		Align:        t.opts.DescriptorAlign,
	})
	if err != nil {
		return t.fail("finalize", err)
	}
	arena, err := NewArena(layout, t.opts.Allocator)
	if err != nil {
		return t.fail("finalize", err)
	}

	for _, lw := range t.lowered {
		if err := arena.WriteAt(layout.ContextOffset(int(lw.Position)), lw.Raw[:]); err != nil {
			arena.Release()
			return t.fail("finalize", err)
		}
	}
	if err := arena.WriteRegion(core.RegionTiling, t.tiling.Bytes()); err != nil {
		arena.Release()
		return t.fail("finalize", err)
	}
	if err := arena.WriteRegion(core.RegionBlob, t.table.Blob()); err != nil {
		arena.Release()
		return t.fail("finalize", err)
	}

	level1List, err := t.table.Patches().GenerateRefreshList(t.table.Level1Slots(), uint32(normal), uint64(layout.Contexts.Offset), t.opts.Placement)
	if err != nil {
		arena.Release()
		return t.fail("finalize", err)
	}
	t.level1 = level1List
	t.aicpu = t.table.Embedded().GenerateRefreshList(uint32(t.table.AicpuStart()), uint64(layout.Blob.Offset), t.opts.Placement)

	t.tableRefresh = t.table.TableRefreshList(uint64(layout.Table.Offset), t.opts.Placement)
	t.layout = layout
	if err := t.writeArgs(arena, t.bases); err != nil {
		arena.Release()
		return t.fail("finalize", err)
	}
	t.arena = arena
	t.state = StateFinalized
	t.log.WithFields(logrus.Fields{
		"size":    layout.Total,
		"table":   layout.Table.Offset,
		"refresh": len(t.tableRefresh) + len(t.level1) + len(t.aicpu),
	}).Debug("descriptor finalized")
	return nil
}

// Distribute hands the descriptor to sub. A failed submission leaves the task
// finalized.
func (t *Task) Distribute(ctx context.Context, sub Submitter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.require("Distribute", StateFinalized, StateDistributed); err != nil {
		return err
	}
	if sub == nil {
		return core.ParamInvalidf("nil submitter")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sub.Submit(ctx, t.descriptor()); err != nil {
		t.log.WithError(err).Warn("submission failed")
		return errors.Wrap(err, "submitting descriptor")
	}
	t.state = StateDistributed
	t.log.Debug("descriptor distributed")
	return nil
}

// Release frees the descriptor. A released task cannot be reused; rebuilding
// requires a new Task.
func (t *Task) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateReleased || t.state == StateRefreshing {
		err := core.Inconsistentf("Release called in state %s", t.state)
		t.log.WithField("op", "Release").Warn(err)
		return err
	}
	if t.arena != nil {
		t.arena.Release()
		t.arena = nil
	}
	t.table = nil
	t.tiling = nil
	t.lowered = nil
	t.tableRefresh, t.level1, t.aicpu = nil, nil, nil
	t.state = StateReleased
	t.log.Debug("task released")
	return nil
}

// Descriptor returns the built descriptor, or nil before Finalize.
func (t *Task) Descriptor() *Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.descriptor()
}

func (t *Task) descriptor() *Descriptor {
	if t.arena == nil {
		return nil
	}
	return &Descriptor{
		Name:    t.name,
		Layout:  t.layout,
		Bytes:   t.arena.Buffer(),
		Refresh: t.refreshList(),
	}
}

// TableCounts returns the sizes of the normal, Level1 and AICPU groups of the
// argument table.
func (t *Task) TableCounts() (normal, level1, aicpu int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.table == nil {
		return 0, 0, 0
	}
	return t.table.Counts()
}

// Slots returns a copy of the argument table: the merged table once
// finalized, the normal entries before.
func (t *Task) Slots() []args.Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.table == nil {
		return nil
	}
	return append([]args.Slot(nil), t.table.Slots()...)
}

// Lowered returns copies of the lowered contexts in declaration order.
func (t *Task) Lowered() []compiler.Lowered {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]compiler.Lowered, len(t.lowered))
	for i, lw := range t.lowered {
		out[i] = *lw
		out[i].Entries = append([]compiler.EntryRecord(nil), lw.Entries...)
		out[i].PersistTags = append([]compiler.PersistTag(nil), lw.PersistTags...)
	}
	return out
}

// PersistTags returns the tensors tagged by cache-persist contexts.
func (t *Task) PersistTags() []compiler.PersistTag {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]compiler.PersistTag(nil), t.tags...)
}

// prepare runs Init, Build and Finalize, stopping early when ctx is done.
func (t *Task) prepare(ctx context.Context) error {
	stages := []struct {
		name string
		run  func() error
	}{
		{"init", t.Init},
		{"build", t.Build},
		{"finalize", t.Finalize},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "task %s: before %s", t.name, s.name)
		}
		if err := s.run(); err != nil {
			return err
		}
	}
	return nil
}
