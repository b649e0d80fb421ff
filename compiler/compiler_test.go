package compiler

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/x448/float16"

	"github.com/hicann/fftsplus/args"
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/kernels"
	"github.com/hicann/fftsplus/model"
)

// spanWriter is a bump-allocated tiling span.
type spanWriter struct {
	buf  []byte
	used int
}

func (s *spanWriter) AllocateTiling(data []byte) (uint32, error) {
	off := core.AlignSize(s.used, core.ArgsAlign)
	if off+len(data) > len(s.buf) {
		return 0, core.OutOfSpacef("tiling span exhausted")
	}
	copy(s.buf[off:], data)
	s.used = off + len(data)
	return uint32(off), nil
}

func testDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	reg := kernels.NewRegistry()
	for name, h := range map[string]kernels.Handle{
		"add":     {Entry: 0x1000, Prefetch: 2},
		"mix_aic": {Entry: 0x2000, Prefetch: 1},
		"mix_aiv": {Entry: 0x3000, Prefetch: 3},
		"cpu_op":  {Entry: 0x4000},
	} {
		if err := reg.Register(name, h); err != nil {
			t.Fatal(err)
		}
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewDispatcher(reg, opts, logrus.NewEntry(log))
}

// testEnv places ids at consecutive array positions.
func testEnv(tab *args.Table, ids ...uint32) *Env {
	pos := make(map[uint32]uint16, len(ids))
	for i, id := range ids {
		pos[id] = uint16(i)
	}
	return &Env{Table: tab, Positions: pos, Tiling: &spanWriter{buf: make([]byte, 64)}}
}

func TestHeaderFields(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	env := testEnv(args.NewTable(0, 0, nil), 10, 20, 30)

	c := &model.Label{Header: model.Header{ID: 10, Successors: []uint32{30, 20}, PredCount: 3, ThreadDim: 4, ThreadID: 1, Aten: true}}
	lw, err := d.Lower(c, env)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	raw := &lw.Raw
	if raw.U16(offKind) != uint16(model.KindLabel) || raw[offSuccCount] != 2 {
		t.Errorf("kind/count = %d/%d", raw.U16(offKind), raw[offSuccCount])
	}
	if raw.U16(offSuccessors) != 2 || raw.U16(offSuccessors+2) != 1 {
		t.Errorf("successor positions = %d, %d", raw.U16(offSuccessors), raw.U16(offSuccessors+2))
	}
	if raw[offFlags] != flagAten || raw[offPredCount] != 3 || raw[offPredInit] != 3 || raw.U16(offThreadDim) != 4 || raw.U16(offThreadID) != 1 {
		t.Errorf("header bytes = % x", raw[:12])
	}

	c.Successors = []uint32{99}
	if _, err := d.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("unknown successor: expected ErrParamInvalid, got %v", err)
	}
}

func TestCondSwitchSuccessorOverflow(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())

	ids := make([]uint32, 28)
	for i := range ids {
		ids[i] = uint32(i)
	}
	env := testEnv(args.NewTable(0, 0, nil), ids...)

	c := &model.CondSwitch{Header: model.Header{ID: 0}, TrueSuccessors: ids[1:28]}
	if _, err := d.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Fatalf("27 true successors: expected ErrParamInvalid, got %v", err)
	}

	c.TrueSuccessors = ids[1:27]
	c.FalseSuccessors = ids[27:]
	c.Condition = model.CondLT
	c.Value1, c.Value2 = 5, 9
	lw, err := d.Lower(c, env)
	if err != nil {
		t.Fatalf("26 true successors should fit: %v", err)
	}
	raw := &lw.Raw
	if raw[offSuccCount] != 26 || raw.U16(offSuccessors+2*25) != 26 {
		t.Errorf("true list count %d, last %d", raw[offSuccCount], raw.U16(offSuccessors+2*25))
	}
	if raw[offFalseCount] != 1 || raw.U16(offFalseSuccessors) != 27 || raw[offCondOp] != uint8(model.CondLT) || raw.U32(offCondValue2) != 9 {
		t.Errorf("false branch body = % x", raw[64:])
	}

	limited := testDispatcher(t, Options{MaxSuccessors: 4})
	if _, err := limited.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("configured limit: expected ErrParamInvalid, got %v", err)
	}
}

func TestComputeDefaultArgs(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 0, nil)
	if _, err := tab.AppendResolvedAddress(0xFFFF); err != nil {
		t.Fatal(err)
	}
	env := testEnv(tab, 1)

	c := &model.Compute{
		Header:      model.Header{ID: 1},
		Engine:      model.KindAICore,
		KernelNames: []string{"add"},
		BlockDim:    8,
		Inputs:      []model.Address{model.Resolved(0xA), model.Logical(0x10)},
		Outputs:     []model.Address{model.Tagged(0x20, core.MemWorkspace)},
		TilingData:  []byte{1, 2, 3, 4},
	}
	lw, err := d.Lower(c, env)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	raw := &lw.Raw
	if raw.U32(offArgsOffset) != 8 || raw.U16(offArgsCount) != 4 || raw.U16(offBlockDim) != 8 {
		t.Errorf("args offset/count/block = %d/%d/%d", raw.U32(offArgsOffset), raw.U16(offArgsCount), raw.U16(offBlockDim))
	}
	if raw.U16(offArgsCount+2) != 0 {
		t.Errorf("reserved body bytes after the args count = %#x, want 0", raw.U16(offArgsCount+2))
	}
	if raw.U64(offEntryAIC) != 0x1000 || raw[offPrefetchAIC] != 2 || raw.U64(offEntryAIV) != 0 {
		t.Errorf("entries = %#x/%#x", raw.U64(offEntryAIC), raw.U64(offEntryAIV))
	}
	if raw.U32(offTilingSize) != 4 {
		t.Errorf("tiling size = %d", raw.U32(offTilingSize))
	}

	slots := tab.Slots()
	want := []args.Slot{
		{Value: 0xA, Placement: args.PlacementAbsolute},
		{Value: 0x10, Offset: 0x10, Placement: args.PlacementLogical, Kind: core.MemFeatureMap},
		{Value: 0x20, Offset: 0x20, Placement: args.PlacementLogical, Kind: core.MemWorkspace},
		{Value: 0, Offset: 0, Placement: args.PlacementLogical, Kind: core.MemTiling},
	}
	for i, w := range want {
		if slots[i+1] != w {
			t.Errorf("slot %d = %+v, want %+v", i+1, slots[i+1], w)
		}
	}
}

func TestComputeArgsFormat(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	opts.FftsBase = 0xF000
	d := testDispatcher(t, opts)
	tab := args.NewTable(0, 0, nil)
	env := testEnv(tab, 1)

	c := &model.Compute{
		Header:      model.Header{ID: 1},
		Engine:      model.KindAIV,
		KernelNames: []string{"add"},
		ArgsFormat:  "{ffts}{o0} {i1}{-}{ws0}",
		Inputs:      []model.Address{model.Resolved(0xA), model.Resolved(0xB)},
		Outputs:     []model.Address{model.Resolved(0xC)},
		Workspaces:  []model.Address{model.Resolved(0xD)},
	}
	if got := c.Footprint().Slots; got != 5 {
		t.Fatalf("footprint slots = %d, want 5", got)
	}
	lw, err := d.Lower(c, env)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	var values []uint64
	for _, s := range tab.Slots() {
		values = append(values, s.Value)
	}
	want := []uint64{0xF000, 0xC, 0xB, 0, 0xD}
	if len(values) != len(want) {
		t.Fatalf("table = %#x, want %#x", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("slot %d = %#x, want %#x", i, values[i], want[i])
		}
	}
	if lw.Raw.U64(offEntryAIV) != 0x1000 || lw.Raw.U64(offEntryAIC) != 0 || lw.Entries[0].Engine != EngineAIV {
		t.Errorf("aiv entry not placed in the aiv slot: %+v", lw.Entries)
	}

	c.ArgsFormat = "{i2}"
	if _, err := d.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("out-of-range token: expected ErrParamInvalid, got %v", err)
	}
	c.ArgsFormat = "{t}"
	if _, err := d.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("tiling token without tiling: expected ErrParamInvalid, got %v", err)
	}
}

func TestMixEnhancedDuplicatesEntry(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())

	tests := []struct {
		name     string
		aic, aiv uint8
	}{
		{"1:0", 1, 0},
		{"0:1", 0, 1},
	}
	for _, tt := range tests {
		c := &model.Compute{
			Header:      model.Header{ID: 1},
			Engine:      model.KindMixAIC,
			KernelNames: []string{"mix_aic"},
			MixEnhanced: true,
			RatioAIC:    tt.aic,
			RatioAIV:    tt.aiv,
		}
		lw, err := d.Lower(c, testEnv(args.NewTable(0, 0, nil), 1))
		if err != nil {
			t.Fatalf("%s: Lower failed: %v", tt.name, err)
		}
		if len(lw.Entries) != 2 || lw.Entries[0].Entry != lw.Entries[1].Entry || lw.Entries[0].Entry != 0x2000 {
			t.Errorf("%s: entries = %+v", tt.name, lw.Entries)
		}
		if lw.Raw.U64(offEntryAIC) != 0x2000 || lw.Raw.U64(offEntryAIV) != 0x2000 {
			t.Errorf("%s: struct entries = %#x/%#x", tt.name, lw.Raw.U64(offEntryAIC), lw.Raw.U64(offEntryAIV))
		}
		if lw.Raw[offRatioAIC] != tt.aic || lw.Raw[offRatioAIV] != tt.aiv {
			t.Errorf("%s: ratio bytes = %d:%d", tt.name, lw.Raw[offRatioAIC], lw.Raw[offRatioAIV])
		}
	}
}

func TestComputeKernelNames(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())

	two := &model.Compute{Header: model.Header{ID: 1}, Engine: model.KindMixAIV, KernelNames: []string{"mix_aic", "mix_aiv"}, RatioAIC: 1, RatioAIV: 2}
	lw, err := d.Lower(two, testEnv(args.NewTable(0, 0, nil), 1))
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if lw.Raw.U64(offEntryAIC) != 0x2000 || lw.Raw.U64(offEntryAIV) != 0x3000 || lw.Raw[offPrefetchAIV] != 3 {
		t.Errorf("mix entries = %#x/%#x", lw.Raw.U64(offEntryAIC), lw.Raw.U64(offEntryAIV))
	}

	tests := []struct {
		name string
		c    *model.Compute
	}{
		{"missing handle", &model.Compute{Engine: model.KindAICore, KernelNames: []string{"nope"}, Inputs: []model.Address{model.Resolved(1)}}},
		{"no names", &model.Compute{Engine: model.KindAICore}},
		{"mix single name, not enhanced", &model.Compute{Engine: model.KindMixAIC, KernelNames: []string{"mix_aic"}, RatioAIC: 1}},
		{"mix enhanced, two-sided ratio", &model.Compute{Engine: model.KindMixAIC, KernelNames: []string{"mix_aic"}, MixEnhanced: true, RatioAIC: 1, RatioAIV: 1}},
		{"mix second name missing", &model.Compute{Engine: model.KindMixAIC, KernelNames: []string{"mix_aic", "nope"}}},
	}
	for _, tt := range tests {
		tab := args.NewTable(0, 0, nil)
		tt.c.ID = 1
		if _, err := d.Lower(tt.c, testEnv(tab, 1)); !errors.Is(err, core.ErrParamInvalid) {
			t.Errorf("%s: expected ErrParamInvalid, got %v", tt.name, err)
		}
		if tab.Len() != 0 {
			t.Errorf("%s: failed lowering appended %d entries", tt.name, tab.Len())
		}
	}
}

func TestAicpuCustomBlobOverflow(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 16, nil)
	env := testEnv(tab, 1)

	c := &model.Aicpu{
		Header:     model.Header{ID: 1},
		Type:       model.AicpuCustom,
		KernelName: "cpu_op",
		Payload:    make([]byte, 24),
		Embedded:   []model.Embedded{{BlobOffset: 8, Addr: model.Resolved(0x77)}},
		Inputs:     []model.Address{model.Resolved(0x10)},
	}
	if _, err := d.Lower(c, env); !errors.Is(err, core.ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
	if tab.Len() != 0 || tab.BlobSize() != 16 || len(tab.Blob()) != 0 {
		t.Errorf("failed lowering changed the table: len %d, blob used %d", tab.Len(), len(tab.Blob()))
	}
}

func TestAicpuCustom(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 32, nil)
	if _, err := tab.AppendBinaryBlob([]byte{0xEE}); err != nil {
		t.Fatal(err)
	}
	env := testEnv(tab, 1)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 0}
	c := &model.Aicpu{
		Header:     model.Header{ID: 1},
		Type:       model.AicpuCustom,
		KernelName: "cpu_op",
		Payload:    payload,
		Embedded:   []model.Embedded{{BlobOffset: 8, Addr: model.Resolved(0x77)}},
		Inputs:     []model.Address{model.Resolved(0x10)},
		Outputs:    []model.Address{model.Resolved(0x20)},
	}
	lw, err := d.Lower(c, env)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	raw := &lw.Raw
	if raw.U32(offBlobOffset) != 8 || raw.U32(offBlobSize) != 16 || raw.U64(offKernelEntry) != 0x4000 || raw[offAicpuType] != uint8(model.AicpuCustom) {
		t.Errorf("aicpu body = % x", raw[64:])
	}
	if raw.U16(offArgsCount) != 2 {
		t.Errorf("args count = %d", raw.U16(offArgsCount))
	}
	if normal, _, aicpu := tab.Counts(); normal != 2 || aicpu != 1 {
		t.Errorf("counts = %d normal, %d aicpu", normal, aicpu)
	}
	if err := tab.Finalize(); err != nil {
		t.Fatal(err)
	}
	list := tab.Embedded().GenerateRefreshList(uint32(tab.AicpuStart()), 0, args.ArgsHostSvm)
	if len(list) != 1 || list[0].TargetOffset != 16 {
		t.Errorf("embedded patch at %v, want blob offset 16", list)
	}

	bad := *c
	bad.Embedded = []model.Embedded{{BlobOffset: 12, Addr: model.Resolved(1)}}
	if _, err := d.Lower(&bad, testEnv(args.NewTable(0, 32, nil), 1)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("embedded outside payload: expected ErrParamInvalid, got %v", err)
	}
}

func TestAicpuFramework(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 64, nil)

	c := &model.Aicpu{
		Header:    model.Header{ID: 1},
		Type:      model.AicpuFramework,
		SessionID: 11,
		KernelID:  22,
		Workspace: model.Tagged(0x100, core.MemWorkspace),
		ExtInfo:   []byte{9, 9, 9},
		Inputs:    []model.Address{model.Resolved(0x10)},
	}
	if got := c.Footprint(); got.Slots != 2 || got.Blob != 40 {
		t.Fatalf("framework footprint = %+v", got)
	}
	lw, err := d.Lower(c, testEnv(tab, 1))
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	blob := tab.Blob()
	if core.Word(blob, blobSessionID) != 11 || core.Word(blob, blobKernelID) != 22 || blob[blobExtInfoSize] != 3 || blob[model.FrameworkBlobHeader] != 9 {
		t.Errorf("framework blob = % x", blob)
	}
	if lw.Raw.U64(offSessionID) != 11 || lw.Raw.U64(offAicpuKernel) != 22 || len(lw.Entries) != 0 {
		t.Errorf("framework body = % x", lw.Raw[64:])
	}
	if _, _, aicpu := tab.Counts(); aicpu != 1 {
		t.Errorf("workspace not recorded as an embedded address")
	}
}

func TestAicpuBlockingCapability(t *testing.T) {
	t.Parallel()
	c := &model.Aicpu{Header: model.Header{ID: 1}, Type: model.AicpuCustom, Blocking: true, KernelName: "cpu_op", Payload: make([]byte, 8)}

	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 8, nil)
	if _, err := d.Lower(c, testEnv(tab, 1)); !errors.Is(err, core.ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}
	if len(tab.Blob()) != 0 {
		t.Error("rejected context allocated blob space")
	}

	opts := DefaultOptions()
	opts.Capabilities.AicpuBlocking = true
	lw, err := testDispatcher(t, opts).Lower(c, testEnv(tab, 1))
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if lw.Raw[offFlags]&flagBlocking == 0 {
		t.Error("blocking flag not set")
	}
}

func TestLevel1Contexts(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	tab := args.NewTable(0, 0, nil)
	env := testEnv(tab, 1, 2, 3)

	ctxs := []model.Context{
		&model.SDMA{Header: model.Header{ID: 1}, Length: 64, Src: model.Resolved(0xA0), Dst: model.Logical(0xB0)},
		&model.Data{Header: model.Header{ID: 2}, Op: model.DataFlush, Addr: model.Resolved(0xC0), Length: 32},
		&model.WriteValue{Header: model.Header{ID: 3}, Addr: model.Resolved(0xD0), AWSize: 2, Values: []uint32{7, 8}},
	}
	for _, c := range ctxs {
		if _, err := d.Lower(c, env); err != nil {
			t.Fatalf("Lower(%s) failed: %v", c.Kind(), err)
		}
	}
	normal, level1, _ := tab.Counts()
	if normal != 0 || level1 != 4 {
		t.Fatalf("counts = %d normal, %d level1", normal, level1)
	}
	if err := tab.Finalize(); err != nil {
		t.Fatal(err)
	}
	p := tab.Patches()
	for i := uint32(1); i <= 3; i++ {
		p.MarkLowered(i, uint64(i-1)*core.ContextSize)
	}
	list, err := p.GenerateRefreshList(tab.Level1Slots(), 0, 0, args.ArgsHostSvm)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{offSdmaSrc, offSdmaDst, core.ContextSize + offDataAddr, 2*core.ContextSize + offWriteAddr}
	for i, w := range want {
		if list[i].TargetOffset != w {
			t.Errorf("patch %d at %d, want %d", i, list[i].TargetOffset, w)
		}
	}

	if _, err := d.Lower(&model.WriteValue{Header: model.Header{ID: 3}, Values: make([]uint32, 5)}, testEnv(args.NewTable(0, 0, nil), 3)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("five values: expected ErrParamInvalid, got %v", err)
	}
	if _, err := d.Lower(&model.Data{Header: model.Header{ID: 2}, Op: 9}, testEnv(args.NewTable(0, 0, nil), 2)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("unknown op: expected ErrParamInvalid, got %v", err)
	}
}

func TestDSAAtomicCommit(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())

	c := &model.DSA{
		Header:       model.Header{ID: 5},
		Distribution: 2,
		DType:        model.DsaFloat16,
		Inputs: []model.DsaInput{
			{Stateless: true, Immediate: true, Float: 1.5},
			{Addr: model.Resolved(0x100)},
		},
		Workspaces: []model.Address{model.Resolved(0x200)},
	}

	tab := args.NewTable(0, 0, nil)
	if _, err := d.Lower(c, testEnv(tab, 5)); !errors.Is(err, core.ErrParamInvalid) {
		t.Fatalf("missing output: expected ErrParamInvalid, got %v", err)
	}
	if _, level1, _ := tab.Counts(); level1 != 0 {
		t.Fatalf("incomplete group leaked %d level1 entries", level1)
	}

	c.Outputs = []model.Address{model.Resolved(0x300)}
	lw, err := d.Lower(c, testEnv(tab, 5))
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if _, level1, _ := tab.Counts(); level1 != 3 {
		t.Fatalf("level1 = %d, want 3", level1)
	}
	raw := &lw.Raw
	if raw.U64(offDsaInputs) != uint64(float16.Fromfloat32(1.5).Bits()) || raw.U64(offDsaInputs) != 0x3E00 {
		t.Errorf("float16 immediate = %#x", raw.U64(offDsaInputs))
	}
	if raw[offImmediateMask] != 1 || raw[offDsaInputCount] != 2 || raw[offDistribution] != 2 || raw[offDsaDType] != uint8(model.DsaFloat16) {
		t.Errorf("dsa body = % x", raw[64:72])
	}

	stateful := *c
	stateful.Inputs = []model.DsaInput{{Immediate: true, Raw: 1}}
	if _, err := d.Lower(&stateful, testEnv(args.NewTable(0, 0, nil), 5)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("stateful immediate: expected ErrParamInvalid, got %v", err)
	}
	wide := *c
	wide.Workspaces = make([]model.Address, 3)
	if _, err := d.Lower(&wide, testEnv(args.NewTable(0, 0, nil), 5)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("three workspaces: expected ErrParamInvalid, got %v", err)
	}
}

func TestDsaGroupCommitsOnDeclaredSize(t *testing.T) {
	t.Parallel()
	tab := args.NewTable(0, 0, nil)
	g := newDsaGroup(tab, 1, 2)
	g.stage(offDsaWorkspace, model.Resolved(0x10))

	if err := g.addOutput(offDsaOutput, model.Resolved(0x20)); err != nil {
		t.Fatal(err)
	}
	if _, level1, _ := tab.Counts(); level1 != 0 || g.committed {
		t.Fatalf("group visible after 1 of 2 outputs (level1 %d)", level1)
	}
	if err := g.addOutput(offDsaOutput, model.Resolved(0x30)); err != nil {
		t.Fatal(err)
	}
	if _, level1, _ := tab.Counts(); level1 != 3 || !g.committed {
		t.Fatalf("level1 = %d after commit, want 3", level1)
	}
	if err := g.addOutput(offDsaOutput, model.Resolved(0x40)); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("extra output: expected ErrParamInvalid, got %v", err)
	}
}

func TestDsaImmediateEncoding(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dtype model.DsaDType
		in    model.DsaInput
		want  uint64
	}{
		{model.DsaUint64, model.DsaInput{Raw: 0xDEADBEEF}, 0xDEADBEEF},
		{model.DsaFloat32, model.DsaInput{Float: 1.0}, 0x3F800000},
		{model.DsaFloat16, model.DsaInput{Float: -2.0}, 0xC000},
	}
	for _, tt := range tests {
		if got := dsaImmediate(tt.dtype, tt.in); got != tt.want {
			t.Errorf("dsaImmediate(%d, %+v) = %#x, want %#x", tt.dtype, tt.in, got, tt.want)
		}
	}
}

func TestControlBodies(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	env := testEnv(args.NewTable(0, 0, nil), 1, 2, 3, 4, 5, 6)

	lw, err := d.Lower(&model.AtEnd{Header: model.Header{ID: 4}, AtStartSlots: []uint32{2, 3}, OutLabel: 6}, env)
	if err != nil {
		t.Fatal(err)
	}
	if lw.Raw[offAtStartCount] != 2 || lw.Raw.U16(offOutLabel) != 5 || lw.Raw.U16(offAtStartSlots) != 1 || lw.Raw.U16(offAtStartSlots+2) != 2 {
		t.Errorf("at end body = % x", lw.Raw[64:76])
	}
	if _, err := d.Lower(&model.AtEnd{Header: model.Header{ID: 4}, OutLabel: 42}, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("unknown out label: expected ErrParamInvalid, got %v", err)
	}
	many := make([]uint32, 13)
	for i := range many {
		many[i] = 1
	}
	if _, err := d.Lower(&model.AtEnd{Header: model.Header{ID: 4}, AtStartSlots: many, OutLabel: 6}, env); !errors.Is(err, core.ErrParamInvalid) {
		t.Errorf("13 at-start slots: expected ErrParamInvalid, got %v", err)
	}

	lw, err = d.Lower(&model.Notify{Header: model.Header{ID: 1}, NotifyID: 9, Op: model.NotifyWait, Timeout: 100}, env)
	if err != nil {
		t.Fatal(err)
	}
	if lw.Raw.U16(offNotifyID) != 9 || lw.Raw[offNotifyOp] != 1 || lw.Raw.U32(offNotifyTimeout) != 100 {
		t.Errorf("notify body = % x", lw.Raw[64:72])
	}

	lw, err = d.Lower(&model.CaseSwitch{Header: model.Header{ID: 2}, StartLabel: 3, LabelCount: 2, Value: 7}, env)
	if err != nil {
		t.Fatal(err)
	}
	if lw.Raw.U16(offStartLabel) != 3 || lw.Raw.U16(offLabelCount) != 2 || lw.Raw.U32(offCaseValue) != 7 {
		t.Errorf("case switch body = % x", lw.Raw[64:72])
	}

	lw, err = d.Lower(&model.CachePersist{Header: model.Header{ID: 3}, PersistentID: 4, Size: 4096, Tensors: []string{"w0", "w1"}}, env)
	if err != nil {
		t.Fatal(err)
	}
	if len(lw.PersistTags) != 2 || lw.PersistTags[1] != (PersistTag{Tensor: "w1", ID: 4}) || lw.Raw.U64(offPersistSize) != 4096 {
		t.Errorf("persist tags = %+v", lw.PersistTags)
	}
	if env.Table.Len() != 0 {
		t.Errorf("control contexts appended %d table entries", env.Table.Len())
	}
}

func TestLowerRejectsNilVariant(t *testing.T) {
	t.Parallel()
	d := testDispatcher(t, DefaultOptions())
	env := testEnv(args.NewTable(4, 0, nil), 1)
	for _, c := range []model.Context{nil, (*model.SDMA)(nil), (*model.Compute)(nil)} {
		if _, err := d.Lower(c, env); !errors.Is(err, core.ErrParamInvalid) {
			t.Errorf("Lower(%T): expected ErrParamInvalid, got %v", c, err)
		}
	}
}
