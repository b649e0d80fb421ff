// Package model defines the frozen per-context descriptions a task is lowered from.
//
// Upstream partitioning has already bound every operator to its kernels and
// resolved its address positions; this package only carries that result. Each
// hardware context kind is its own variant struct implementing Context, so a
// handler sees only the fields of its own kind.
//
// Key data structures:
//   - Context: closed variant over the hardware context kinds
//   - Header: fields common to every context (id, successors, thread dims)
//   - Address: one named IR position, resolved or logical
//   - Task: the ordered contexts of one fused subgraph plus declared budgets
package model

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hicann/fftsplus/core"
)

// Kind is the hardware context type. Values are the on-device type tags.
type Kind uint8

const (
	KindAICore Kind = iota + 1
	KindAIV
	KindMixAIC
	KindMixAIV
	KindAICPU
	KindSDMA
	KindData
	KindCondSwitch
	KindCaseSwitch
	KindCaseDefault
	KindLabel
	KindAtStart
	KindAtEnd
	KindNotify
	KindWriteValue
	KindDSA
	KindCachePersist
)

var kindNames = map[Kind]string{
	KindAICore:       "aicore",
	KindAIV:          "aiv",
	KindMixAIC:       "mix_aic",
	KindMixAIV:       "mix_aiv",
	KindAICPU:        "aicpu",
	KindSDMA:         "sdma",
	KindData:         "data",
	KindCondSwitch:   "cond_switch",
	KindCaseSwitch:   "case_switch",
	KindCaseDefault:  "case_default",
	KindLabel:        "label",
	KindAtStart:      "at_start",
	KindAtEnd:        "at_end",
	KindNotify:       "notify",
	KindWriteValue:   "write_value",
	KindDSA:          "dsa",
	KindCachePersist: "cache_persist",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, core.ParamInvalidf("unknown context kind %q", s)
}

// IsCompute reports whether k runs on AI-Core or AI-Vector-Core.
func (k Kind) IsCompute() bool {
	return k >= KindAICore && k <= KindMixAIV
}

// IsMix reports whether k dispatches to both engines.
func (k Kind) IsMix() bool {
	return k == KindMixAIC || k == KindMixAIV
}

// Header holds the fields shared by every context kind.
type Header struct {
	ID         uint32   `json:"id"`
	Successors []uint32 `json:"successors,omitempty"` // context ids, not positions
	PredCount  uint8    `json:"pred_count,omitempty"`
	ThreadDim  uint16   `json:"thread_dim,omitempty"`
	ThreadID   uint16   `json:"thread_id,omitempty"`
	Aten       bool     `json:"aten,omitempty"`
	Dump       bool     `json:"dump,omitempty"`
}

// Head returns h. Promoted to every variant embedding Header.
func (h *Header) Head() *Header { return h }

// Footprint is the declared resource use of one context.
type Footprint struct {
	Slots  int // argument table entries, Level1 and AICPU included
	Blob   int // AICPU blob bytes
	Tiling int // tiling data bytes
}

// Add returns the sum of f and o.
func (f Footprint) Add(o Footprint) Footprint {
	return Footprint{Slots: f.Slots + o.Slots, Blob: f.Blob + o.Blob, Tiling: f.Tiling + o.Tiling}
}

// Context is one abstract context description. The variant set is closed:
// only types in this package implement it.
type Context interface {
	Kind() Kind
	Head() *Header
	Footprint() Footprint
	isContext()
}

// IsNil reports whether c is nil or a nil variant pointer.
func IsNil(c Context) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// AddrMode says how an IR position's value must be placed in the table.
type AddrMode uint8

const (
	AddrResolved AddrMode = iota // host/device address known at build time
	AddrLogical                  // offset the memory owner may or may not recognize
	AddrTagged                   // runtime-only value in an explicit memory kind
	AddrModelIO                  // pre-bound model input/output, rebindable
)

var addrModeNames = [...]string{"resolved", "logical", "tagged", "modelio"}

func (m AddrMode) String() string {
	if int(m) < len(addrModeNames) {
		return addrModeNames[m]
	}
	return fmt.Sprintf("addrmode(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m AddrMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AddrMode) UnmarshalText(text []byte) error {
	for i, name := range addrModeNames {
		if name == string(text) {
			*m = AddrMode(i)
			return nil
		}
	}
	return core.ParamInvalidf("unknown address mode %q", text)
}

// Address is one named IR position of a context.
type Address struct {
	Value uint64          `json:"value"`
	Mode  AddrMode        `json:"mode,omitempty"`
	Kind  core.MemoryKind `json:"kind,omitempty"`
}

// Resolved returns an already-resolved address.
func Resolved(v uint64) Address { return Address{Value: v, Mode: AddrResolved} }

// Logical returns a logical offset for the memory owner to resolve.
func Logical(off uint64) Address { return Address{Value: off, Mode: AddrLogical} }

// Tagged returns a runtime-only value resolved against kind's base.
func Tagged(v uint64, kind core.MemoryKind) Address {
	return Address{Value: v, Mode: AddrTagged, Kind: kind}
}

// ModelIO returns a pre-bound model input/output address.
func ModelIO(v uint64) Address { return Address{Value: v, Mode: AddrModelIO, Kind: core.MemModelIO} }

func (a Address) String() string {
	return fmt.Sprintf("%s:%#x", a.Mode, a.Value)
}

// Compute is an AI-Core, AI-Vector-Core or Mix context.
type Compute struct {
	Header
	Engine       Kind      `json:"-"`
	KernelNames  []string  `json:"kernel_names"`
	MixEnhanced  bool      `json:"mix_enhanced,omitempty"`
	RatioAIC     uint8     `json:"ratio_aic,omitempty"`
	RatioAIV     uint8     `json:"ratio_aiv,omitempty"`
	BlockDim     uint16    `json:"block_dim,omitempty"`
	ScheduleMode uint8     `json:"schedule_mode,omitempty"`
	ArgsFormat   string    `json:"args_format,omitempty"`
	Inputs       []Address `json:"inputs,omitempty"`
	Outputs      []Address `json:"outputs,omitempty"`
	Workspaces   []Address `json:"workspaces,omitempty"`
	TilingData   []byte    `json:"tiling_data,omitempty"`
}

func (c *Compute) Kind() Kind { return c.Engine }

func (c *Compute) Footprint() Footprint {
	slots := len(c.Inputs) + len(c.Outputs) + len(c.Workspaces)
	if len(c.TilingData) > 0 {
		slots++
	}
	if c.ArgsFormat != "" {
		slots = strings.Count(c.ArgsFormat, "{")
	}
	return Footprint{Slots: slots, Tiling: core.AlignSize(len(c.TilingData), core.ArgsAlign)}
}

// AicpuType selects the AICPU sub-variant.
type AicpuType uint8

const (
	AicpuFramework AicpuType = iota + 1 // generic framework-hosted adapter
	AicpuCustom                         // custom kernel with a raw args blob
)

// FrameworkBlobHeader is the fixed prefix of a framework AICPU blob:
// session id, kernel id, workspace address, ext-info length.
const FrameworkBlobHeader = 32

// Embedded is an address patched into an AICPU payload at BlobOffset,
// relative to the start of the context's payload.
type Embedded struct {
	BlobOffset uint32  `json:"blob_offset"`
	Addr       Address `json:"addr"`
}

// Aicpu is an AI-CPU context.
type Aicpu struct {
	Header
	Type       AicpuType  `json:"type"`
	Blocking   bool       `json:"blocking,omitempty"`
	KernelName string     `json:"kernel_name,omitempty"`
	Payload    []byte     `json:"payload,omitempty"`
	Embedded   []Embedded `json:"embedded,omitempty"`
	SessionID  uint64     `json:"session_id,omitempty"`
	KernelID   uint64     `json:"kernel_id,omitempty"`
	Workspace  Address    `json:"workspace,omitempty"`
	ExtInfo    []byte     `json:"ext_info,omitempty"`
	Inputs     []Address  `json:"inputs,omitempty"`
	Outputs    []Address  `json:"outputs,omitempty"`
}

func (c *Aicpu) Kind() Kind { return KindAICPU }

func (c *Aicpu) Footprint() Footprint {
	f := Footprint{Slots: len(c.Inputs) + len(c.Outputs)}
	switch c.Type {
	case AicpuFramework:
		f.Slots++
		f.Blob = core.AlignSize(FrameworkBlobHeader+len(c.ExtInfo), core.ArgsAlign)
	default:
		f.Slots += len(c.Embedded)
		f.Blob = core.AlignSize(len(c.Payload), core.ArgsAlign)
	}
	return f
}

// SDMA is a memory-to-memory copy context.
type SDMA struct {
	Header
	SqeHeader uint32  `json:"sqe_header,omitempty"`
	Length    uint32  `json:"length"`
	Src       Address `json:"src"`
	Dst       Address `json:"dst"`
}

func (c *SDMA) Kind() Kind { return KindSDMA }

func (c *SDMA) Footprint() Footprint { return Footprint{Slots: 2} }

// DataOp is the cache maintenance operation of a Data context.
type DataOp uint8

const (
	DataFlush DataOp = iota + 1
	DataInvalidate
	DataWriteback
	DataPrefetch
)

// Data is a cache maintenance ("CMO data") context.
type Data struct {
	Header
	Op           DataOp  `json:"op"`
	Addr         Address `json:"addr"`
	Length       uint32  `json:"length"`
	NonTailCount uint16  `json:"non_tail_count,omitempty"`
	TailCount    uint16  `json:"tail_count,omitempty"`
	Stride       uint32  `json:"stride,omitempty"`
}

func (c *Data) Kind() Kind { return KindData }

func (c *Data) Footprint() Footprint { return Footprint{Slots: 1} }

// CondOp is the comparison a CondSwitch applies to its two values.
type CondOp uint8

const (
	CondEQ CondOp = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
)

// CondSwitch branches to TrueSuccessors or FalseSuccessors. Header.Successors
// must be empty.
type CondSwitch struct {
	Header
	TrueSuccessors  []uint32 `json:"true_successors,omitempty"`
	FalseSuccessors []uint32 `json:"false_successors,omitempty"`
	Condition       CondOp   `json:"condition"`
	Value1          uint32   `json:"value1"`
	Value2          uint32   `json:"value2"`
}

func (c *CondSwitch) Kind() Kind { return KindCondSwitch }

func (c *CondSwitch) Footprint() Footprint { return Footprint{} }

// CaseSwitch selects one of LabelCount labels starting at StartLabel.
type CaseSwitch struct {
	Header
	StartLabel uint16 `json:"start_label"`
	LabelCount uint16 `json:"label_count"`
	Value      uint32 `json:"value"`
}

func (c *CaseSwitch) Kind() Kind { return KindCaseSwitch }

func (c *CaseSwitch) Footprint() Footprint { return Footprint{} }

// CaseDefault is the fallthrough of a case group.
type CaseDefault struct {
	Header
	StartLabel uint16 `json:"start_label"`
	LabelCount uint16 `json:"label_count"`
}

func (c *CaseDefault) Kind() Kind { return KindCaseDefault }

func (c *CaseDefault) Footprint() Footprint { return Footprint{} }

// Label is a branch target.
type Label struct {
	Header
}

func (c *Label) Kind() Kind { return KindLabel }

func (c *Label) Footprint() Footprint { return Footprint{} }

// AtStart opens a thread window.
type AtStart struct {
	Header
	ThreadIDInit uint16 `json:"thread_id_init"`
	ThreadWindow uint16 `json:"thread_window"`
}

func (c *AtStart) Kind() Kind { return KindAtStart }

func (c *AtStart) Footprint() Footprint { return Footprint{} }

// AtEnd closes a thread window.
type AtEnd struct {
	Header
	AtStartSlots []uint32 `json:"at_start_slots,omitempty"` // ids of AtStart contexts
	OutLabel     uint32   `json:"out_label"`                // id of the exit Label
}

func (c *AtEnd) Kind() Kind { return KindAtEnd }

func (c *AtEnd) Footprint() Footprint { return Footprint{} }

// NotifyOp distinguishes notify record from wait.
type NotifyOp uint8

const (
	NotifyRecord NotifyOp = iota
	NotifyWait
)

// Notify records or waits on a hardware notify.
type Notify struct {
	Header
	NotifyID uint16   `json:"notify_id"`
	Op       NotifyOp `json:"op"`
	Timeout  uint32   `json:"timeout,omitempty"`
}

func (c *Notify) Kind() Kind { return KindNotify }

func (c *Notify) Footprint() Footprint { return Footprint{} }

// WriteValue writes up to four 32-bit values to Addr.
type WriteValue struct {
	Header
	Addr   Address  `json:"addr"`
	AWSize uint8    `json:"aw_size"`
	Snoop  uint8    `json:"snoop,omitempty"`
	Values []uint32 `json:"values"`
}

func (c *WriteValue) Kind() Kind { return KindWriteValue }

func (c *WriteValue) Footprint() Footprint { return Footprint{Slots: 1} }

// DsaDType is the element type of DSA immediates.
type DsaDType uint8

const (
	DsaUint64 DsaDType = iota
	DsaFloat32
	DsaFloat16
)

// DsaInput is one DSA input. Stateless inputs may carry an immediate instead of
// an address; stateful inputs are always addresses.
type DsaInput struct {
	Stateless bool    `json:"stateless,omitempty"`
	Immediate bool    `json:"immediate,omitempty"`
	Addr      Address `json:"addr,omitempty"`
	Float     float32 `json:"float,omitempty"`
	Raw       uint64  `json:"raw,omitempty"`
}

// DSA is a random-number generation context.
type DSA struct {
	Header
	Distribution uint8      `json:"distribution"`
	DType        DsaDType   `json:"dtype,omitempty"`
	Inputs       []DsaInput `json:"inputs,omitempty"`
	OutputSize   int        `json:"output_size,omitempty"` // declared; 0 means 1
	Outputs      []Address  `json:"outputs,omitempty"`
	Workspaces   []Address  `json:"workspaces,omitempty"`
}

func (c *DSA) Kind() Kind { return KindDSA }

func (c *DSA) Footprint() Footprint {
	slots := len(c.Outputs) + len(c.Workspaces)
	for _, in := range c.Inputs {
		if !in.Immediate {
			slots++
		}
	}
	return Footprint{Slots: slots}
}

// CachePersist pins the named input tensors in a persistent cache region.
type CachePersist struct {
	Header
	PersistentID uint16   `json:"persistent_id"`
	Size         uint64   `json:"size"`
	Tensors      []string `json:"tensors,omitempty"`
}

func (c *CachePersist) Kind() Kind { return KindCachePersist }

func (c *CachePersist) Footprint() Footprint { return Footprint{} }

func (*Compute) isContext()      {}
func (*Aicpu) isContext()        {}
func (*SDMA) isContext()         {}
func (*Data) isContext()         {}
func (*CondSwitch) isContext()   {}
func (*CaseSwitch) isContext()   {}
func (*CaseDefault) isContext()  {}
func (*Label) isContext()        {}
func (*AtStart) isContext()      {}
func (*AtEnd) isContext()        {}
func (*Notify) isContext()       {}
func (*WriteValue) isContext()   {}
func (*DSA) isContext()          {}
func (*CachePersist) isContext() {}
