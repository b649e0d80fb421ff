package compiler

// Hardware limits of the context struct layout.
const (
	HardwareSuccessors   = 26 // successor slots in the common header
	HardwareAtStartSlots = 12 // at-start slots of an AtEnd context
	MaxDsaInputs         = 4
	MaxDsaWorkspaces     = 2
	MaxWriteValues       = 4
)

// Capabilities are the target device's optional features.
type Capabilities struct {
	AicpuBlocking bool // blocking AICPU contexts are accepted
}

// Options configures the lowering dispatcher.
type Options struct {
	// MaxSuccessors bounds every successor list. Values above
	// HardwareSuccessors are clamped.
	MaxSuccessors int
	// MaxAtStartSlots bounds the at-start list of an AtEnd context.
	MaxAtStartSlots int
	// FftsBase is the address the {ffts} args-format token expands to.
	FftsBase     uint64
	Capabilities Capabilities
}

// DefaultOptions returns the hardware limits with no optional capabilities.
func DefaultOptions() Options {
	return Options{
		MaxSuccessors:   HardwareSuccessors,
		MaxAtStartSlots: HardwareAtStartSlots,
	}
}

func clampLimit(v, hw int) int {
	if v <= 0 || v > hw {
		return hw
	}
	return v
}

func (o Options) maxSuccessors() int   { return clampLimit(o.MaxSuccessors, HardwareSuccessors) }
func (o Options) maxAtStartSlots() int { return clampLimit(o.MaxAtStartSlots, HardwareAtStartSlots) }
