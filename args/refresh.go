package args

import "fmt"

// RefreshKind says which structure a refresh instruction rewrites.
type RefreshKind uint8

const (
	RefreshTable  RefreshKind = iota // an argument table entry
	RefreshLevel1                    // an address field inside a context struct
	RefreshAicpu                     // an 8-byte word inside the AICPU blob
)

func (k RefreshKind) String() string {
	switch k {
	case RefreshTable:
		return "table"
	case RefreshLevel1:
		return "level1"
	case RefreshAicpu:
		return "aicpu"
	}
	return fmt.Sprintf("refresh(%d)", uint8(k))
}

// ArgsPlacement is where the descriptor's args live when it is refreshed.
type ArgsPlacement uint8

const (
	ArgsHostSvm ArgsPlacement = iota
	ArgsDeviceHbm
	ArgsHostCompute
)

func (p ArgsPlacement) String() string {
	switch p {
	case ArgsHostSvm:
		return "host_svm"
	case ArgsDeviceHbm:
		return "device_hbm"
	case ArgsHostCompute:
		return "host_compute"
	}
	return fmt.Sprintf("placement(%d)", uint8(p))
}

// RefreshInstruction rebinds one address without relowering: copy merged table
// entry SourceIndex to the word at TargetOffset. TargetOffset is relative to the
// descriptor start, so instructions survive host/device remapping.
type RefreshInstruction struct {
	Kind         RefreshKind
	TargetOffset uint64
	SourceIndex  uint32
	Placement    ArgsPlacement
}

func (r RefreshInstruction) String() string {
	return fmt.Sprintf("%s target=%#x src=%d placement=%s", r.Kind, r.TargetOffset, r.SourceIndex, r.Placement)
}
