package compiler

// Byte offsets inside the 128-byte context struct.

// Common header.
const (
	offKind       = 0
	offSuccCount  = 2
	offFlags      = 3
	offPredCount  = 4
	offPredInit   = 5
	offThreadDim  = 6
	offThreadID   = 8
	offBlockDim   = 10
	offSuccessors = 12
	offBody       = 64
)

// Header flag bits.
const (
	flagAten     = 1 << 0
	flagDump     = 1 << 1
	flagBlocking = 1 << 2
)

// Compute body. Bytes 70-71 are reserved; the block dim lives in the header.
const (
	offArgsOffset   = 64
	offArgsCount    = 68
	offEntryAIC     = 72
	offEntryAIV     = 80
	offPrefetchAIC  = 88
	offPrefetchAIV  = 89
	offRatioAIC     = 90
	offRatioAIV     = 91
	offScheduleMode = 92
	offTilingOffset = 96
	offTilingSize   = 100
)

// AICPU body. Args offset and count share the compute offsets.
const (
	offAicpuType    = 70
	offBlobOffset   = 72
	offBlobSize     = 76
	offKernelEntry  = 80
	offSessionID    = 88
	offAicpuKernel  = 96
	blobSessionID   = 0
	blobKernelID    = 8
	blobWorkspace   = 16
	blobExtInfoSize = 24
)

// SDMA body.
const (
	offSqeHeader = 64
	offSdmaLen   = 68
	offSdmaSrc   = 72
	offSdmaDst   = 80
)

// Data (CMO) body.
const (
	offDataOp      = 64
	offDataLen     = 68
	offDataAddr    = 72
	offDataNonTail = 80
	offDataTail    = 82
	offDataStride  = 84
)

// Control flow bodies.
const (
	offFalseSuccessors = 64
	offCondOp          = 116
	offFalseCount      = 117
	offCondValue1      = 120
	offCondValue2      = 124

	offStartLabel = 64
	offLabelCount = 66
	offCaseValue  = 68

	offThreadIDInit = 64
	offThreadWindow = 66

	offAtStartCount = 64
	offOutLabel     = 66
	offAtStartSlots = 68

	offNotifyID      = 64
	offNotifyOp      = 66
	offNotifyTimeout = 68
)

// WriteValue body.
const (
	offAWSize      = 64
	offSnoop       = 65
	offWriteAddr   = 72
	offWriteValues = 80
)

// DSA body.
const (
	offDistribution  = 64
	offImmediateMask = 65
	offDsaDType      = 66
	offDsaInputCount = 67
	offDsaOutput     = 72
	offDsaWorkspace  = 80 // two consecutive words
	offDsaInputs     = 96 // four consecutive words
)

// CachePersist body.
const (
	offPersistID     = 64
	offPersistEnable = 66
	offPersistSize   = 72
)
