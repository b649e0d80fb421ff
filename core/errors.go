package core

import (
	"github.com/pkg/errors"
)

// Code classifies a lowering failure.
type Code int

const (
	CodeOK Code = iota
	CodeParamInvalid
	CodeUnsupportedDevice
	CodeInternalInconsistency
	CodeOutOfSpace
	CodeUnknown
)

// Sentinel errors. Failure sites wrap one of these with errors.Wrapf so callers
// can classify with errors.Is or CodeOf.
var (
	// ErrParamInvalid reports a malformed context description.
	ErrParamInvalid = errors.New("param invalid")
	// ErrUnsupportedDevice reports a feature the target device cannot run.
	ErrUnsupportedDevice = errors.New("unsupported device")
	// ErrInternalInconsistency reports a broken build contract, including out-of-phase calls.
	ErrInternalInconsistency = errors.New("internal inconsistency")
	// ErrOutOfSpace reports an exhausted table, tiling or blob budget.
	ErrOutOfSpace = errors.New("out of space")
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeParamInvalid:
		return "ParamInvalid"
	case CodeUnsupportedDevice:
		return "UnsupportedDevice"
	case CodeInternalInconsistency:
		return "InternalInconsistency"
	case CodeOutOfSpace:
		return "OutOfSpace"
	default:
		return "Unknown"
	}
}

// CodeOf returns the taxonomy code of err.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrParamInvalid):
		return CodeParamInvalid
	case errors.Is(err, ErrUnsupportedDevice):
		return CodeUnsupportedDevice
	case errors.Is(err, ErrInternalInconsistency):
		return CodeInternalInconsistency
	case errors.Is(err, ErrOutOfSpace):
		return CodeOutOfSpace
	default:
		return CodeUnknown
	}
}

// ParamInvalidf wraps ErrParamInvalid.
func ParamInvalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrParamInvalid, format, args...)
}

// Unsupportedf wraps ErrUnsupportedDevice.
func Unsupportedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupportedDevice, format, args...)
}

// Inconsistentf wraps ErrInternalInconsistency.
func Inconsistentf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInternalInconsistency, format, args...)
}

// OutOfSpacef wraps ErrOutOfSpace.
func OutOfSpacef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrOutOfSpace, format, args...)
}
