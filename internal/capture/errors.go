package capture

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceErrorKind classifies device acquisition failures.
type DeviceErrorKind string

const (
	DevicePermissionDenied DeviceErrorKind = "permission_denied"
	DeviceNotFound         DeviceErrorKind = "not_found"
	DeviceBusy             DeviceErrorKind = "busy"
	DeviceUnavailable      DeviceErrorKind = "unavailable"
)

// DeviceError is returned when a camera or microphone cannot be opened.
// It is recoverable by retrying or cancelling.
type DeviceError struct {
	Kind   DeviceErrorKind
	Facing Facing
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s (%s camera): %v", e.Kind, e.Facing, e.Err)
	}
	return fmt.Sprintf("device %s (%s camera)", e.Kind, e.Facing)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// UnsupportedFormatError means no container/codec pair in the preference
// list can be encoded. It is fatal for the current device.
type UnsupportedFormatError struct {
	Tried []string
	Err   error
}

func (e *UnsupportedFormatError) Error() string {
	msg := "no supported recording format (tried " + strings.Join(e.Tried, ", ") + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// StateError reports an operation that is illegal in the current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// ErrConfirmationRequired is returned by Discard without confirmation.
var ErrConfirmationRequired = errors.New("discard requires confirmation")
