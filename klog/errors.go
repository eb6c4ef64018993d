package klog

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportError wraps a failed USB control transfer. The exchange engine
// treats every TransportError the same way regardless of which transport
// call produced it: back off 5s and retry from the top of the loop.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("klog: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: errors.WithStack(err)}
}

// BadResponseError means a response frame's length didn't match what its
// response-type byte promised.
type BadResponseError struct {
	RespType byte
	Got      int
	Want     int
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("klog: bad response: type %#x length %d (want %d)", e.RespType, e.Got, e.Want)
}

// UnknownDeviceIDError means a frame's DeviceID was neither the transceiver's
// own ID nor the 0xF0F0 pairing broadcast.
type UnknownDeviceIDError struct {
	DeviceID uint16
}

func (e *UnknownDeviceIDError) Error() string {
	return fmt.Sprintf("klog: frame from unknown device id %#04x", e.DeviceID)
}

// dataWrittenSignal is a control-flow signal, not an error: it tells the
// engine loop that a SetTime/SetConfig the driver pushed was acknowledged.
// It is returned (never panicked/raised) from response handlers.
type dataWrittenSignal struct{}

func (dataWrittenSignal) Error() string { return "klog: data written" }

// IsDataWritten reports whether err is the DATA_WRITTEN control-flow signal.
func IsDataWritten(err error) bool {
	_, ok := err.(dataWrittenSignal)
	return ok
}

var errDataWritten = dataWrittenSignal{}
