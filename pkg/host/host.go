// Package host defines the boundary between the UVC driver and the USB host
// controller that moves bytes on the bus.
package host

import (
	"context"
	"errors"
	"fmt"
)

// ErrStall is returned by a control transfer that the device answered with a
// protocol STALL handshake.
var ErrStall = errors.New("endpoint stalled")

// ErrCancelled is reported to a completion callback for a read flushed by
// Pipe.Close.
var ErrCancelled = errors.New("transfer cancelled")

type TransferType uint8

const (
	TransferTypeControl     TransferType = 0
	TransferTypeIsochronous TransferType = 1
	TransferTypeBulk        TransferType = 2
	TransferTypeInterrupt   TransferType = 3
)

func (t TransferType) String() string {
	switch t {
	case TransferTypeControl:
		return "control"
	case TransferTypeIsochronous:
		return "isochronous"
	case TransferTypeBulk:
		return "bulk"
	case TransferTypeInterrupt:
		return "interrupt"
	}
	return fmt.Sprintf("TransferType(%d)", uint8(t))
}

// Endpoint describes the endpoint a Pipe is opened on.
type Endpoint struct {
	Interface        uint8
	AlternateSetting uint8
	Address          uint8
	Type             TransferType
	// PacketSize is the number of bytes a single read may return.
	PacketSize int
}

// Controller is the synchronous control plane of one attached device.
type Controller interface {
	// ControlTransfer issues a transfer on the default control pipe and returns
	// the number of bytes moved. A stalled request returns an error wrapping
	// ErrStall.
	ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error)

	// SetInterface selects an alternate setting of an interface.
	SetInterface(iface, alt uint8) error

	// OpenPipe allocates a data endpoint for asynchronous reads.
	OpenPipe(ep Endpoint) (Pipe, error)
}

// Pipe is an allocated data endpoint.
type Pipe interface {
	// Submit queues an asynchronous read into buf. done runs on the
	// controller's completion context once the read finishes; it must not
	// block.
	Submit(buf []byte, done func(n int, err error)) error

	// Close frees the endpoint. Every in-flight read has completed, or has been
	// reported with ErrCancelled, before Close returns.
	Close() error
}
