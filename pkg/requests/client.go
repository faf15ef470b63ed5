package requests

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/internal/metrics"
	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// DefaultTimeout bounds one control request.
const DefaultTimeout = 5 * time.Second

// ErrorCode is the value of the VC_REQUEST_ERROR_CODE_CONTROL after a stall.
type ErrorCode uint8

const (
	ErrorCodeNoError        ErrorCode = 0x00
	ErrorCodeNotReady       ErrorCode = 0x01
	ErrorCodeWrongState     ErrorCode = 0x02
	ErrorCodePower          ErrorCode = 0x03
	ErrorCodeOutOfRange     ErrorCode = 0x04
	ErrorCodeInvalidUnit    ErrorCode = 0x05
	ErrorCodeInvalidControl ErrorCode = 0x06
	ErrorCodeInvalidRequest ErrorCode = 0x07
	ErrorCodeInvalidValue   ErrorCode = 0x08
	ErrorCodeUnknown        ErrorCode = 0xff
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNoError:
		return "no_error"
	case ErrorCodeNotReady:
		return "not_ready"
	case ErrorCodeWrongState:
		return "wrong_state"
	case ErrorCodePower:
		return "power"
	case ErrorCodeOutOfRange:
		return "out_of_range"
	case ErrorCodeInvalidUnit:
		return "invalid_unit"
	case ErrorCodeInvalidControl:
		return "invalid_control"
	case ErrorCodeInvalidRequest:
		return "invalid_request"
	case ErrorCodeInvalidValue:
		return "invalid_value"
	}
	return "unknown"
}

// ProtocolError is a stalled control request together with the error code the
// device reported for it.
type ProtocolError struct {
	Request  RequestCode
	Unit     uint8
	Selector uint8
	Code     ErrorCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s unit %d selector %#02x: %s", e.Request, e.Unit, e.Selector, e.Code)
}

// Is maps the device error code onto the driver's error kinds.
func (e *ProtocolError) Is(target error) bool {
	switch e.Code {
	case ErrorCodeNotReady, ErrorCodeWrongState:
		return target == uvcerr.ErrBusy
	case ErrorCodeOutOfRange:
		return target == uvcerr.ErrRange
	case ErrorCodeInvalidUnit, ErrorCodeInvalidControl, ErrorCodeInvalidRequest, ErrorCodeInvalidValue:
		return target == uvcerr.ErrInvalidArgument
	}
	return target == uvcerr.ErrIO || target == host.ErrStall
}

// Client serializes class requests to one device. At most one control
// transfer is outstanding at a time.
type Client struct {
	host    host.Controller
	name    string
	timeout time.Duration
	log     zerolog.Logger

	mu sync.Mutex
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithName sets the device label used for metrics.
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

func NewClient(h host.Controller, opts ...ClientOption) *Client {
	c := &Client{host: h, timeout: DefaultTimeout, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the controller the client talks to.
func (c *Client) Host() host.Controller {
	return c.host
}

// Query issues one class request addressed at (unit, iface) with the given
// control selector. data must have the exact size of the control; a short
// transfer fails with uvcerr.ErrIO. A stall is resolved through the request
// error code control into a *ProtocolError.
func (c *Client) Query(ctx context.Context, code RequestCode, unit, iface, selector uint8, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	reqType := RequestTypeVideoInterfaceSetRequest
	if code.IsGet() {
		reqType = RequestTypeVideoInterfaceGetRequest
	}
	n, err := c.host.ControlTransfer(ctx, uint8(reqType), uint8(code), uint16(selector)<<8, uint16(unit)<<8|uint16(iface), data)
	if err == nil {
		if n != len(data) {
			return fmt.Errorf("%s unit %d selector %#02x: short transfer %d/%d: %w", code, unit, selector, n, len(data), uvcerr.ErrIO)
		}
		return nil
	}
	c.log.Debug().Err(err).Stringer("req", code).Uint8("unit", unit).Uint8("cs", selector).Msg("[requests] query failed")
	if !errors.Is(err, host.ErrStall) {
		return fmt.Errorf("%s unit %d selector %#02x: %w", code, unit, selector, err)
	}

	perr := &ProtocolError{Request: code, Unit: unit, Selector: selector, Code: ErrorCodeUnknown}
	status := make([]byte, 1)
	n, err = c.host.ControlTransfer(ctx, uint8(RequestTypeVideoInterfaceGetRequest), uint8(RequestCodeGetCur),
		uint16(VideoControlSelectorRequestErrorCode)<<8, uint16(iface), status)
	if err == nil && n == 1 {
		perr.Code = ErrorCode(status[0])
	}
	metrics.ControlError(c.name, perr.Code.String())
	c.log.Debug().Stringer("code", perr.Code).Msg("[requests] control error")
	return perr
}

// ReadConfigDescriptor fetches the complete active configuration descriptor.
func ReadConfigDescriptor(ctx context.Context, h host.Controller) ([]byte, error) {
	head := make([]byte, 9)
	n, err := h.ControlTransfer(ctx, uint8(RequestTypeStandardDeviceGetRequest), standardRequestGetDescriptor,
		descriptorTypeConfiguration<<8, 0, head)
	if err != nil {
		return nil, fmt.Errorf("get configuration descriptor: %w", err)
	}
	if n < 4 {
		return nil, fmt.Errorf("configuration descriptor header is %d bytes: %w", n, uvcerr.ErrIO)
	}
	total := int(binary.LittleEndian.Uint16(head[2:4]))
	buf := make([]byte, total)
	n, err = h.ControlTransfer(ctx, uint8(RequestTypeStandardDeviceGetRequest), standardRequestGetDescriptor,
		descriptorTypeConfiguration<<8, 0, buf)
	if err != nil {
		return nil, fmt.Errorf("get configuration descriptor: %w", err)
	}
	return buf[:n], nil
}
