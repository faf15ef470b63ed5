// Package hosttest provides an in-memory host.Controller for tests. Control
// requests are answered from a register file keyed by (request, wValue,
// wIndex); a SET_CUR stores its payload so a following GET_CUR returns it.
// Pipe reads stay pending until the test completes them.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kevmo314/go-uvchost/pkg/host"
)

const (
	setCur = 0x01
	getCur = 0x81
)

type key struct {
	request uint8
	value   uint16
	index   uint16
}

// Call is one recorded control transfer.
type Call struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Data        []byte
}

type Controller struct {
	mu        sync.Mutex
	registers map[key][]byte
	stalls    map[key]bool
	rewrites  map[key]func([]byte) []byte
	calls     []Call
	alts      map[uint8]uint8
	pipes     []*Pipe

	// Err, when set, fails every control transfer.
	Err error
	// OpenErr, when set, fails OpenPipe.
	OpenErr error
}

func NewController() *Controller {
	return &Controller{
		registers: make(map[key][]byte),
		stalls:    make(map[key]bool),
		rewrites:  make(map[key]func([]byte) []byte),
		alts:      make(map[uint8]uint8),
	}
}

// Set stores the response returned for request at (value, index).
func (c *Controller) Set(request uint8, value, index uint16, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registers[key{request, value, index}] = append([]byte(nil), data...)
}

// Register returns the bytes stored for request at (value, index).
func (c *Controller) Register(request uint8, value, index uint16) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.registers[key{request, value, index}]...)
}

// Stall makes request at (value, index) answer with a STALL.
func (c *Controller) Stall(request uint8, value, index uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalls[key{request, value, index}] = true
}

func (c *Controller) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Data:        append([]byte(nil), data...),
	})
	if c.Err != nil {
		return 0, c.Err
	}
	k := key{request, value, index}
	if c.stalls[k] {
		return 0, fmt.Errorf("request %#02x: %w", request, host.ErrStall)
	}
	if requestType&0x80 == 0 {
		c.registers[k] = append([]byte(nil), data...)
		if request == setCur {
			stored := append([]byte(nil), data...)
			if fn := c.rewrites[k]; fn != nil {
				stored = fn(stored)
			}
			c.registers[key{getCur, value, index}] = stored
		}
		return len(data), nil
	}
	resp, ok := c.registers[k]
	if !ok {
		return 0, fmt.Errorf("request %#02x value %#04x index %#04x: %w", request, value, index, host.ErrStall)
	}
	return copy(data, resp), nil
}

// Rewrite makes a SET_CUR at (value, index) store fn(payload) for the
// following GET_CUR, the way a device adjusts a probe it was sent.
func (c *Controller) Rewrite(value, index uint16, fn func([]byte) []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewrites[key{setCur, value, index}] = fn
}

// Calls returns every control transfer seen so far.
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Count returns how many control transfers used request.
func (c *Controller) Count(request uint8) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Request == request {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *Controller) SetInterface(iface, alt uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alts[iface] = alt
	return nil
}

// AltSetting returns the alternate setting last selected on iface.
func (c *Controller) AltSetting(iface uint8) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alts[iface]
}

func (c *Controller) OpenPipe(ep host.Endpoint) (host.Pipe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	p := &Pipe{Endpoint: ep}
	c.pipes = append(c.pipes, p)
	return p, nil
}

// Pipes returns every pipe opened so far.
func (c *Controller) Pipes() []*Pipe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Pipe(nil), c.pipes...)
}

// OpenPipes returns the pipes that have not been closed.
func (c *Controller) OpenPipes() []*Pipe {
	var open []*Pipe
	for _, p := range c.Pipes() {
		if !p.Closed() {
			open = append(open, p)
		}
	}
	return open
}

type read struct {
	buf  []byte
	done func(int, error)
}

// Pipe holds submitted reads until Complete or Close.
type Pipe struct {
	Endpoint host.Endpoint

	mu      sync.Mutex
	pending []read
	closed  bool
	submits int
}

var errClosed = errors.New("pipe closed")

func (p *Pipe) Submit(buf []byte, done func(int, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.pending = append(p.pending, read{buf, done})
	p.submits++
	return nil
}

// Pending returns the number of reads in flight.
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Submits returns the total number of reads submitted.
func (p *Pipe) Submits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

// Complete finishes the i-th pending read with data, running its callback on
// the calling goroutine.
func (p *Pipe) Complete(i int, data []byte) error {
	p.mu.Lock()
	if i < 0 || i >= len(p.pending) {
		p.mu.Unlock()
		return fmt.Errorf("no pending read %d", i)
	}
	r := p.pending[i]
	p.pending = append(p.pending[:i], p.pending[i+1:]...)
	p.mu.Unlock()
	n := copy(r.buf, data)
	r.done(n, nil)
	return nil
}

// Fail finishes the i-th pending read with err.
func (p *Pipe) Fail(i int, err error) error {
	p.mu.Lock()
	if i < 0 || i >= len(p.pending) {
		p.mu.Unlock()
		return fmt.Errorf("no pending read %d", i)
	}
	r := p.pending[i]
	p.pending = append(p.pending[:i], p.pending[i+1:]...)
	p.mu.Unlock()
	r.done(0, err)
	return nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, r := range pending {
		r.done(0, host.ErrCancelled)
	}
	return nil
}

func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
