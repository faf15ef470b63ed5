// Package usbfs implements host.Controller on top of Linux usbfs through
// github.com/kevmo314/go-usb.
package usbfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	usb "github.com/kevmo314/go-usb"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// DefaultTimeout bounds a control transfer when the context has no deadline.
const DefaultTimeout = time.Second

type Device struct {
	fd     int
	handle *usb.DeviceHandle
	log    zerolog.Logger

	mu      sync.Mutex
	claimed []uint8
}

// Open opens a usbfs device node such as /dev/bus/usb/001/004.
func Open(path string, log zerolog.Logger) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, mapErrno(err))
	}
	d, err := Wrap(fd, log)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return d, nil
}

// Wrap takes ownership of an already opened usbfs file descriptor, as handed
// out by Android's UsbManager for example.
func Wrap(fd int, log zerolog.Logger) (*Device, error) {
	handle, err := usb.WrapSysDevice(fd)
	if err != nil {
		return nil, fmt.Errorf("wrap usbfs fd %d: %w", fd, mapErrno(err))
	}
	return &Device{fd: fd, handle: handle, log: log}, nil
}

// Claim detaches any kernel driver from each interface and claims it.
func (d *Device) Claim(ifaces ...uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, iface := range ifaces {
		if err := d.handle.DetachKernelDriver(iface); err != nil {
			// no driver bound is the common case
			d.log.Trace().Err(err).Uint8("iface", iface).Msg("[usbfs] detach kernel driver")
		}
		if err := d.handle.ClaimInterface(iface); err != nil {
			return fmt.Errorf("claim interface %d: %w", iface, mapErrno(err))
		}
		d.claimed = append(d.claimed, iface)
	}
	return nil
}

func (d *Device) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return 0, context.DeadlineExceeded
		}
	}
	n, err := d.handle.ControlTransfer(requestType, request, value, index, data, timeout)
	if err != nil {
		return n, mapErrno(err)
	}
	return n, nil
}

func (d *Device) SetInterface(iface, alt uint8) error {
	if err := d.handle.SetInterfaceAltSetting(iface, alt); err != nil {
		return fmt.Errorf("set interface %d alt %d: %w", iface, alt, mapErrno(err))
	}
	return nil
}

func (d *Device) OpenPipe(ep host.Endpoint) (host.Pipe, error) {
	switch ep.Type {
	case host.TransferTypeBulk:
		return &bulkPipe{handle: d.handle, ep: ep, active: make(map[*usb.AsyncBulkTransfer]struct{})}, nil
	case host.TransferTypeIsochronous:
		return &isoPipe{handle: d.handle, ep: ep}, nil
	}
	return nil, fmt.Errorf("%s endpoint %#02x: %w", ep.Type, ep.Address, uvcerr.ErrNotSupported)
}

// Close releases claimed interfaces and the device handle.
func (d *Device) Close() error {
	d.mu.Lock()
	claimed := d.claimed
	d.claimed = nil
	d.mu.Unlock()
	for _, iface := range claimed {
		if err := d.handle.ReleaseInterface(iface); err != nil {
			d.log.Debug().Err(err).Uint8("iface", iface).Msg("[usbfs] release interface")
		}
	}
	return d.handle.Close()
}

func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.EPIPE):
		return fmt.Errorf("%w: %w", host.ErrStall, err)
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ESHUTDOWN):
		return fmt.Errorf("%w: %w", uvcerr.ErrNoDevice, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %w", uvcerr.ErrBusy, err)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ECONNRESET):
		return fmt.Errorf("%w: %w", host.ErrCancelled, err)
	}
	return err
}

// bulkPipe keeps one AsyncBulkTransfer per outstanding read and recycles them.
type bulkPipe struct {
	handle *usb.DeviceHandle
	ep     host.Endpoint

	mu     sync.Mutex
	idle   []*usb.AsyncBulkTransfer
	active map[*usb.AsyncBulkTransfer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func (p *bulkPipe) Submit(buf []byte, done func(int, error)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return host.ErrCancelled
	}
	var t *usb.AsyncBulkTransfer
	if n := len(p.idle); n > 0 {
		t = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		var err error
		if t, err = p.handle.NewAsyncBulkTransfer(p.ep.Address, len(buf)); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("create bulk transfer: %w", mapErrno(err))
		}
	}
	p.active[t] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := t.Submit(); err != nil {
		p.mu.Lock()
		delete(p.active, t)
		p.idle = append(p.idle, t)
		p.mu.Unlock()
		p.wg.Done()
		return fmt.Errorf("submit bulk transfer: %w", mapErrno(err))
	}
	go func() {
		defer p.wg.Done()
		data, err := t.Wait()
		n := copy(buf, data)
		p.mu.Lock()
		delete(p.active, t)
		closed := p.closed
		if !closed {
			p.idle = append(p.idle, t)
		}
		p.mu.Unlock()
		if err != nil {
			err = mapErrno(err)
		} else if closed {
			err = host.ErrCancelled
		}
		done(n, err)
	}()
	return nil
}

func (p *bulkPipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	active := make([]*usb.AsyncBulkTransfer, 0, len(p.active))
	for t := range p.active {
		active = append(active, t)
	}
	p.idle = nil
	p.mu.Unlock()
	for _, t := range active {
		t.Cancel()
	}
	p.wg.Wait()
	return nil
}

// Isochronous transfers in flight per pipe and packets per transfer. Each
// packet carries at most one UVC payload.
const (
	isoTransfers = 8
	isoPackets   = 32
)

// isoPipe keeps a ring of multi-packet isochronous transfers running and hands
// every non-empty packet to the oldest waiting read, so one read still holds
// exactly one payload. Packets that arrive with no read waiting are dropped.
type isoPipe struct {
	handle *usb.DeviceHandle
	ep     host.Endpoint

	reads isoQueue

	mu      sync.Mutex
	ring    []*usb.IsochronousTransfer
	started bool
	closed  bool
	err     error
	wg      sync.WaitGroup
}

func (p *isoPipe) Submit(buf []byte, done func(int, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return host.ErrCancelled
	}
	if p.err != nil {
		return p.err
	}
	p.reads.push(buf, done)
	if p.started {
		return nil
	}
	if err := p.start(); err != nil {
		p.reads.drop()
		return err
	}
	return nil
}

// start submits the ring and runs its reaper. p.mu is held.
func (p *isoPipe) start() error {
	for i := 0; i < isoTransfers; i++ {
		tx, err := p.handle.NewIsochronousTransfer(p.ep.Address, isoPackets, p.ep.PacketSize)
		if err != nil {
			p.cancelRing()
			return fmt.Errorf("create isochronous transfer: %w", mapErrno(err))
		}
		if err := tx.Submit(); err != nil {
			p.cancelRing()
			return fmt.Errorf("submit isochronous transfer: %w", mapErrno(err))
		}
		p.ring = append(p.ring, tx)
	}
	p.started = true
	p.wg.Add(1)
	go p.reap()
	return nil
}

func (p *isoPipe) cancelRing() {
	for _, tx := range p.ring {
		tx.Cancel()
		tx.Wait()
	}
	p.ring = nil
}

// reap walks the ring in submission order.
func (p *isoPipe) reap() {
	defer p.wg.Done()
	for i := 0; ; i = (i + 1) % len(p.ring) {
		tx := p.ring[i]
		err := tx.Wait()
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			err = mapErrno(err)
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			p.reads.fail(err)
			return
		}
		for _, data := range tx.IsoPacketBufferSlices() {
			if len(data) > 0 {
				p.reads.deliver(data)
			}
		}
		p.mu.Lock()
		if !p.closed {
			err = tx.Submit()
		}
		p.mu.Unlock()
		if err != nil {
			err = fmt.Errorf("resubmit isochronous transfer: %w", mapErrno(err))
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			p.reads.fail(err)
			return
		}
	}
}

func (p *isoPipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ring := p.ring
	p.mu.Unlock()
	for _, tx := range ring {
		tx.Cancel()
	}
	p.wg.Wait()
	p.reads.fail(host.ErrCancelled)
	return nil
}

type isoRead struct {
	buf  []byte
	done func(int, error)
}

// isoQueue holds the reads waiting for a packet, oldest first. Callbacks run
// without the lock held so that they may submit again.
type isoQueue struct {
	mu    sync.Mutex
	reads []isoRead
}

func (q *isoQueue) push(buf []byte, done func(int, error)) {
	q.mu.Lock()
	q.reads = append(q.reads, isoRead{buf, done})
	q.mu.Unlock()
}

// drop forgets the newest read without completing it.
func (q *isoQueue) drop() {
	q.mu.Lock()
	if n := len(q.reads); n > 0 {
		q.reads = q.reads[:n-1]
	}
	q.mu.Unlock()
}

// deliver copies one packet into the oldest read and completes it. It
// reports false when no read was waiting.
func (q *isoQueue) deliver(data []byte) bool {
	q.mu.Lock()
	if len(q.reads) == 0 {
		q.mu.Unlock()
		return false
	}
	r := q.reads[0]
	q.reads = q.reads[1:]
	q.mu.Unlock()
	r.done(copy(r.buf, data), nil)
	return true
}

// fail completes every waiting read with err.
func (q *isoQueue) fail(err error) {
	q.mu.Lock()
	reads := q.reads
	q.reads = nil
	q.mu.Unlock()
	for _, r := range reads {
		r.done(0, err)
	}
}
