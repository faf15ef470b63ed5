package transfers

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/internal/metrics"
	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// NumBuffers is the default number of reads kept in flight per stream.
const NumBuffers = 8

type State int32

const (
	StateIdle State = iota
	StateActive
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCancelling:
		return "cancelling"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Buffer is one transfer buffer. It is owned by exactly one of the free
// channel, the filled channel or an in-flight read.
type Buffer struct {
	buf []byte
	n   int
	err error
}

// Notify reports a completed frame of n bytes, or a stream failure.
type Notify func(n int, err error)

// Pipeline reassembles payload transfers into frames. Completions only move
// buffers; a single worker goroutine parses headers and copies data into the
// destination set with SetBuf.
type Pipeline struct {
	name string
	log  zerolog.Logger

	// mu guards start and stop transitions. The worker never takes it.
	mu        sync.Mutex
	state     atomic.Int32
	cancelled atomic.Bool
	pipe      host.Pipe
	pool      []*Buffer
	free      chan *Buffer
	filled    chan *Buffer
	stop      chan struct{}
	done      chan struct{}

	// reqMu guards the destination and the reassembly state.
	reqMu    sync.Mutex
	dst      []byte
	offset   int
	fid      int
	midFrame bool
	skip     bool
	notify   Notify
}

// NewPipeline allocates count buffers of size bytes. name labels metrics.
func NewPipeline(name string, count, size int, log zerolog.Logger) *Pipeline {
	if count <= 0 {
		count = NumBuffers
	}
	p := &Pipeline{
		name:   name,
		log:    log,
		free:   make(chan *Buffer, count),
		filled: make(chan *Buffer, count),
		fid:    -1,
	}
	for i := 0; i < count; i++ {
		b := &Buffer{buf: make([]byte, size)}
		p.pool = append(p.pool, b)
		p.free <- b
	}
	return p
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// BufferSize is the size of every transfer buffer.
func (p *Pipeline) BufferSize() int {
	return len(p.pool[0].buf)
}

// Start submits every free buffer on pipe and starts the worker. The
// pipeline owns pipe from then on and closes it when stopping. Frames are
// written to dst; notify must not call Cancel.
func (p *Pipeline) Start(pipe host.Pipe, dst []byte, notify Notify) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != StateIdle {
		return fmt.Errorf("pipeline %s: %w", p.State(), uvcerr.ErrBusy)
	}

	p.reqMu.Lock()
	p.dst = dst
	p.offset = 0
	p.fid = -1
	p.midFrame = false
	p.skip = false
	p.notify = notify
	p.reqMu.Unlock()

	p.cancelled.Store(false)
	p.pipe = pipe
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.state.Store(int32(StateActive))

	for i := len(p.free); i > 0; i-- {
		b := <-p.free
		if err := pipe.Submit(b.buf, p.completion(b)); err != nil {
			p.free <- b
			p.log.Debug().Err(err).Str("dev", p.name).Msg("[transfers] initial submit failed")
			p.cancelled.Store(true)
			_ = pipe.Close()
			close(p.stop)
			close(p.done)
			p.shutdown()
			return fmt.Errorf("submit: %w", err)
		}
	}
	go p.run(pipe, p.stop, p.done)
	metrics.SetStreamActive(p.name, true)
	p.log.Debug().Str("dev", p.name).Int("buffers", len(p.pool)).Int("size", p.BufferSize()).Msg("[transfers] stream started")
	return nil
}

// SetBuf replaces the destination of the next frame. A frame already in
// progress is dropped rather than delivered in pieces.
func (p *Pipeline) SetBuf(dst []byte) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	p.dst = dst
	p.offset = 0
	p.skip = p.midFrame
}

// Cancel stops the stream. Once it returns no notification is delivered
// and every buffer is back on the free channel.
func (p *Pipeline) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != StateActive {
		return nil
	}
	p.state.Store(int32(StateCancelling))
	p.cancelled.Store(true)
	err := p.pipe.Close()
	close(p.stop)
	<-p.done
	p.shutdown()
	p.log.Debug().Str("dev", p.name).Msg("[transfers] stream cancelled")
	return err
}

// shutdown returns filled buffers to the free channel and enters idle.
func (p *Pipeline) shutdown() {
	p.cancelled.Store(true)
drain:
	for {
		select {
		case b := <-p.filled:
			p.free <- b
		default:
			break drain
		}
	}
	p.pipe = nil
	p.reqMu.Lock()
	p.dst = nil
	p.notify = nil
	p.reqMu.Unlock()
	p.state.Store(int32(StateIdle))
	metrics.SetStreamActive(p.name, false)
}

func (p *Pipeline) completion(b *Buffer) func(int, error) {
	return func(n int, err error) {
		b.n, b.err = n, err
		if p.cancelled.Load() {
			p.free <- b
			return
		}
		p.filled <- b
	}
}

func (p *Pipeline) run(pipe host.Pipe, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case b := <-p.filled:
			if !p.process(pipe, b) {
				return
			}
		}
	}
}

// process handles one completed read and resubmits its buffer. It returns
// false once the device is gone.
func (p *Pipeline) process(pipe host.Pipe, b *Buffer) bool {
	switch {
	case b.err == nil:
		p.decode(b.buf[:b.n])
	case errors.Is(b.err, host.ErrCancelled):
		p.free <- b
		return true
	case errors.Is(b.err, uvcerr.ErrNoDevice), errors.Is(b.err, uvcerr.ErrIO):
		p.free <- b
		p.lost(b.err)
		return false
	default:
		metrics.PacketDiscarded(p.name)
		p.log.Trace().Err(b.err).Str("dev", p.name).Msg("[transfers] read failed")
	}

	if p.cancelled.Load() {
		p.free <- b
		return true
	}
	if err := pipe.Submit(b.buf, p.completion(b)); err != nil {
		p.free <- b
		if p.cancelled.Load() {
			return true
		}
		p.lost(err)
		return false
	}
	return true
}

// lost reports a vanished device once and tears the stream down.
func (p *Pipeline) lost(err error) {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	p.log.Warn().Err(err).Str("dev", p.name).Msg("[transfers] device lost while streaming")
	p.reqMu.Lock()
	notify := p.notify
	p.reqMu.Unlock()
	if notify != nil {
		notify(0, fmt.Errorf("stream: %w: %w", uvcerr.ErrIO, err))
	}
	go p.Cancel()
}

// decode copies one payload into the destination.
func (p *Pipeline) decode(buf []byte) {
	if len(buf) == 0 {
		// isochronous microframes without data
		return
	}
	var pl Payload
	if err := pl.UnmarshalBinary(buf); err != nil {
		metrics.PacketDiscarded(p.name)
		p.log.Trace().Err(err).Str("dev", p.name).Msg("[transfers] bad payload header")
		return
	}

	p.reqMu.Lock()
	fid := 0
	if pl.FrameID() {
		fid = 1
	}
	if p.fid >= 0 && fid != p.fid {
		p.offset = 0
		p.skip = false
	}
	p.fid = fid
	p.midFrame = true

	if pl.Error() {
		if !p.skip {
			metrics.FrameDropped(p.name)
			p.log.Debug().Str("dev", p.name).Msg("[transfers] payload error bit set, frame dropped")
		}
		p.skip = true
		p.offset = 0
	}

	if !p.skip && p.dst == nil {
		p.skip = true
	}

	n, full := 0, false
	if !p.skip {
		m := copy(p.dst[p.offset:], pl.Data)
		p.offset += m
		metrics.PayloadBytes(p.name, m)
		full = m < len(pl.Data) || p.offset == len(p.dst)
		if pl.EndOfFrame() || full {
			n = p.offset
		}
	}

	var notify Notify
	if n > 0 {
		notify = p.notify
		p.dst = nil
		p.offset = 0
		// the remainder of an overflowing frame is not delivered
		p.skip = full && !pl.EndOfFrame()
	}
	if pl.EndOfFrame() {
		p.offset = 0
		p.skip = false
		p.midFrame = false
	}
	p.reqMu.Unlock()

	if notify != nil {
		metrics.FrameCompleted(p.name)
		notify(n, nil)
	}
}
