package uvc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelindar/event"
)

// Event type ids for kelindar/event.
const (
	TypeFrame uint32 = iota + 1
	TypeFormat
	TypeDisconnect
)

type Event interface {
	Type() uint32
}

// FrameEvent reports a completed frame of Size bytes, or a stream failure
// in Err.
type FrameEvent struct {
	Device string
	Node   string
	Size   int
	Err    error
	Time   time.Time
}

func (e FrameEvent) Type() uint32 { return TypeFrame }

// FormatEvent reports a committed format or frame interval.
type FormatEvent struct {
	Device   string
	Node     string
	Format   PixFormat
	Interval Fraction
	Time     time.Time
}

func (e FormatEvent) Type() uint32 { return TypeFormat }

type DisconnectEvent struct {
	Device string
	Time   time.Time
}

func (e DisconnectEvent) Type() uint32 { return TypeDisconnect }

// Bus broadcasts device events. Handlers run on their own goroutine.
type Bus struct {
	dispatcher *event.Dispatcher
	closed     atomic.Bool
	// mu keeps subscriptions off a dispatcher that is shutting down
	mu sync.Mutex
}

// flush covers several of the dispatcher's delivery ticks, so events queued
// before Close still go out.
const flush = 10 * time.Millisecond

func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	switch e := ev.(type) {
	case FrameEvent:
		event.Publish(b.dispatcher, e)
	case FormatEvent:
		event.Publish(b.dispatcher, e)
	case DisconnectEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Close stops the dispatcher after one more delivery tick. Later publishes
// are dropped and later subscriptions receive nothing.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	time.AfterFunc(flush, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.dispatcher.Close()
	})
	return nil
}

// Subscribe registers fn for events of type T and returns the function
// that unsubscribes it.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return func() {}
	}
	return event.Subscribe(b.dispatcher, fn)
}
