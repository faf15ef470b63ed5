// Package uvc drives a USB Video Class camera through a host.Controller.
//
// Connect parses the configuration descriptor, builds the video chains and
// their controls, and negotiates a default format on every streaming
// interface. Each streaming interface linked to a chain becomes a Node with a
// V4L2 style API; the first node is embedded in Device.
package uvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/internal/metrics"
	"github.com/kevmo314/go-uvchost/pkg/controls"
	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/formats"
	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/requests"
	"github.com/kevmo314/go-uvchost/pkg/topology"
	"github.com/kevmo314/go-uvchost/pkg/transfers"
)

type Options struct {
	Log zerolog.Logger
	// Name labels the device in logs, metrics and events.
	Name string
	// Descriptors is the raw configuration descriptor. It is read from the
	// device when nil.
	Descriptors []byte
	// Extensions describes vendor controls on extension units.
	Extensions []controls.Extension
	// Buffers is the number of reads kept in flight per stream.
	Buffers int
	// Timeout bounds every class request, requests.DefaultTimeout when zero.
	Timeout time.Duration
	// Notify receives the completed frames of every node. It runs on the
	// stream worker: it may call SetBuf but must not call Cancel or Close.
	Notify func(n *Node, size int, err error)
}

// Chain is a video chain with the controls of its entities.
type Chain struct {
	*topology.Chain
	Controls *controls.Chain
}

type Device struct {
	*Node

	name   string
	log    zerolog.Logger
	host   host.Controller
	client *requests.Client
	config *descriptors.Configuration
	graph  *topology.Graph
	chains []*Chain
	nodes  []*Node
	bus    *Bus
	refs   *refs
	// closer releases the host controller after teardown.
	closer io.Closer

	disconnected atomic.Bool
}

// Connect binds a UVC function reachable through h. A malformed descriptor
// fails the connect; chains that do not resolve are dropped, and the connect
// only fails when no streaming interface is left.
func Connect(ctx context.Context, h host.Controller, opts Options) (*Device, error) {
	return connectWith(ctx, h, opts, nil)
}

// connectWith is Connect for a device that owns closer. A failed connect
// releases everything registered so far, closer included.
func connectWith(ctx context.Context, h host.Controller, opts Options, closer io.Closer) (_ *Device, err error) {
	name := opts.Name
	if name == "" {
		name = "uvc"
	}
	log := opts.Log.With().Str("dev", name).Logger()

	clientOpts := []requests.ClientOption{requests.WithLogger(log), requests.WithName(name)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, requests.WithTimeout(opts.Timeout))
	}
	d := &Device{
		name:   name,
		log:    log,
		host:   h,
		client: requests.NewClient(h, clientOpts...),
		bus:    NewBus(),
		closer: closer,
	}
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	raw := opts.Descriptors
	if raw == nil {
		if raw, err = requests.ReadConfigDescriptor(ctx, h); err != nil {
			return nil, err
		}
	}
	cfg, err := descriptors.ParseConfiguration(raw)
	if err != nil {
		return nil, err
	}
	d.config = cfg

	vc := cfg.VideoControl()
	if vc == nil {
		return nil, fmt.Errorf("%w: no video control interface", descriptors.ErrInvalidDescriptor)
	}
	if d.graph, err = topology.FromDescriptors(vc, log); err != nil {
		return nil, err
	}
	chains, err := topology.Build(d.graph, log)
	if err != nil {
		return nil, err
	}
	for _, tc := range chains {
		cc := controls.New(tc, d.client, vc.Number, controls.Options{Log: log, Extensions: opts.Extensions})
		if err := cc.Init(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", tc, err)
		}
		d.chains = append(d.chains, &Chain{Chain: tc, Controls: cc})
	}

	streams, err := formats.Parse(cfg, log)
	if err != nil {
		return nil, err
	}
	for _, fs := range streams {
		chain := d.chainFor(fs.Header.TerminalLink)
		if chain == nil {
			log.Warn().Uint8("iface", fs.Interface).Uint8("terminal", fs.Header.TerminalLink).Msg("[uvc] streaming interface not linked to any chain")
			continue
		}
		n := &Node{dev: d, chain: chain, name: fmt.Sprintf("%s/%d", name, fs.Interface), notify: opts.Notify}
		n.stream = transfers.NewStream(fs, d.client, d.graph.UVC, cfg.AltSettings(fs.Interface), transfers.StreamOptions{
			Log:     log.With().Uint8("iface", fs.Interface).Logger(),
			Name:    n.name,
			Buffers: opts.Buffers,
			Notify:  n.frameDone,
		})
		if err := n.stream.Init(ctx); err != nil {
			return nil, fmt.Errorf("streaming interface %d: %w", fs.Interface, err)
		}
		d.nodes = append(d.nodes, n)
	}
	if len(d.nodes) == 0 {
		return nil, fmt.Errorf("%w: no streaming interface linked to a chain", topology.ErrNoChain)
	}
	d.Node = d.nodes[0]
	d.refs = newRefs(d.teardown)

	log.Info().Stringer("uvc", d.graph.UVC).Int("chains", len(d.chains)).Int("streams", len(d.nodes)).Msg("[uvc] device connected")
	return d, nil
}

// chainFor returns the chain whose streaming terminal has the given id.
func (d *Device) chainFor(terminal uint8) *Chain {
	for _, c := range d.chains {
		for _, e := range c.Streaming() {
			if e.ID == terminal {
				return c
			}
		}
	}
	return nil
}

func (d *Device) Name() string { return d.name }

// UVC is the class version the device implements.
func (d *Device) UVC() descriptors.BinaryCodedDecimal { return d.graph.UVC }

func (d *Device) Config() *descriptors.Configuration { return d.config }

func (d *Device) Chains() []*Chain { return d.chains }

// Nodes lists one node per streaming interface, in descriptor order.
func (d *Device) Nodes() []*Node { return d.nodes }

// Bus carries FrameEvent, FormatEvent and DisconnectEvent.
func (d *Device) Bus() *Bus { return d.bus }

func (d *Device) Disconnected() bool { return d.disconnected.Load() }

// Done is closed once the device is torn down, after Disconnect and the
// last Close.
func (d *Device) Done() <-chan struct{} { return d.refs.done }

// Resume writes back the controls the device forgets across a suspend.
func (d *Device) Resume(ctx context.Context) error {
	if d.Disconnected() {
		return ErrNoDevice
	}
	var errs []error
	for _, c := range d.chains {
		if err := c.Controls.RestoreOnResume(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect marks the device gone and stops every stream. Open nodes keep
// the device alive until they are closed; later calls fail with ErrNoDevice.
func (d *Device) Disconnect() {
	if !d.disconnected.CompareAndSwap(false, true) {
		return
	}
	d.log.Info().Msg("[uvc] device disconnected")
	for _, n := range d.nodes {
		if err := n.stream.Cancel(); err != nil {
			d.log.Debug().Err(err).Str("node", n.name).Msg("[uvc] cancel on disconnect")
		}
	}
	d.bus.Publish(DisconnectEvent{Device: d.name, Time: time.Now()})
	d.refs.put()
}

// lost disconnects the device when err says it is gone.
func (d *Device) lost(err error) error {
	if errors.Is(err, ErrNoDevice) {
		go d.Disconnect()
	}
	return err
}

func (d *Device) teardown() {
	d.release()
	d.log.Debug().Msg("[uvc] device released")
}

func (d *Device) release() {
	for _, n := range d.nodes {
		metrics.Delete(n.name)
	}
	metrics.Delete(d.name)
	d.bus.Close()
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			d.log.Debug().Err(err).Msg("[uvc] close host controller")
		}
	}
}

// refs counts the users of a device. The connection holds the first
// reference; the last release runs teardown on its own goroutine so that it
// never runs on a completion callback.
type refs struct {
	mu       sync.Mutex
	n        int
	teardown func()
	done     chan struct{}
}

func newRefs(teardown func()) *refs {
	return &refs{n: 1, teardown: teardown, done: make(chan struct{})}
}

// get takes a reference unless teardown has started.
func (r *refs) get() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return false
	}
	r.n++
	return true
}

func (r *refs) put() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return
	}
	r.n--
	if r.n == 0 {
		go func() {
			r.teardown()
			close(r.done)
		}()
	}
}
