package transfers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/formats"
	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/requests"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// ErrNoBandwidth is returned when no alternate setting can carry the
// negotiated payload size.
var ErrNoBandwidth = fmt.Errorf("no alternate setting with enough bandwidth: %w", uvcerr.ErrNotSupported)

// PixFormat is the outcome of a format negotiation.
type PixFormat struct {
	FourCC       formats.FourCC
	Width        uint16
	Height       uint16
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   formats.Colorspace
}

// EffectivePacketSize decodes wMaxPacketSize of a high speed endpoint: bits
// 10..0 are the packet size and bits 12..11 the additional transactions per
// microframe.
func EffectivePacketSize(maxPacketSize uint16) int {
	return int(maxPacketSize&0x07ff) * (1 + int(maxPacketSize>>11&3))
}

type StreamOptions struct {
	Log zerolog.Logger
	// Name labels the stream in logs and metrics.
	Name string
	// Buffers is the number of reads kept in flight, NumBuffers when zero.
	Buffers int
	// Notify receives completed frames.
	Notify Notify
}

// Stream negotiates and runs one VideoStreaming interface.
type Stream struct {
	*formats.Stream

	client  *requests.Client
	uvc     descriptors.BinaryCodedDecimal
	alts    []*descriptors.Interface
	bulk    bool
	maxSize int
	opts    StreamOptions
	log     zerolog.Logger

	// mu is the state lock: format selection, endpoint parameters and
	// stream start.
	mu        sync.Mutex
	probe     descriptors.VideoProbeCommitControl
	format    *formats.Format
	frame     *formats.Frame
	defFormat *formats.Format
	defFrame  *formats.Frame
	endpoint  host.Endpoint
	pipeline  *Pipeline
}

// NewStream wraps the formats of one streaming interface. alts are every
// alternate setting of that interface.
func NewStream(fs *formats.Stream, client *requests.Client, uvc descriptors.BinaryCodedDecimal, alts []*descriptors.Interface, opts StreamOptions) *Stream {
	s := &Stream{
		Stream: fs,
		client: client,
		uvc:    uvc,
		alts:   alts,
		opts:   opts,
		log:    opts.Log,
	}
	for _, alt := range alts {
		ep, ok := alt.Endpoint(fs.Header.EndpointAddress)
		if !ok {
			continue
		}
		if host.TransferType(ep.AttributesBitmask&0x03) == host.TransferTypeBulk {
			s.bulk = true
		}
		s.maxSize = max(s.maxSize, EffectivePacketSize(ep.MaxPacketSize))
	}
	return s
}

// Bulk reports whether the stream uses a bulk endpoint.
func (s *Stream) Bulk() bool { return s.bulk }

// MaxPacketSize is the largest effective packet size over every alternate
// setting.
func (s *Stream) MaxPacketSize() int { return s.maxSize }

// Init selects the zero bandwidth setting and reads the device's current
// probe state to pick the default format and frame.
func (s *Stream) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Formats) == 0 {
		return fmt.Errorf("interface %d has no formats: %w", s.Interface, descriptors.ErrInvalidDescriptor)
	}
	if !s.bulk {
		if err := s.client.Host().SetInterface(s.Interface, 0); err != nil {
			return fmt.Errorf("interface %d: set alternate setting 0: %w", s.Interface, err)
		}
	}

	var probe descriptors.VideoProbeCommitControl
	if err := s.getProbe(ctx, requests.RequestCodeGetCur, &probe); err != nil {
		s.log.Debug().Err(err).Uint8("iface", s.Interface).Msg("[transfers] GET_CUR probe failed, trying GET_DEF")
		if err := s.getProbe(ctx, requests.RequestCodeGetDef, &probe); err != nil {
			s.log.Debug().Err(err).Uint8("iface", s.Interface).Msg("[transfers] GET_DEF probe failed")
			probe = descriptors.VideoProbeCommitControl{}
		}
	}

	format := s.FormatByIndex(probe.FormatIndex)
	if format == nil {
		format = s.Formats[0]
	}
	if len(format.Frames) == 0 {
		return fmt.Errorf("format %d has no frames: %w", format.Index, descriptors.ErrInvalidDescriptor)
	}
	frame := format.FrameByIndex(probe.FrameIndex)
	if frame == nil {
		frame = format.FrameByIndex(format.DefaultFrame)
	}
	if frame == nil {
		frame = format.Frames[0]
	}
	probe.FormatIndex = format.Index
	probe.FrameIndex = frame.Index
	if probe.FrameInterval == 0 {
		probe.FrameInterval = frame.DefaultInterval
	}

	s.probe = probe
	s.format, s.frame = format, frame
	s.defFormat, s.defFrame = format, frame
	s.log.Debug().Uint8("iface", s.Interface).Stringer("format", format.FourCC).
		Uint16("width", frame.Width).Uint16("height", frame.Height).Msg("[transfers] default format")
	return nil
}

// Current returns the selected format and frame.
func (s *Stream) Current() (*formats.Format, *formats.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format, s.frame
}

// Default returns the format and frame chosen at Init.
func (s *Stream) Default() (*formats.Format, *formats.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defFormat, s.defFrame
}

// Probe returns the negotiated streaming control block.
func (s *Stream) Probe() descriptors.VideoProbeCommitControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probe
}

// Endpoint returns the endpoint parameters chosen for the current format.
func (s *Stream) Endpoint() host.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *Stream) State() State {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return StateIdle
	}
	return p.State()
}

func (s *Stream) streaming() bool {
	return s.pipeline != nil && s.pipeline.State() != StateIdle
}

// TryFormat negotiates the format closest to req. With commit the result
// becomes the current selection.
func (s *Stream) TryFormat(ctx context.Context, req PixFormat, commit bool) (PixFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if commit && s.streaming() {
		return PixFormat{}, fmt.Errorf("set format while streaming: %w", uvcerr.ErrBusy)
	}

	format := s.FormatByFourCC(req.FourCC)
	if format == nil {
		format = s.defFormat
	}
	if format == nil {
		return PixFormat{}, fmt.Errorf("stream not initialized: %w", uvcerr.ErrInvalidArgument)
	}
	frame := format.ClosestFrame(req.Width, req.Height)
	if frame == nil {
		return PixFormat{}, fmt.Errorf("unsupported size %dx%d: %w", req.Width, req.Height, uvcerr.ErrInvalidArgument)
	}

	probe := descriptors.VideoProbeCommitControl{
		HintBitmask:   descriptors.ProbeHintFrameInterval,
		FormatIndex:   format.Index,
		FrameIndex:    frame.Index,
		FrameInterval: frame.SnapInterval(frame.DefaultInterval),
	}
	if err := s.probeVideo(ctx, &probe); err != nil {
		return PixFormat{}, err
	}
	if probe.MaxVideoFrameSize == 0 {
		probe.MaxVideoFrameSize = frame.MaxBufferSize
	}

	if commit {
		s.probe = probe
		s.format, s.frame = format, frame
		if err := s.initTransfer(); err != nil {
			return PixFormat{}, err
		}
	}
	return PixFormat{
		FourCC:       format.FourCC,
		Width:        frame.Width,
		Height:       frame.Height,
		BytesPerLine: format.BytesPerLine(frame.Width),
		SizeImage:    probe.MaxVideoFrameSize,
		Colorspace:   format.Colorspace,
	}, nil
}

// SetFrameInterval selects the supported interval closest to num/den
// seconds, possibly moving to a sibling frame of the same size, and returns
// the interval the device agreed to.
func (s *Stream) SetFrameInterval(ctx context.Context, num, den uint32) (formats.Fraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return formats.Fraction{}, fmt.Errorf("stream not initialized: %w", uvcerr.ErrInvalidArgument)
	}
	if s.streaming() {
		return formats.Fraction{}, fmt.Errorf("set interval while streaming: %w", uvcerr.ErrBusy)
	}

	interval := formats.FractionInterval(num, den)
	s.log.Debug().Uint32("num", num).Uint32("den", den).Uint32("interval", uint32(interval)).Msg("[transfers] set frame interval")

	frame := s.frame
	probe := s.probe
	probe.FrameInterval = frame.SnapInterval(interval)
	best := absDiff(probe.FrameInterval, interval)
	for _, candidate := range s.format.Frames {
		if best == 0 {
			break
		}
		if candidate == s.frame || candidate.Width != s.frame.Width || candidate.Height != s.frame.Height {
			continue
		}
		iv := candidate.SnapInterval(interval)
		if d := absDiff(iv, interval); d < best {
			frame, best = candidate, d
			probe.FrameIndex = candidate.Index
			probe.FrameInterval = iv
		}
	}

	if err := s.probeVideo(ctx, &probe); err != nil {
		return formats.Fraction{}, err
	}
	if probe.MaxVideoFrameSize == 0 {
		probe.MaxVideoFrameSize = frame.MaxBufferSize
	}
	s.probe = probe
	s.frame = frame
	if err := s.initTransfer(); err != nil {
		return formats.Fraction{}, err
	}
	return formats.IntervalFraction(probe.FrameInterval), nil
}

func absDiff(a, b formats.Interval) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

// probeVideo runs the PROBE half of the negotiation on probe in place.
func (s *Stream) probeVideo(ctx context.Context, probe *descriptors.VideoProbeCommitControl) error {
	var lo, hi descriptors.VideoProbeCommitControl
	if err := s.getProbe(ctx, requests.RequestCodeGetMin, &lo); err != nil {
		return err
	}
	if err := s.getProbe(ctx, requests.RequestCodeGetMax, &hi); err != nil {
		return err
	}
	probe.CompQuality = hi.CompQuality

	for i := 0; i < 2; i++ {
		if err := s.setControl(ctx, requests.VideoStreamingSelectorProbe, probe); err != nil {
			return err
		}
		if err := s.getProbe(ctx, requests.RequestCodeGetCur, probe); err != nil {
			return err
		}
		if len(s.alts) == 1 {
			break
		}
		if int(probe.MaxPayloadTransferSize) <= s.maxSize {
			break
		}
		s.log.Debug().Uint32("payload", probe.MaxPayloadTransferSize).Int("max", s.maxSize).
			Msg("[transfers] payload exceeds bandwidth, lowering quality")
		probe.KeyFrameRate = lo.KeyFrameRate
		probe.PFrameRate = lo.PFrameRate
		probe.CompQuality = hi.CompQuality
		probe.CompWindowSize = lo.CompWindowSize
	}
	return nil
}

// Commit sends the negotiated block to COMMIT.
func (s *Stream) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx)
}

func (s *Stream) commit(ctx context.Context) error {
	return s.setControl(ctx, requests.VideoStreamingSelectorCommit, &s.probe)
}

func (s *Stream) getProbe(ctx context.Context, code requests.RequestCode, probe *descriptors.VideoProbeCommitControl) error {
	buf := make([]byte, descriptors.ProbeSize(s.uvc))
	if err := s.client.Query(ctx, code, 0, s.Interface, uint8(requests.VideoStreamingSelectorProbe), buf); err != nil {
		return fmt.Errorf("%s probe: %w", code, err)
	}
	return probe.UnmarshalBinary(buf)
}

func (s *Stream) setControl(ctx context.Context, sel requests.VideoStreamingSelector, probe *descriptors.VideoProbeCommitControl) error {
	buf := make([]byte, descriptors.ProbeSize(s.uvc))
	if err := probe.MarshalInto(buf); err != nil {
		return err
	}
	if err := s.client.Query(ctx, requests.RequestCodeSetCur, 0, s.Interface, uint8(sel), buf); err != nil {
		return fmt.Errorf("SET_CUR selector %d: %w", sel, err)
	}
	return nil
}

// initTransfer picks the endpoint for the negotiated block. Isochronous
// streams take the smallest alternate setting that fits
// dwMaxPayloadTransferSize; setting 0 carries no bandwidth and is skipped.
func (s *Stream) initTransfer() error {
	addr := s.Header.EndpointAddress
	need := int(s.probe.MaxPayloadTransferSize)

	if s.bulk {
		for _, alt := range s.alts {
			ep, ok := alt.Endpoint(addr)
			if !ok {
				continue
			}
			size := need
			if size == 0 {
				size = EffectivePacketSize(ep.MaxPacketSize)
			}
			s.endpoint = host.Endpoint{
				Interface:        s.Interface,
				AlternateSetting: alt.AlternateSetting,
				Address:          addr,
				Type:             host.TransferTypeBulk,
				PacketSize:       size,
			}
			return nil
		}
		return fmt.Errorf("endpoint %#02x not found: %w", addr, descriptors.ErrInvalidDescriptor)
	}

	var best *descriptors.Interface
	bestSize := 0
	for _, alt := range s.alts {
		if alt.AlternateSetting == 0 {
			continue
		}
		ep, ok := alt.Endpoint(addr)
		if !ok {
			continue
		}
		size := EffectivePacketSize(ep.MaxPacketSize)
		if size < need {
			continue
		}
		if best == nil || size < bestSize {
			best, bestSize = alt, size
		}
	}
	if best == nil {
		return fmt.Errorf("interface %d needs %d bytes per packet: %w", s.Interface, need, ErrNoBandwidth)
	}
	s.endpoint = host.Endpoint{
		Interface:        s.Interface,
		AlternateSetting: best.AlternateSetting,
		Address:          addr,
		Type:             host.TransferTypeIsochronous,
		PacketSize:       bestSize,
	}
	s.log.Debug().Uint8("iface", s.Interface).Uint8("alt", best.AlternateSetting).Int("size", bestSize).
		Msg("[transfers] selected alternate setting")
	return nil
}

// SetBuf queues dst for the next frame and starts the stream when idle.
// dst must hold at least twice width times height of the current frame.
func (s *Stream) SetBuf(ctx context.Context, dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return fmt.Errorf("stream not initialized: %w", uvcerr.ErrInvalidArgument)
	}
	if need := 2 * int(s.frame.Width) * int(s.frame.Height); len(dst) < need {
		return fmt.Errorf("buffer is %d bytes, need %d: %w", len(dst), need, uvcerr.ErrInvalidArgument)
	}
	if s.pipeline != nil {
		switch s.pipeline.State() {
		case StateActive:
			s.pipeline.SetBuf(dst)
			return nil
		case StateCancelling:
			return fmt.Errorf("stream stopping: %w", uvcerr.ErrBusy)
		}
	}
	return s.start(ctx, dst)
}

func (s *Stream) start(ctx context.Context, dst []byte) error {
	if err := s.initTransfer(); err != nil {
		return err
	}
	if err := s.commit(ctx); err != nil {
		return err
	}
	h := s.client.Host()
	if err := h.SetInterface(s.Interface, s.endpoint.AlternateSetting); err != nil {
		return fmt.Errorf("interface %d: set alternate setting %d: %w", s.Interface, s.endpoint.AlternateSetting, err)
	}
	pipe, err := h.OpenPipe(s.endpoint)
	if err != nil {
		s.resetAlt()
		return fmt.Errorf("open endpoint %#02x: %w", s.endpoint.Address, err)
	}
	if s.pipeline == nil || s.pipeline.BufferSize() != s.endpoint.PacketSize {
		s.pipeline = NewPipeline(s.opts.Name, s.opts.Buffers, s.endpoint.PacketSize, s.log)
	}
	if err := s.pipeline.Start(pipe, dst, s.opts.Notify); err != nil {
		s.resetAlt()
		return err
	}
	return nil
}

// Cancel stops streaming and returns the interface to zero bandwidth.
func (s *Stream) Cancel() error {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	// the worker may be inside Notify calling SetBuf, so the state lock is
	// not held while waiting for it
	err := p.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.State() == StateIdle {
		s.resetAlt()
	}
	return err
}

func (s *Stream) resetAlt() {
	if s.bulk {
		return
	}
	if err := s.client.Host().SetInterface(s.Interface, 0); err != nil {
		s.log.Debug().Err(err).Uint8("iface", s.Interface).Msg("[transfers] reset alternate setting failed")
	}
}
