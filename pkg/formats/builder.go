package formats

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
)

// Builder collects VideoStreaming descriptors in the order the device lists
// them. An input header opens a stream, formats attach to the latest stream
// and frames and color matching records to the latest format.
type Builder struct {
	log     zerolog.Logger
	streams []*Stream
}

func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log}
}

func (b *Builder) Streams() []*Stream {
	return b.streams
}

func (b *Builder) stream() (*Stream, error) {
	if len(b.streams) == 0 {
		return nil, fmt.Errorf("%w: format before input header", descriptors.ErrInvalidDescriptor)
	}
	return b.streams[len(b.streams)-1], nil
}

func (b *Builder) format() (*Format, error) {
	s, err := b.stream()
	if err != nil {
		return nil, err
	}
	if len(s.Formats) == 0 {
		return nil, fmt.Errorf("%w: frame before format on interface %d", descriptors.ErrInvalidDescriptor, s.Interface)
	}
	return s.Formats[len(s.Formats)-1], nil
}

func (b *Builder) addFormat(f *Format) error {
	s, err := b.stream()
	if err != nil {
		return err
	}
	s.Formats = append(s.Formats, f)
	b.log.Debug().Uint8("iface", s.Interface).Uint8("index", f.Index).Str("name", f.Name).Msg("[formats] format")
	return nil
}

// Add consumes one decoded descriptor of interface iface.
func (b *Builder) Add(iface uint8, desc descriptors.StreamingInterface) error {
	switch d := desc.(type) {
	case *descriptors.InputHeaderDescriptor:
		b.streams = append(b.streams, &Stream{Interface: iface, Header: *d})

	case *descriptors.UncompressedFormatDescriptor:
		cf, _ := LookupGUID(d.GUIDFormat)
		return b.addFormat(&Format{
			Index:        d.FormatIndex,
			Subtype:      descriptors.VideoStreamingInterfaceDescriptorSubtypeFormatUncompressed,
			GUID:         d.GUIDFormat,
			FourCC:       cf.FourCC,
			Name:         cf.Name,
			BitsPerPixel: d.BitsPerPixel,
			DefaultFrame: d.DefaultFrameIndex,
			frameSubtype: d.FrameSubtype(),
		})

	case *descriptors.FrameBasedFormatDescriptor:
		cf, _ := LookupGUID(d.GUIDFormat)
		return b.addFormat(&Format{
			Index:        d.FormatIndex,
			Subtype:      descriptors.VideoStreamingInterfaceDescriptorSubtypeFormatFrameBased,
			GUID:         d.GUIDFormat,
			FourCC:       cf.FourCC,
			Name:         cf.Name,
			BitsPerPixel: d.BitsPerPixel,
			Compressed:   d.VariableSize,
			DefaultFrame: d.DefaultFrameIndex,
			frameSubtype: d.FrameSubtype(),
		})

	case *descriptors.MJPEGFormatDescriptor:
		return b.addFormat(&Format{
			Index:        d.FormatIndex,
			Subtype:      descriptors.VideoStreamingInterfaceDescriptorSubtypeFormatMJPEG,
			FourCC:       FourCCMJPEG,
			Name:         CompressionFormatMJPEG.Name,
			Compressed:   true,
			DefaultFrame: d.DefaultFrameIndex,
			frameSubtype: d.FrameSubtype(),
		})

	case *descriptors.FrameDescriptor:
		f, err := b.format()
		if err != nil {
			return err
		}
		if d.Subtype != f.frameSubtype {
			b.log.Debug().Uint8("format", f.Index).Uint8("frame", d.FrameIndex).Msg("[formats] frame subtype does not match format, skipped")
			return nil
		}
		f.Frames = append(f.Frames, newFrame(f, d))

	case *descriptors.ColorMatchingDescriptor:
		f, err := b.format()
		if err != nil {
			return err
		}
		f.Colorspace = ColorspaceFromPrimaries(d.ColorPrimaries)
	}
	return nil
}

func newFrame(f *Format, d *descriptors.FrameDescriptor) *Frame {
	frame := &Frame{
		Index:         d.FrameIndex,
		Width:         d.Width,
		Height:        d.Height,
		MaxBufferSize: d.MaxVideoFrameBufferSize,
		BytesPerLine:  d.BytesPerLine,
		Stepwise:      d.Continuous(),
		Intervals:     append([]Interval(nil), d.FrameIntervals...),
	}
	if !f.Compressed {
		frame.MaxBufferSize = uint32(uint64(f.BitsPerPixel) * uint64(d.Width) * uint64(d.Height) / 8)
	}
	frame.DefaultInterval = min(frame.MaxInterval(), max(frame.MinInterval(), d.DefaultFrameInterval))
	return frame
}

// Parse builds the streams of every VideoStreaming interface in cfg.
func Parse(cfg *descriptors.Configuration, log zerolog.Logger) ([]*Stream, error) {
	b := NewBuilder(log)
	for _, intf := range cfg.Interfaces {
		if !intf.IsVideoStreaming() {
			continue
		}
		for _, raw := range intf.ClassSpecific {
			desc, err := descriptors.UnmarshalStreamingInterface(raw)
			if err != nil {
				return nil, fmt.Errorf("interface %d: %w", intf.Number, err)
			}
			if desc == nil {
				log.Trace().Uint8("iface", intf.Number).Uint8("subtype", raw[2]).Msg("[formats] skipped descriptor")
				continue
			}
			if err := b.Add(intf.Number, desc); err != nil {
				return nil, err
			}
		}
	}
	return b.Streams(), nil
}
