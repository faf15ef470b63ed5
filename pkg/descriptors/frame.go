package descriptors

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Interval is a frame interval in 100 ns units.
type Interval uint32

func (i Interval) Duration() time.Duration {
	return time.Duration(i) * 100 * time.Nanosecond
}

// FormatDescriptor is implemented by the payload format descriptors the driver
// can stream.
type FormatDescriptor interface {
	StreamingInterface
	Index() uint8
	// FrameSubtype is the subtype of the frame descriptors that follow.
	FrameSubtype() VideoStreamingInterfaceDescriptorSubtype
}

// FrameDescriptor is the common layout of the uncompressed, MJPEG and frame
// based frame descriptors. The frame based variant has no
// dwMaxVideoFrameBufferSize and carries dwBytesPerLine instead.
type FrameDescriptor struct {
	Subtype                 VideoStreamingInterfaceDescriptorSubtype
	FrameIndex              uint8
	Capabilities            uint8
	Width, Height           uint16
	MinBitRate, MaxBitRate  uint32
	MaxVideoFrameBufferSize uint32
	DefaultFrameInterval    Interval
	BytesPerLine            uint32

	// FrameIntervalType is 0 for a continuous range, otherwise the number of
	// discrete intervals.
	FrameIntervalType uint8
	// FrameIntervals is the discrete list, or min, max and step when
	// FrameIntervalType is 0. Zero entries are stored as 1.
	FrameIntervals []Interval
}

func (fd *FrameDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < 3 {
		return ErrInvalidDescriptor
	}
	subtype := VideoStreamingInterfaceDescriptorSubtype(buf[2])
	switch subtype {
	case VideoStreamingInterfaceDescriptorSubtypeFrameUncompressed,
		VideoStreamingInterfaceDescriptorSubtypeFrameMJPEG,
		VideoStreamingInterfaceDescriptorSubtypeFrameFrameBased:
	default:
		return fmt.Errorf("%w: subtype %#02x is not a frame", ErrInvalidDescriptor, buf[2])
	}
	if err := checkClassSpecific(buf, byte(subtype), 26); err != nil {
		return err
	}
	fd.Subtype = subtype
	fd.FrameIndex = buf[3]
	fd.Capabilities = buf[4]
	fd.Width = binary.LittleEndian.Uint16(buf[5:7])
	fd.Height = binary.LittleEndian.Uint16(buf[7:9])
	fd.MinBitRate = binary.LittleEndian.Uint32(buf[9:13])
	fd.MaxBitRate = binary.LittleEndian.Uint32(buf[13:17])
	if subtype == VideoStreamingInterfaceDescriptorSubtypeFrameFrameBased {
		fd.MaxVideoFrameBufferSize = 0
		fd.DefaultFrameInterval = Interval(binary.LittleEndian.Uint32(buf[17:21]))
		fd.FrameIntervalType = buf[21]
		fd.BytesPerLine = binary.LittleEndian.Uint32(buf[22:26])
	} else {
		fd.MaxVideoFrameBufferSize = binary.LittleEndian.Uint32(buf[17:21])
		fd.DefaultFrameInterval = Interval(binary.LittleEndian.Uint32(buf[21:25]))
		fd.FrameIntervalType = buf[25]
		fd.BytesPerLine = 0
	}

	n := int(fd.FrameIntervalType)
	if n == 0 {
		// continuous: min, max, step
		n = 3
	}
	if err := need(buf, 26+4*n); err != nil {
		return err
	}
	fd.FrameIntervals = make([]Interval, n)
	for i := 0; i < n; i++ {
		v := Interval(binary.LittleEndian.Uint32(buf[26+4*i : 30+4*i]))
		if v == 0 {
			v = 1
		}
		fd.FrameIntervals[i] = v
	}
	return nil
}

func (fd *FrameDescriptor) isStreamingInterface() {}

// Continuous reports whether the frame declares a min, max, step range.
func (fd *FrameDescriptor) Continuous() bool {
	return fd.FrameIntervalType == 0
}
