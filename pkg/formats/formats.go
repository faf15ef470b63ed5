// Package formats turns the VideoStreaming descriptors of a device into the
// formats, frame sizes and frame intervals it can stream.
package formats

import (
	"github.com/google/uuid"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
)

type Interval = descriptors.Interval

// Frame is one frame size of a Format.
type Frame struct {
	Index           uint8
	Width, Height   uint16
	MaxBufferSize   uint32
	BytesPerLine    uint32
	DefaultInterval Interval
	// Stepwise frames carry min, max and step in Intervals, discrete frames
	// the list of supported intervals.
	Stepwise  bool
	Intervals []Interval
}

// MinInterval and MaxInterval bound the intervals the frame accepts.
func (f *Frame) MinInterval() Interval { return f.Intervals[0] }

func (f *Frame) MaxInterval() Interval {
	if f.Stepwise {
		return f.Intervals[1]
	}
	return f.Intervals[len(f.Intervals)-1]
}

// SnapInterval returns the supported interval closest to iv. Discrete lists
// prefer the earlier entry on a tie; ranges round to the nearest step.
func (f *Frame) SnapInterval(iv Interval) Interval {
	if f.Stepwise {
		lo, hi, step := f.Intervals[0], f.Intervals[1], f.Intervals[2]
		if iv <= lo {
			return lo
		}
		snapped := uint64(lo) + (uint64(iv-lo)+uint64(step/2))/uint64(step)*uint64(step)
		if snapped > uint64(hi) {
			return hi
		}
		return Interval(snapped)
	}
	best := f.Intervals[0]
	bestDist := distance(iv, best)
	for _, candidate := range f.Intervals[1:] {
		if d := distance(iv, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func distance(a, b Interval) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

// Format is one payload format of a streaming interface with its frames in
// descriptor order.
type Format struct {
	Index        uint8
	Subtype      descriptors.VideoStreamingInterfaceDescriptorSubtype
	GUID         uuid.UUID
	FourCC       FourCC
	Name         string
	BitsPerPixel uint8
	Compressed   bool
	Colorspace   Colorspace
	DefaultFrame uint8
	Frames       []*Frame

	frameSubtype descriptors.VideoStreamingInterfaceDescriptorSubtype
}

// BytesPerLine is zero for compressed formats.
func (f *Format) BytesPerLine(width uint16) uint32 {
	return uint32(f.BitsPerPixel) * uint32(width) / 8
}

func (f *Format) FrameByIndex(index uint8) *Frame {
	for _, frame := range f.Frames {
		if frame.Index == index {
			return frame
		}
	}
	return nil
}

// ClosestFrame returns the frame whose non-overlapping area with a width x
// height image is smallest.
func (f *Format) ClosestFrame(width, height uint16) *Frame {
	var best *Frame
	bestDist := uint64(1<<64 - 1)
	rw, rh := uint64(width), uint64(height)
	for _, frame := range f.Frames {
		w, h := uint64(frame.Width), uint64(frame.Height)
		overlap := min(w, rw) * min(h, rh)
		d := w*h + rw*rh - 2*overlap
		if d < bestDist {
			best, bestDist = frame, d
		}
		if bestDist == 0 {
			break
		}
	}
	return best
}

// Stream is the format set of one VideoStreaming interface.
type Stream struct {
	Interface uint8
	Header    descriptors.InputHeaderDescriptor
	Formats   []*Format
}

func (s *Stream) FormatByFourCC(fcc FourCC) *Format {
	for _, f := range s.Formats {
		if f.FourCC == fcc {
			return f
		}
	}
	return nil
}

func (s *Stream) FormatByIndex(index uint8) *Format {
	for _, f := range s.Formats {
		if f.Index == index {
			return f
		}
	}
	return nil
}
