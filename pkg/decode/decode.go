// Package decode turns captured frames into images for previews and
// snapshots.
package decode

import (
	"errors"
	"fmt"
	"image"

	"github.com/kevmo314/go-uvchost/pkg/formats"
	"github.com/kevmo314/go-uvchost/pkg/transfers"
)

// ErrEAGAIN is returned by ReadFrame when no decoded frame is queued.
var ErrEAGAIN = errors.New("EAGAIN")

// ErrShortFrame is returned for a frame smaller than its format requires,
// typically one cut short by a dropped packet.
var ErrShortFrame = errors.New("short frame")

// VideoDecoder decodes whole frames written to it. Write copies what it
// needs, so the caller may reuse the buffer as soon as it returns.
type VideoDecoder interface {
	Write(frame []byte) (int, error)
	ReadFrame() (image.Image, error)
	Close() error
}

// NewDecoder returns a decoder for frames of format f.
func NewDecoder(f transfers.PixFormat) (VideoDecoder, error) {
	switch f.FourCC {
	case formats.FourCCMJPEG:
		return NewMJPEGDecoder()
	case formats.FourCCYUYV, formats.FourCCUYVY, formats.FourCCNV12,
		formats.FourCCYUV420, formats.FourCCM420, formats.FourCCRGB565:
		d, err := NewUncompressedDecoder(f.FourCC, int(f.Width), int(f.Height))
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("no decoder for %s", f.FourCC)
}

// Decode writes frame to d and reads the image back.
func Decode(d VideoDecoder, frame []byte) (image.Image, error) {
	if _, err := d.Write(frame); err != nil {
		return nil, err
	}
	return d.ReadFrame()
}

// queue holds decoded images until ReadFrame.
type queue struct {
	images []image.Image
}

func (q *queue) push(img image.Image) { q.images = append(q.images, img) }

func (q *queue) ReadFrame() (image.Image, error) {
	if len(q.images) == 0 {
		return nil, ErrEAGAIN
	}
	img := q.images[0]
	q.images[0] = nil
	q.images = q.images[1:]
	return img, nil
}

func (q *queue) Close() error {
	q.images = nil
	return nil
}
