package decode

import (
	"fmt"
	"image"

	"github.com/kevmo314/go-uvchost/pkg/formats"
)

type UncompressedDecoder struct {
	queue
	fourcc        formats.FourCC
	width, height int
}

func NewUncompressedDecoder(fourcc formats.FourCC, width, height int) (*UncompressedDecoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if width%2 != 0 {
		return nil, fmt.Errorf("%s needs an even width, got %d", fourcc, width)
	}
	return &UncompressedDecoder{fourcc: fourcc, width: width, height: height}, nil
}

// FrameSize is the number of bytes of one frame.
func (d *UncompressedDecoder) FrameSize() int {
	n := d.width * d.height
	switch d.fourcc {
	case formats.FourCCNV12, formats.FourCCYUV420, formats.FourCCM420:
		return n + 2*((d.width/2)*((d.height+1)/2))
	}
	return 2 * n
}

func (d *UncompressedDecoder) Write(frame []byte) (int, error) {
	if len(frame) < d.FrameSize() {
		return 0, fmt.Errorf("%s: %d of %d bytes: %w", d.fourcc, len(frame), d.FrameSize(), ErrShortFrame)
	}
	var img image.Image
	switch d.fourcc {
	case formats.FourCCYUYV:
		img = d.packed422(frame, 0, 1, 3)
	case formats.FourCCUYVY:
		img = d.packed422(frame, 1, 0, 2)
	case formats.FourCCNV12:
		img = d.nv12(frame)
	case formats.FourCCYUV420:
		img = d.i420(frame)
	case formats.FourCCM420:
		img = d.m420(frame)
	case formats.FourCCRGB565:
		img = d.rgb565(frame)
	default:
		return 0, fmt.Errorf("unsupported FourCC %s", d.fourcc)
	}
	d.push(img)
	return d.FrameSize(), nil
}

// packed422 splits a Y0 U Y1 V style macropixel stream. y is the offset of
// the first luma sample, u and v those of the chroma samples.
func (d *UncompressedDecoder) packed422(frame []byte, y, u, v int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, d.width, d.height), image.YCbCrSubsampleRatio422)
	for row := 0; row < d.height; row++ {
		src := frame[row*d.width*2 : (row+1)*d.width*2]
		ys := img.Y[row*img.YStride:]
		cs := row * img.CStride
		for x := 0; x < d.width/2; x++ {
			m := src[x*4 : x*4+4]
			ys[2*x] = m[y]
			ys[2*x+1] = m[y+2]
			img.Cb[cs+x] = m[u]
			img.Cr[cs+x] = m[v]
		}
	}
	return img
}

func (d *UncompressedDecoder) nv12(frame []byte) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, d.width, d.height), image.YCbCrSubsampleRatio420)
	n := copy(img.Y, frame[:d.width*d.height])
	uv := frame[n:]
	for i := range img.Cb {
		img.Cb[i] = uv[2*i]
		img.Cr[i] = uv[2*i+1]
	}
	return img
}

func (d *UncompressedDecoder) i420(frame []byte) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, d.width, d.height), image.YCbCrSubsampleRatio420)
	n := copy(img.Y, frame)
	n += copy(img.Cb, frame[n:])
	copy(img.Cr, frame[n:])
	return img
}

// m420 interleaves two luma lines with one line of packed CbCr.
func (d *UncompressedDecoder) m420(frame []byte) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, d.width, d.height), image.YCbCrSubsampleRatio420)
	off := 0
	for row := 0; row < d.height; row += 2 {
		lines := 2
		if row+1 == d.height {
			lines = 1
		}
		off += copy(img.Y[row*img.YStride:(row+lines)*img.YStride], frame[off:off+lines*d.width])
		cs := (row / 2) * img.CStride
		for x := 0; x < d.width/2; x++ {
			img.Cb[cs+x] = frame[off+2*x]
			img.Cr[cs+x] = frame[off+2*x+1]
		}
		off += d.width
	}
	return img
}

func (d *UncompressedDecoder) rgb565(frame []byte) *RGB {
	img := NewRGB(image.Rect(0, 0, d.width, d.height))
	for i := 0; i < d.width*d.height; i++ {
		p := uint16(frame[2*i]) | uint16(frame[2*i+1])<<8
		r, g, b := byte(p>>11), byte(p>>5)&0x3f, byte(p)&0x1f
		img.Pix[3*i] = r<<3 | r>>2
		img.Pix[3*i+1] = g<<2 | g>>4
		img.Pix[3*i+2] = b<<3 | b>>2
	}
	return img
}
