package decode

import (
	"bytes"
	"image/jpeg"
)

type MJPEGDecoder struct {
	queue
}

func NewMJPEGDecoder() (VideoDecoder, error) {
	return &MJPEGDecoder{}, nil
}

// Write decodes one JPEG picture. Cameras that omit the Huffman tables are
// not handled.
func (d *MJPEGDecoder) Write(frame []byte) (int, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, err
	}
	d.push(img)
	return len(frame), nil
}
