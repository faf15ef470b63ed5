package transfers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidHeader is returned for a payload whose header length is below the
// two mandatory bytes or does not cover the PTS and SCR fields it announces.
var ErrInvalidHeader = errors.New("invalid payload header")

// Payload header bits, UVC 1.5 section 2.4.3.3.
const (
	headerFrameID     = 1 << 0
	headerEndOfFrame  = 1 << 1
	headerHasPTS      = 1 << 2
	headerHasSCR      = 1 << 3
	headerStillImage  = 1 << 5
	headerError       = 1 << 6
	headerEndOfHeader = 1 << 7
)

// Payload is one USB transfer of a video stream: a header and the bytes of
// the frame it carries.
type Payload struct {
	HeaderLength      uint8
	HeaderInfoBitmask uint8
	PTS               uint32
	SCR               struct {
		SourceTimeClock uint32
		TokenCounter    uint16
	}
	Data []byte
}

func (f *Payload) FrameID() bool {
	return f.HeaderInfoBitmask&headerFrameID != 0
}

func (f *Payload) EndOfFrame() bool {
	return f.HeaderInfoBitmask&headerEndOfFrame != 0
}

func (f *Payload) HasPTS() bool {
	return f.HeaderInfoBitmask&headerHasPTS != 0
}

func (f *Payload) HasSCR() bool {
	return f.HeaderInfoBitmask&headerHasSCR != 0
}

func (f *Payload) PayloadSpecificBit() bool {
	return f.HeaderInfoBitmask&0b00010000 != 0
}

func (f *Payload) StillImage() bool {
	return f.HeaderInfoBitmask&headerStillImage != 0
}

func (f *Payload) Error() bool {
	return f.HeaderInfoBitmask&headerError != 0
}

func (f *Payload) EndOfHeader() bool {
	return f.HeaderInfoBitmask&headerEndOfHeader != 0
}

func (f *Payload) String() string {
	return fmt.Sprintf("Payload{len: %d, fid: %t, eof: %t, err: %t, data: %d}",
		f.HeaderLength, f.FrameID(), f.EndOfFrame(), f.Error(), len(f.Data))
}

// UnmarshalBinary parses a received transfer. Data aliases buf.
func (f *Payload) UnmarshalBinary(buf []byte) error {
	if len(buf) < 2 {
		return io.ErrShortBuffer
	}
	if len(buf) < int(buf[0]) {
		return io.ErrShortBuffer
	}
	if buf[0] < 2 {
		return fmt.Errorf("%w: length %d", ErrInvalidHeader, buf[0])
	}
	f.HeaderLength = buf[0]
	f.HeaderInfoBitmask = buf[1]
	need := 2
	if f.HasPTS() {
		need += 4
	}
	if f.HasSCR() {
		need += 6
	}
	if int(f.HeaderLength) < need {
		return fmt.Errorf("%w: length %d, fields need %d", ErrInvalidHeader, f.HeaderLength, need)
	}
	offset := 2
	if f.HasPTS() {
		f.PTS = binary.LittleEndian.Uint32(buf[offset : offset+4])
		offset += 4
	}
	if f.HasSCR() {
		f.SCR.SourceTimeClock = binary.LittleEndian.Uint32(buf[offset : offset+4])
		offset += 4
		f.SCR.TokenCounter = binary.LittleEndian.Uint16(buf[offset : offset+2])
	}
	f.Data = buf[f.HeaderLength:]
	return nil
}
