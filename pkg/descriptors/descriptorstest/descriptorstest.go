// Package descriptorstest builds raw descriptor records for tests.
package descriptorstest

import (
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	typeInterface     = 0x04
	typeEndpoint      = 0x05
	typeAssociation   = 0x0b
	typeCSInterface   = 0x24
	classVideo        = 0x0e
	subclassControl   = 0x01
	subclassStreaming = 0x02
)

// Well known format GUIDs in wire order.
var (
	GUIDYUY2 = WireGUID(uuid.MustParse("32595559-0000-0010-8000-00aa00389b71"))
	GUIDNV12 = WireGUID(uuid.MustParse("3231564e-0000-0010-8000-00aa00389b71"))
	GUIDH264 = WireGUID(uuid.MustParse("34363248-0000-0010-8000-00aa00389b71"))
)

// WireGUID lays u out the way a device does, first three fields little endian.
func WireGUID(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:], u[8:])
	return b
}

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func record(typ byte, body ...[]byte) []byte {
	b := []byte{0, typ}
	for _, part := range body {
		b = append(b, part...)
	}
	b[0] = byte(len(b))
	return b
}

func cs(subtype byte, body ...[]byte) []byte {
	return record(typeCSInterface, append([][]byte{{subtype}}, body...)...)
}

// Config prepends a configuration header with the right wTotalLength.
func Config(records ...[]byte) []byte {
	var body []byte
	var ifaces byte
	for _, r := range records {
		if r[1] == typeInterface && r[3] == 0 {
			ifaces++
		}
		body = append(body, r...)
	}
	hdr := []byte{9, 0x02, 0, 0, ifaces, 1, 0, 0x80, 250}
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(hdr)+len(body)))
	return append(hdr, body...)
}

func Association(first, count byte) []byte {
	return record(typeAssociation, []byte{first, count, classVideo, 0x03, 0x00, 0})
}

func ControlInterface(number byte) []byte {
	return record(typeInterface, []byte{number, 0, 1, classVideo, subclassControl, 0, 0})
}

func StreamingInterface(number, alt, endpoints byte) []byte {
	return record(typeInterface, []byte{number, alt, endpoints, classVideo, subclassStreaming, 0, 0})
}

// Endpoint with attributes 0x05 is isochronous asynchronous, 0x02 is bulk.
func Endpoint(address, attributes byte, maxPacketSize uint16) []byte {
	return record(typeEndpoint, []byte{address, attributes}, le16(maxPacketSize), []byte{1})
}

func Header(uvc uint16, clock uint32, streaming ...byte) []byte {
	return cs(0x01, le16(uvc), le16(0), le32(clock), []byte{byte(len(streaming))}, streaming)
}

func InputTerminal(id byte, terminalType uint16, controls ...byte) []byte {
	if terminalType != 0x0201 {
		return cs(0x02, []byte{id}, le16(terminalType), []byte{0, 0})
	}
	return cs(0x02, []byte{id}, le16(terminalType), []byte{0, 0}, le16(0), le16(0), le16(0), []byte{byte(len(controls))}, controls)
}

func OutputTerminal(id byte, terminalType uint16, source byte) []byte {
	return cs(0x03, []byte{id}, le16(terminalType), []byte{0, source, 0})
}

func Selector(id byte, sources ...byte) []byte {
	return cs(0x04, []byte{id, byte(len(sources))}, sources, []byte{0})
}

func Processing(id, source byte, controls ...byte) []byte {
	return cs(0x05, []byte{id, source}, le16(0), []byte{byte(len(controls))}, controls, []byte{0, 0})
}

func Extension(id byte, guid uuid.UUID, sources []byte, controls ...byte) []byte {
	return cs(0x06, []byte{id}, WireGUID(guid), []byte{byte(8 * len(controls)), byte(len(sources))}, sources, []byte{byte(len(controls))}, controls, []byte{0})
}

func InputHeader(formats, endpoint, terminalLink byte) []byte {
	controls := make([]byte, formats)
	return cs(0x01, []byte{formats}, le16(0), []byte{endpoint, 0, terminalLink, 0, 0, 0, 1}, controls)
}

func UncompressedFormat(index, frames byte, guid []byte, bpp byte) []byte {
	return cs(0x04, []byte{index, frames}, guid, []byte{bpp, 1, 0, 0, 0, 0})
}

func MJPEGFormat(index, frames byte) []byte {
	return cs(0x06, []byte{index, frames, 1, 1, 0, 0, 0, 0})
}

func FrameBasedFormat(index, frames byte, guid []byte, bpp byte) []byte {
	return cs(0x10, []byte{index, frames}, guid, []byte{bpp, 1, 0, 0, 0, 0, 1})
}

func intervalBytes(intervals []uint32) []byte {
	var b []byte
	for _, iv := range intervals {
		b = append(b, le32(iv)...)
	}
	return b
}

// Frame builds an uncompressed (0x05) or MJPEG (0x07) frame with a discrete
// interval list.
func Frame(subtype, index byte, w, h uint16, maxBuf, def uint32, intervals ...uint32) []byte {
	return cs(subtype, []byte{index, 0}, le16(w), le16(h), le32(0), le32(0), le32(maxBuf), le32(def), []byte{byte(len(intervals))}, intervalBytes(intervals))
}

// StepwiseFrame builds a frame declaring a min, max, step interval range.
func StepwiseFrame(subtype, index byte, w, h uint16, maxBuf, def, min, max, step uint32) []byte {
	return cs(subtype, []byte{index, 0}, le16(w), le16(h), le32(0), le32(0), le32(maxBuf), le32(def), []byte{0}, intervalBytes([]uint32{min, max, step}))
}

func FrameBasedFrame(index byte, w, h uint16, def uint32, intervals ...uint32) []byte {
	return cs(0x11, []byte{index, 0}, le16(w), le16(h), le32(0), le32(0), le32(def), []byte{byte(len(intervals))}, le32(0), intervalBytes(intervals))
}

func ColorMatching(primaries byte) []byte {
	return cs(0x0d, []byte{primaries, 1, 4})
}

// Camera is a single chain webcam: camera terminal 1, processing unit 2,
// extension unit 3 and streaming terminal 4 on interface 0, with streaming
// interface 1 offering YUYV 640x480 and 320x240 and MJPEG 1280x720.
// Alternate settings 1 to 3 carry isochronous endpoint 0x81 with 512, 1024
// and 3x1024 byte packets.
func Camera() []byte {
	return Config(
		Association(0, 2),
		ControlInterface(0),
		Header(0x0110, 48000000, 1),
		InputTerminal(1, 0x0201, 0x0a, 0x06, 0x02),
		Processing(2, 1, 0x5b, 0x10),
		Extension(3, uuid.MustParse("28f03370-6311-4a2e-ba2c-6890eb334016"), []byte{2}, 0xff),
		OutputTerminal(4, 0x0101, 3),
		StreamingInterface(1, 0, 0),
		InputHeader(2, 0x81, 4),
		UncompressedFormat(1, 2, GUIDYUY2, 16),
		Frame(0x05, 1, 640, 480, 0, 333333, 333333, 666666, 1000000),
		Frame(0x05, 2, 320, 240, 0, 333333, 333333, 666666),
		ColorMatching(1),
		MJPEGFormat(2, 1),
		Frame(0x07, 1, 1280, 720, 1843200, 333333, 333333, 666666),
		StreamingInterface(1, 1, 1),
		Endpoint(0x81, 0x05, 512),
		StreamingInterface(1, 2, 1),
		Endpoint(0x81, 0x05, 1024),
		StreamingInterface(1, 3, 1),
		Endpoint(0x81, 0x05, 0x1400),
	)
}

// BulkCamera is Camera with a single bulk alternate setting.
func BulkCamera() []byte {
	return Config(
		ControlInterface(0),
		Header(0x0100, 48000000, 1),
		InputTerminal(1, 0x0201, 0x0a, 0x02, 0x00),
		Processing(2, 1, 0x5b, 0x10),
		OutputTerminal(4, 0x0101, 2),
		StreamingInterface(1, 0, 1),
		InputHeader(1, 0x82, 4),
		MJPEGFormat(1, 1),
		Frame(0x07, 1, 640, 480, 614400, 333333, 333333),
		Endpoint(0x82, 0x02, 512),
	)
}
