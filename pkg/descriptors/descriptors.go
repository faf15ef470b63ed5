// Package descriptors decodes the standard and class-specific descriptors of a
// USB Video Class function.
package descriptors

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrInvalidDescriptor reports a descriptor whose length or type fields are
// inconsistent. It aborts device bring-up.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// GUID converts a GUID as laid out on the wire (UVC 1.5, section 2.9) into a
// uuid.UUID.
func GUID(b []byte) uuid.UUID {
	var u uuid.UUID
	copyGUID(u[:], b)
	return u
}

func copyGUID(dst []byte, src []byte) {
	// the first three fields are little endian on the wire
	dst[0] = src[3]
	dst[1] = src[2]
	dst[2] = src[1]
	dst[3] = src[0]
	dst[4] = src[5]
	dst[5] = src[4]
	dst[6] = src[7]
	dst[7] = src[6]
	copy(dst[8:16], src[8:16])
}

// checkClassSpecific validates the common three byte prefix of a class-specific
// interface descriptor and that bLength is at least min and fits in buf.
func checkClassSpecific(buf []byte, subtype byte, min int) error {
	if len(buf) < 3 {
		return fmt.Errorf("%w: %w", ErrInvalidDescriptor, io.ErrShortBuffer)
	}
	if len(buf) < int(buf[0]) {
		return fmt.Errorf("%w: subtype %#02x declares %d bytes, %d left: %w", ErrInvalidDescriptor, buf[2], buf[0], len(buf), io.ErrShortBuffer)
	}
	if int(buf[0]) < min {
		return fmt.Errorf("%w: subtype %#02x is %d bytes, need %d", ErrInvalidDescriptor, buf[2], buf[0], min)
	}
	if ClassSpecificDescriptorType(buf[1]) != ClassSpecificDescriptorTypeInterface {
		return fmt.Errorf("%w: descriptor type %#02x", ErrInvalidDescriptor, buf[1])
	}
	if buf[2] != subtype {
		return fmt.Errorf("%w: subtype %#02x, want %#02x", ErrInvalidDescriptor, buf[2], subtype)
	}
	return nil
}

// need fails when a variable length field runs past bLength.
func need(buf []byte, n int) error {
	if n > int(buf[0]) {
		return fmt.Errorf("%w: subtype %#02x needs %d bytes, declares %d", ErrInvalidDescriptor, buf[2], n, buf[0])
	}
	return nil
}
