// This file implements the standard endpoint descriptors of UVC spec 1.5,
// section 3.10.
package descriptors

import (
	"encoding/binary"
	"fmt"
	"io"
)

type TransferType uint8

const (
	TransferTypeControl     TransferType = 0b00
	TransferTypeIsochronous TransferType = 0b01
	TransferTypeBulk        TransferType = 0b10
	TransferTypeInterrupt   TransferType = 0b11
)

// EndpointDescriptor as defined in USB 2.0, 9.6.6
type EndpointDescriptor struct {
	EndpointAddress   uint8
	AttributesBitmask uint8
	MaxPacketSize     uint16
	Interval          uint8
}

func (ed *EndpointDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < 7 || len(buf) < int(buf[0]) {
		return fmt.Errorf("%w: endpoint: %w", ErrInvalidDescriptor, io.ErrShortBuffer)
	}
	if DescriptorType(buf[1]) != DescriptorTypeEndpoint {
		return fmt.Errorf("%w: descriptor type %#02x is not an endpoint", ErrInvalidDescriptor, buf[1])
	}
	ed.EndpointAddress = buf[2]
	ed.AttributesBitmask = buf[3]
	ed.MaxPacketSize = binary.LittleEndian.Uint16(buf[4:6])
	ed.Interval = buf[6]
	return nil
}

func (ed *EndpointDescriptor) TransferType() TransferType {
	return TransferType(ed.AttributesBitmask & 0b11)
}

// In reports whether the endpoint moves data to the host.
func (ed *EndpointDescriptor) In() bool {
	return ed.EndpointAddress&0x80 != 0
}

// PacketSize is the number of bytes the endpoint moves per (micro)frame,
// including high bandwidth additional transactions.
func (ed *EndpointDescriptor) PacketSize() int {
	return EffectivePacketSize(ed.MaxPacketSize)
}

// EffectivePacketSize decodes wMaxPacketSize: bits 0-10 are the size, bits
// 11-12 the number of additional transactions per microframe.
func EffectivePacketSize(mps uint16) int {
	return int(mps&0x7ff) * (1 + int(mps>>11&0b11))
}
