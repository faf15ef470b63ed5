// This file implements the descriptors as defined in UVC 1.5, section 3.7.
package descriptors

import (
	"encoding"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

type ControlInterface interface {
	encoding.BinaryUnmarshaler
	isControlInterface()
}

// UnmarshalControlInterface decodes one class-specific VideoControl interface
// descriptor. Subtypes the driver does not model return a nil descriptor and
// no error.
func UnmarshalControlInterface(buf []byte) (ControlInterface, error) {
	if len(buf) < 3 {
		return nil, fmt.Errorf("%w: %d byte descriptor", ErrInvalidDescriptor, len(buf))
	}
	var desc ControlInterface
	switch VideoControlInterfaceDescriptorSubtype(buf[2]) {
	case VideoControlInterfaceDescriptorSubtypeHeader:
		desc = &HeaderDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeInputTerminal:
		desc = &InputTerminalDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeOutputTerminal:
		desc = &OutputTerminalDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeSelectorUnit:
		desc = &SelectorUnitDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeProcessingUnit:
		desc = &ProcessingUnitDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeExtensionUnit:
		desc = &ExtensionUnitDescriptor{}
	default:
		return nil, nil
	}
	if err := desc.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return desc, nil
}

type VideoControlInterfaceDescriptorSubtype byte

const (
	VideoControlInterfaceDescriptorSubtypeUndefined      VideoControlInterfaceDescriptorSubtype = 0x00
	VideoControlInterfaceDescriptorSubtypeHeader         VideoControlInterfaceDescriptorSubtype = 0x01
	VideoControlInterfaceDescriptorSubtypeInputTerminal  VideoControlInterfaceDescriptorSubtype = 0x02
	VideoControlInterfaceDescriptorSubtypeOutputTerminal VideoControlInterfaceDescriptorSubtype = 0x03
	VideoControlInterfaceDescriptorSubtypeSelectorUnit   VideoControlInterfaceDescriptorSubtype = 0x04
	VideoControlInterfaceDescriptorSubtypeProcessingUnit VideoControlInterfaceDescriptorSubtype = 0x05
	VideoControlInterfaceDescriptorSubtypeExtensionUnit  VideoControlInterfaceDescriptorSubtype = 0x06
	VideoControlInterfaceDescriptorSubtypeEncodingUnit   VideoControlInterfaceDescriptorSubtype = 0x07
)

// TerminalType is the wTerminalType of an input or output terminal.
type TerminalType uint16

const (
	TerminalTypeVendorSpecific TerminalType = 0x0100
	TerminalTypeStreaming      TerminalType = 0x0101

	InputTerminalTypeVendorSpecific      TerminalType = 0x0200
	InputTerminalTypeCamera              TerminalType = 0x0201
	InputTerminalTypeMediaTransportInput TerminalType = 0x0202

	OutputTerminalTypeVendorSpecific       TerminalType = 0x0300
	OutputTerminalTypeDisplay              TerminalType = 0x0301
	OutputTerminalTypeMediaTransportOutput TerminalType = 0x0302

	ExternalTerminalTypeVendorSpecific     TerminalType = 0x0400
	ExternalTerminalTypeCompositeConnector TerminalType = 0x0401
	ExternalTerminalTypeSVideoConnector    TerminalType = 0x0402
	ExternalTerminalTypeComponentConnector TerminalType = 0x0403
)

// ValidInput reports whether t may describe an input terminal. Types with an
// empty high byte would be confused with units.
func (t TerminalType) ValidInput() bool {
	return t&0x7f00 != 0 && t&0x8000 == 0
}

// ValidOutput reports whether t may describe an output terminal.
func (t TerminalType) ValidOutput() bool {
	return t&0xff00 != 0
}

// HeaderDescriptor as defined in UVC 1.5, 3.7.2
type HeaderDescriptor struct {
	UVC                            BinaryCodedDecimal
	TotalLength                    uint16
	ClockFrequency                 uint32
	VideoStreamingInterfaceIndexes []uint8
}

func (hd *HeaderDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeHeader), 12); err != nil {
		return err
	}
	n := int(buf[11])
	if err := need(buf, 12+n); err != nil {
		return err
	}
	hd.UVC = BinaryCodedDecimal(binary.LittleEndian.Uint16(buf[3:5]))
	hd.TotalLength = binary.LittleEndian.Uint16(buf[5:7])
	hd.ClockFrequency = binary.LittleEndian.Uint32(buf[7:11])
	hd.VideoStreamingInterfaceIndexes = append([]uint8(nil), buf[12:12+n]...)
	return nil
}

func (hd *HeaderDescriptor) isControlInterface() {}

// InputTerminalDescriptor as defined in UVC 1.5, 3.7.2.1. Camera is set
// for camera terminals (3.7.2.3).
type InputTerminalDescriptor struct {
	TerminalID           uint8
	TerminalType         TerminalType
	AssociatedTerminalID uint8
	DescriptionIndex     uint8
	Camera               *CameraTerminal
}

type CameraTerminal struct {
	ObjectiveFocalLengthMin uint16
	ObjectiveFocalLengthMax uint16
	OcularFocalLength       uint16
	ControlsBitmask         []byte
}

func (itd *InputTerminalDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeInputTerminal), 8); err != nil {
		return err
	}
	itd.TerminalID = buf[3]
	itd.TerminalType = TerminalType(binary.LittleEndian.Uint16(buf[4:6]))
	itd.AssociatedTerminalID = buf[6]
	itd.DescriptionIndex = buf[7]
	itd.Camera = nil
	if itd.TerminalType != InputTerminalTypeCamera {
		return nil
	}
	if err := need(buf, 15); err != nil {
		return err
	}
	n := int(buf[14])
	if err := need(buf, 15+n); err != nil {
		return err
	}
	itd.Camera = &CameraTerminal{
		ObjectiveFocalLengthMin: binary.LittleEndian.Uint16(buf[8:10]),
		ObjectiveFocalLengthMax: binary.LittleEndian.Uint16(buf[10:12]),
		OcularFocalLength:       binary.LittleEndian.Uint16(buf[12:14]),
		ControlsBitmask:         append([]byte(nil), buf[15:15+n]...),
	}
	return nil
}

func (itd *InputTerminalDescriptor) isControlInterface() {}

// OutputTerminalDescriptor as defined in UVC 1.5, 3.7.2.2
type OutputTerminalDescriptor struct {
	TerminalID           uint8
	TerminalType         TerminalType
	AssociatedTerminalID uint8
	SourceID             uint8
	DescriptionIndex     uint8
}

func (otd *OutputTerminalDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeOutputTerminal), 9); err != nil {
		return err
	}
	otd.TerminalID = buf[3]
	otd.TerminalType = TerminalType(binary.LittleEndian.Uint16(buf[4:6]))
	otd.AssociatedTerminalID = buf[6]
	otd.SourceID = buf[7]
	otd.DescriptionIndex = buf[8]
	return nil
}

func (otd *OutputTerminalDescriptor) isControlInterface() {}

// SelectorUnitDescriptor as defined in UVC 1.5, 3.7.2.4
type SelectorUnitDescriptor struct {
	UnitID           uint8
	SourceIDs        []uint8
	DescriptionIndex uint8
}

func (sud *SelectorUnitDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeSelectorUnit), 6); err != nil {
		return err
	}
	p := int(buf[4])
	if err := need(buf, 6+p); err != nil {
		return err
	}
	sud.UnitID = buf[3]
	sud.SourceIDs = append([]uint8(nil), buf[5:5+p]...)
	sud.DescriptionIndex = buf[5+p]
	return nil
}

func (sud *SelectorUnitDescriptor) isControlInterface() {}

// ProcessingUnitDescriptor as defined in UVC 1.5, 3.7.2.5. UVC 1.0
// devices omit the trailing video standards bitmap.
type ProcessingUnitDescriptor struct {
	UnitID                uint8
	SourceID              uint8
	MaxMultiplier         uint16
	ControlsBitmask       []byte
	DescriptionIndex      uint8
	VideoStandardsBitmask uint8
}

func (pud *ProcessingUnitDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeProcessingUnit), 9); err != nil {
		return err
	}
	n := int(buf[7])
	if err := need(buf, 9+n); err != nil {
		return err
	}
	pud.UnitID = buf[3]
	pud.SourceID = buf[4]
	pud.MaxMultiplier = binary.LittleEndian.Uint16(buf[5:7])
	pud.ControlsBitmask = append([]byte(nil), buf[8:8+n]...)
	pud.DescriptionIndex = buf[8+n]
	pud.VideoStandardsBitmask = 0
	if int(buf[0]) > 9+n {
		pud.VideoStandardsBitmask = buf[9+n]
	}
	return nil
}

func (pud *ProcessingUnitDescriptor) isControlInterface() {}

// ExtensionUnitDescriptor as defined in UVC 1.5, 3.7.2.7
type ExtensionUnitDescriptor struct {
	UnitID            uint8
	GUIDExtensionCode uuid.UUID
	NumControls       uint8
	SourceIDs         []uint8
	ControlsBitmask   []byte
	DescriptionIndex  uint8
}

func (eud *ExtensionUnitDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoControlInterfaceDescriptorSubtypeExtensionUnit), 24); err != nil {
		return err
	}
	p := int(buf[21])
	if err := need(buf, 24+p); err != nil {
		return err
	}
	n := int(buf[22+p])
	if err := need(buf, 24+p+n); err != nil {
		return err
	}
	eud.UnitID = buf[3]
	eud.GUIDExtensionCode = GUID(buf[4:20])
	eud.NumControls = buf[20]
	eud.SourceIDs = append([]uint8(nil), buf[22:22+p]...)
	eud.ControlsBitmask = append([]byte(nil), buf[23+p:23+p+n]...)
	eud.DescriptionIndex = buf[23+p+n]
	return nil
}

func (eud *ExtensionUnitDescriptor) isControlInterface() {}
