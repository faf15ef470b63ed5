package descriptors

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Interface is one alternate setting of an interface together with the
// endpoints and class-specific descriptors that follow it.
type Interface struct {
	Number           uint8
	AlternateSetting uint8
	Class            ClassCode
	Subclass         SubclassCode
	Protocol         ProtocolCode
	DescriptionIndex uint8
	Endpoints        []EndpointDescriptor
	// ClassSpecific holds the raw class-specific interface descriptors in
	// the order they appeared.
	ClassSpecific [][]byte
}

func (i *Interface) IsVideoControl() bool {
	return i.Class == ClassCodeVideo && i.Subclass == SubclassCodeVideoControl
}

func (i *Interface) IsVideoStreaming() bool {
	return i.Class == ClassCodeVideo && i.Subclass == SubclassCodeVideoStreaming
}

// Endpoint returns the endpoint with the given address.
func (i *Interface) Endpoint(address uint8) (EndpointDescriptor, bool) {
	for _, ep := range i.Endpoints {
		if ep.EndpointAddress == address {
			return ep, true
		}
	}
	return EndpointDescriptor{}, false
}

// Configuration is a parsed configuration descriptor hierarchy.
type Configuration struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Attributes         uint8
	MaxPower           uint8
	Associations       []InterfaceAssociationDescriptor
	// Interfaces lists every alternate setting in descriptor order.
	Interfaces []*Interface
}

// ParseConfiguration walks a full configuration descriptor as returned by
// GET_DESCRIPTOR. Any record whose bLength runs past the buffer fails the
// whole parse.
func ParseConfiguration(buf []byte) (*Configuration, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("%w: configuration: %w", ErrInvalidDescriptor, io.ErrShortBuffer)
	}
	if DescriptorType(buf[1]) != DescriptorTypeConfiguration {
		return nil, fmt.Errorf("%w: descriptor type %#02x is not a configuration", ErrInvalidDescriptor, buf[1])
	}
	cfg := &Configuration{
		TotalLength:        binary.LittleEndian.Uint16(buf[2:4]),
		NumInterfaces:      buf[4],
		ConfigurationValue: buf[5],
		Attributes:         buf[7],
		MaxPower:           buf[8],
	}
	if int(cfg.TotalLength) < len(buf) {
		buf = buf[:cfg.TotalLength]
	}

	var current *Interface
	for off := 0; off+2 <= len(buf); {
		length := int(buf[off])
		if length < 2 || off+length > len(buf) {
			return nil, fmt.Errorf("%w: record at offset %d declares %d bytes, %d left", ErrInvalidDescriptor, off, length, len(buf)-off)
		}
		desc := buf[off : off+length]
		off += length

		switch DescriptorType(desc[1]) {
		case DescriptorTypeInterfaceAssociation:
			var iad InterfaceAssociationDescriptor
			if err := iad.UnmarshalBinary(desc); err != nil {
				return nil, err
			}
			cfg.Associations = append(cfg.Associations, iad)
		case DescriptorTypeInterface:
			if length < 9 {
				return nil, fmt.Errorf("%w: interface: %w", ErrInvalidDescriptor, io.ErrShortBuffer)
			}
			current = &Interface{
				Number:           desc[2],
				AlternateSetting: desc[3],
				Class:            ClassCode(desc[5]),
				Subclass:         SubclassCode(desc[6]),
				Protocol:         ProtocolCode(desc[7]),
				DescriptionIndex: desc[8],
			}
			cfg.Interfaces = append(cfg.Interfaces, current)
		case DescriptorTypeEndpoint:
			var ep EndpointDescriptor
			if err := ep.UnmarshalBinary(desc); err != nil {
				return nil, err
			}
			if current != nil {
				current.Endpoints = append(current.Endpoints, ep)
			}
		default:
			if ClassSpecificDescriptorType(desc[1]) == ClassSpecificDescriptorTypeInterface && current != nil {
				current.ClassSpecific = append(current.ClassSpecific, desc)
			}
		}
	}
	return cfg, nil
}

// VideoControl returns the first VideoControl interface.
func (c *Configuration) VideoControl() *Interface {
	for _, intf := range c.Interfaces {
		if intf.IsVideoControl() {
			return intf
		}
	}
	return nil
}

// AltSettings returns every alternate setting of interface number.
func (c *Configuration) AltSettings(number uint8) []*Interface {
	var alts []*Interface
	for _, intf := range c.Interfaces {
		if intf.Number == number {
			alts = append(alts, intf)
		}
	}
	return alts
}
