// This file implements the descriptors as defined in the UVC spec 1.5, section 3.6.
package descriptors

import (
	"fmt"
	"io"
)

type InterfaceAssociationDescriptor struct {
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    ClassCode
	FunctionSubclass SubclassCode
	FunctionProtocol ProtocolCode
	DescriptionIndex uint8
}

func (iad *InterfaceAssociationDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < 8 || len(buf) < int(buf[0]) {
		return fmt.Errorf("%w: interface association: %w", ErrInvalidDescriptor, io.ErrShortBuffer)
	}
	if DescriptorType(buf[1]) != DescriptorTypeInterfaceAssociation {
		return fmt.Errorf("%w: descriptor type %#02x is not an interface association", ErrInvalidDescriptor, buf[1])
	}
	iad.FirstInterface = buf[2]
	iad.InterfaceCount = buf[3]
	iad.FunctionClass = ClassCode(buf[4])
	iad.FunctionSubclass = SubclassCode(buf[5])
	iad.FunctionProtocol = ProtocolCode(buf[6])
	iad.DescriptionIndex = buf[7]
	return nil
}

// IsVideo reports whether the association groups a video interface collection.
func (iad *InterfaceAssociationDescriptor) IsVideo() bool {
	return iad.FunctionClass == ClassCodeVideo && iad.FunctionSubclass == SubclassCodeVideoInterfaceCollection
}
