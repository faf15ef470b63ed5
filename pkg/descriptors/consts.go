package descriptors

type ClassCode byte

const ClassCodeVideo ClassCode = 0x0E

type SubclassCode byte

const (
	SubclassCodeVideoControl             SubclassCode = 0x01
	SubclassCodeVideoStreaming           SubclassCode = 0x02
	SubclassCodeVideoInterfaceCollection SubclassCode = 0x03
)

// ProtocolCode is bInterfaceProtocol. UVC 1.5 functions report
// ProtocolCode15, earlier ones zero.
type ProtocolCode byte

const ProtocolCode15 ProtocolCode = 0x01

// DescriptorType is the bDescriptorType of a standard descriptor.
type DescriptorType byte

const (
	DescriptorTypeConfiguration        DescriptorType = 0x02
	DescriptorTypeInterface            DescriptorType = 0x04
	DescriptorTypeEndpoint             DescriptorType = 0x05
	DescriptorTypeInterfaceAssociation DescriptorType = 0x0B
)

// ClassSpecificDescriptorType is the bDescriptorType of a class-specific
// record; only interface and endpoint records occur in a video function.
type ClassSpecificDescriptorType byte

const (
	ClassSpecificDescriptorTypeInterface ClassSpecificDescriptorType = 0x24
	ClassSpecificDescriptorTypeEndpoint  ClassSpecificDescriptorType = 0x25
)
