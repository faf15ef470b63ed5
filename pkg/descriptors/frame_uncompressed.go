package descriptors

import (
	"github.com/google/uuid"
)

// UncompressedFormatDescriptor as defined in the UVC uncompressed payload
// spec 1.5, 3.1.1
type UncompressedFormatDescriptor struct {
	FormatIndex           uint8
	NumFrameDescriptors   uint8
	GUIDFormat            uuid.UUID
	BitsPerPixel          uint8
	DefaultFrameIndex     uint8
	AspectRatioX          uint8
	AspectRatioY          uint8
	InterlaceFlagsBitmask uint8
	CopyProtect           uint8
}

func (ufd *UncompressedFormatDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoStreamingInterfaceDescriptorSubtypeFormatUncompressed), 27); err != nil {
		return err
	}
	ufd.FormatIndex = buf[3]
	ufd.NumFrameDescriptors = buf[4]
	ufd.GUIDFormat = GUID(buf[5:21])
	ufd.BitsPerPixel = buf[21]
	ufd.DefaultFrameIndex = buf[22]
	ufd.AspectRatioX = buf[23]
	ufd.AspectRatioY = buf[24]
	ufd.InterlaceFlagsBitmask = buf[25]
	ufd.CopyProtect = buf[26]
	return nil
}

func (ufd *UncompressedFormatDescriptor) Index() uint8 { return ufd.FormatIndex }

func (ufd *UncompressedFormatDescriptor) FrameSubtype() VideoStreamingInterfaceDescriptorSubtype {
	return VideoStreamingInterfaceDescriptorSubtypeFrameUncompressed
}

func (ufd *UncompressedFormatDescriptor) isStreamingInterface() {}
