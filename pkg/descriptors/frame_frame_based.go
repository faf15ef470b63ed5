package descriptors

import (
	"github.com/google/uuid"
)

// FrameBasedFormatDescriptor as defined in the UVC frame based payload spec
// 1.5, 3.1.1
type FrameBasedFormatDescriptor struct {
	FormatIndex         uint8
	NumFrameDescriptors uint8
	GUIDFormat          uuid.UUID
	BitsPerPixel        uint8
	DefaultFrameIndex   uint8
	AspectRatioX        uint8
	AspectRatioY        uint8
	InterlaceFlags      uint8
	CopyProtect         uint8
	// VariableSize is bVariableSize, set for compressed payloads.
	VariableSize bool
}

func (fbfd *FrameBasedFormatDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoStreamingInterfaceDescriptorSubtypeFormatFrameBased), 28); err != nil {
		return err
	}
	fbfd.FormatIndex = buf[3]
	fbfd.NumFrameDescriptors = buf[4]
	fbfd.GUIDFormat = GUID(buf[5:21])
	fbfd.BitsPerPixel = buf[21]
	fbfd.DefaultFrameIndex = buf[22]
	fbfd.AspectRatioX = buf[23]
	fbfd.AspectRatioY = buf[24]
	fbfd.InterlaceFlags = buf[25]
	fbfd.CopyProtect = buf[26]
	fbfd.VariableSize = buf[27] != 0
	return nil
}

func (fbfd *FrameBasedFormatDescriptor) Index() uint8 { return fbfd.FormatIndex }

func (fbfd *FrameBasedFormatDescriptor) FrameSubtype() VideoStreamingInterfaceDescriptorSubtype {
	return VideoStreamingInterfaceDescriptorSubtypeFrameFrameBased
}

func (fbfd *FrameBasedFormatDescriptor) isStreamingInterface() {}
