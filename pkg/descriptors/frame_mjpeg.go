package descriptors

// MJPEGFormatDescriptor as defined in the UVC MJPEG payload spec 1.5, 3.1.1
type MJPEGFormatDescriptor struct {
	FormatIndex                uint8
	NumFrameDescriptors        uint8
	Flags                      uint8
	DefaultFrameIndex          uint8
	AspectRatioX, AspectRatioY uint8
	InterlaceFlags             uint8
	CopyProtect                uint8
}

func (mfd *MJPEGFormatDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoStreamingInterfaceDescriptorSubtypeFormatMJPEG), 11); err != nil {
		return err
	}
	mfd.FormatIndex = buf[3]
	mfd.NumFrameDescriptors = buf[4]
	mfd.Flags = buf[5]
	mfd.DefaultFrameIndex = buf[6]
	mfd.AspectRatioX = buf[7]
	mfd.AspectRatioY = buf[8]
	mfd.InterlaceFlags = buf[9]
	mfd.CopyProtect = buf[10]
	return nil
}

// FixedSizeSamples reports bmFlags bit 0.
func (mfd *MJPEGFormatDescriptor) FixedSizeSamples() bool {
	return mfd.Flags&0b1 != 0
}

func (mfd *MJPEGFormatDescriptor) Index() uint8 { return mfd.FormatIndex }

func (mfd *MJPEGFormatDescriptor) FrameSubtype() VideoStreamingInterfaceDescriptorSubtype {
	return VideoStreamingInterfaceDescriptorSubtypeFrameMJPEG
}

func (mfd *MJPEGFormatDescriptor) isStreamingInterface() {}
