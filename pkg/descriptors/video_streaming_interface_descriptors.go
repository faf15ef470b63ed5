// This file implements the descriptors as defined in UVC 1.5, section 3.9.
package descriptors

import (
	"encoding"
	"encoding/binary"
	"fmt"
)

type StreamingInterface interface {
	encoding.BinaryUnmarshaler
	isStreamingInterface()
}

type VideoStreamingInterfaceDescriptorSubtype byte

const (
	VideoStreamingInterfaceDescriptorSubtypeUndefined           VideoStreamingInterfaceDescriptorSubtype = 0x00
	VideoStreamingInterfaceDescriptorSubtypeInputHeader         VideoStreamingInterfaceDescriptorSubtype = 0x01
	VideoStreamingInterfaceDescriptorSubtypeOutputHeader        VideoStreamingInterfaceDescriptorSubtype = 0x02
	VideoStreamingInterfaceDescriptorSubtypeStillImageFrame     VideoStreamingInterfaceDescriptorSubtype = 0x03
	VideoStreamingInterfaceDescriptorSubtypeFormatUncompressed  VideoStreamingInterfaceDescriptorSubtype = 0x04
	VideoStreamingInterfaceDescriptorSubtypeFrameUncompressed   VideoStreamingInterfaceDescriptorSubtype = 0x05
	VideoStreamingInterfaceDescriptorSubtypeFormatMJPEG         VideoStreamingInterfaceDescriptorSubtype = 0x06
	VideoStreamingInterfaceDescriptorSubtypeFrameMJPEG          VideoStreamingInterfaceDescriptorSubtype = 0x07
	VideoStreamingInterfaceDescriptorSubtypeFormatMPEG2TS       VideoStreamingInterfaceDescriptorSubtype = 0x0A
	VideoStreamingInterfaceDescriptorSubtypeFormatDV            VideoStreamingInterfaceDescriptorSubtype = 0x0C
	VideoStreamingInterfaceDescriptorSubtypeColorFormat         VideoStreamingInterfaceDescriptorSubtype = 0x0D
	VideoStreamingInterfaceDescriptorSubtypeFormatFrameBased    VideoStreamingInterfaceDescriptorSubtype = 0x10
	VideoStreamingInterfaceDescriptorSubtypeFrameFrameBased     VideoStreamingInterfaceDescriptorSubtype = 0x11
	VideoStreamingInterfaceDescriptorSubtypeFormatStreamBased   VideoStreamingInterfaceDescriptorSubtype = 0x12
	VideoStreamingInterfaceDescriptorSubtypeFormatH264          VideoStreamingInterfaceDescriptorSubtype = 0x13
	VideoStreamingInterfaceDescriptorSubtypeFrameH264           VideoStreamingInterfaceDescriptorSubtype = 0x14
	VideoStreamingInterfaceDescriptorSubtypeFormatH264Simulcast VideoStreamingInterfaceDescriptorSubtype = 0x15
	VideoStreamingInterfaceDescriptorSubtypeFormatVP8           VideoStreamingInterfaceDescriptorSubtype = 0x16
	VideoStreamingInterfaceDescriptorSubtypeFrameVP8            VideoStreamingInterfaceDescriptorSubtype = 0x17
	VideoStreamingInterfaceDescriptorSubtypeFormatVP8Simulcast  VideoStreamingInterfaceDescriptorSubtype = 0x18
)

// UnmarshalStreamingInterface decodes one class-specific VideoStreaming
// interface descriptor. Output headers, still image frames and the DV,
// MPEG2-TS, stream based, H.264 and VP8 payloads are not modelled and come
// back as a nil descriptor with no error.
func UnmarshalStreamingInterface(buf []byte) (StreamingInterface, error) {
	if len(buf) < 3 {
		return nil, fmt.Errorf("%w: %d byte descriptor", ErrInvalidDescriptor, len(buf))
	}
	var desc StreamingInterface
	switch VideoStreamingInterfaceDescriptorSubtype(buf[2]) {
	case VideoStreamingInterfaceDescriptorSubtypeInputHeader:
		desc = &InputHeaderDescriptor{}
	case VideoStreamingInterfaceDescriptorSubtypeFormatUncompressed:
		desc = &UncompressedFormatDescriptor{}
	case VideoStreamingInterfaceDescriptorSubtypeFormatMJPEG:
		desc = &MJPEGFormatDescriptor{}
	case VideoStreamingInterfaceDescriptorSubtypeFormatFrameBased:
		desc = &FrameBasedFormatDescriptor{}
	case VideoStreamingInterfaceDescriptorSubtypeFrameUncompressed,
		VideoStreamingInterfaceDescriptorSubtypeFrameMJPEG,
		VideoStreamingInterfaceDescriptorSubtypeFrameFrameBased:
		desc = &FrameDescriptor{}
	case VideoStreamingInterfaceDescriptorSubtypeColorFormat:
		desc = &ColorMatchingDescriptor{}
	default:
		return nil, nil
	}
	if err := desc.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return desc, nil
}

// InputHeaderDescriptor as defined in UVC 1.5, 3.9.2.1
type InputHeaderDescriptor struct {
	NumFormats         uint8
	TotalLength        uint16
	EndpointAddress    uint8
	InfoBitmask        uint8
	TerminalLink       uint8
	StillCaptureMethod uint8
	TriggerSupport     uint8
	TriggerUsage       uint8
	// ControlBitmasks holds one bmaControls entry per format.
	ControlBitmasks [][]byte
}

func (ihd *InputHeaderDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoStreamingInterfaceDescriptorSubtypeInputHeader), 13); err != nil {
		return err
	}
	p := int(buf[3])
	n := int(buf[12])
	if err := need(buf, 13+p*n); err != nil {
		return err
	}
	ihd.NumFormats = buf[3]
	ihd.TotalLength = binary.LittleEndian.Uint16(buf[4:6])
	ihd.EndpointAddress = buf[6]
	ihd.InfoBitmask = buf[7]
	ihd.TerminalLink = buf[8]
	ihd.StillCaptureMethod = buf[9]
	ihd.TriggerSupport = buf[10]
	ihd.TriggerUsage = buf[11]
	ihd.ControlBitmasks = make([][]byte, p)
	for i := 0; i < p; i++ {
		ihd.ControlBitmasks[i] = append([]byte(nil), buf[13+i*n:13+(i+1)*n]...)
	}
	return nil
}

func (ihd *InputHeaderDescriptor) isStreamingInterface() {}

// ColorMatchingDescriptor as defined in UVC 1.5, 3.9.2.6
type ColorMatchingDescriptor struct {
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
}

func (cmd *ColorMatchingDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, byte(VideoStreamingInterfaceDescriptorSubtypeColorFormat), 6); err != nil {
		return err
	}
	cmd.ColorPrimaries = buf[3]
	cmd.TransferCharacteristics = buf[4]
	cmd.MatrixCoefficients = buf[5]
	return nil
}

func (cmd *ColorMatchingDescriptor) isStreamingInterface() {}
