package formats

import (
	"fmt"

	"github.com/google/uuid"
)

// FourCC is a V4L2 pixel format code.
type FourCC uint32

func NewFourCC(s string) FourCC {
	if len(s) != 4 {
		return 0
	}
	return FourCC(s[0]) | FourCC(s[1])<<8 | FourCC(s[2])<<16 | FourCC(s[3])<<24
}

func (f FourCC) String() string {
	if f == 0 {
		return "unknown"
	}
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

const (
	FourCCYUYV   FourCC = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	FourCCUYVY   FourCC = 'U' | 'Y'<<8 | 'V'<<16 | 'Y'<<24
	FourCCRGB565 FourCC = 'R' | 'G'<<8 | 'B'<<16 | 'P'<<24
	FourCCMJPEG  FourCC = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	FourCCNV12   FourCC = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	FourCCYUV420 FourCC = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24
	FourCCM420   FourCC = 'M' | '4'<<8 | '2'<<16 | '0'<<24
)

// CompressionFormat names a payload GUID the driver knows how to label.
type CompressionFormat struct {
	Name   string
	GUID   uuid.UUID
	FourCC FourCC
}

var (
	CompressionFormatYUY2  = CompressionFormat{"YUV 4:2:2 (YUYV)", uuid.MustParse("32595559-0000-0010-8000-00AA00389B71"), FourCCYUYV}
	CompressionFormatUYVY  = CompressionFormat{"YUV 4:2:2 (UYVY)", uuid.MustParse("59565955-0000-0010-8000-00AA00389B71"), FourCCUYVY}
	CompressionFormatRGBP  = CompressionFormat{"RGB565", uuid.MustParse("50424752-0000-0010-8000-00AA00389B71"), FourCCRGB565}
	CompressionFormatMJPEG = CompressionFormat{"MJPEG", uuid.MustParse("47504A4D-0000-0010-8000-00AA00389B71"), FourCCMJPEG}
	CompressionFormatNV12  = CompressionFormat{"Y/CbCr 4:2:0 (NV12)", uuid.MustParse("3231564E-0000-0010-8000-00AA00389B71"), FourCCNV12}
	CompressionFormatM420  = CompressionFormat{"YUV 4:2:0 (M420)", uuid.MustParse("3032344D-0000-0010-8000-00AA00389B71"), FourCCM420}
	CompressionFormatI420  = CompressionFormat{"YUV 4:2:0 (I420)", uuid.MustParse("30323449-0000-0010-8000-00AA00389B71"), FourCCYUV420}
)

var compressionFormats = []CompressionFormat{
	CompressionFormatRGBP,
	CompressionFormatMJPEG,
	CompressionFormatUYVY,
	CompressionFormatYUY2,
	CompressionFormatNV12,
	CompressionFormatM420,
	CompressionFormatI420,
}

// LookupGUID returns the known format for a payload GUID. Unknown GUIDs,
// including H.264 and VP8, come back with a zero FourCC and the GUID as name.
func LookupGUID(guid uuid.UUID) (CompressionFormat, bool) {
	for _, cf := range compressionFormats {
		if cf.GUID == guid {
			return cf, true
		}
	}
	return CompressionFormat{Name: guid.String(), GUID: guid}, false
}

// Colorspace is a V4L2 colorspace value.
type Colorspace uint8

const (
	ColorspaceDefault     Colorspace = 0
	ColorspaceSMPTE170M   Colorspace = 1
	ColorspaceSMPTE240M   Colorspace = 2
	ColorspaceREC709      Colorspace = 3
	Colorspace470SystemM  Colorspace = 5
	Colorspace470SystemBG Colorspace = 6
	ColorspaceSRGB        Colorspace = 8
)

// ColorspaceFromPrimaries maps bColorPrimaries of a color matching descriptor.
func ColorspaceFromPrimaries(primaries uint8) Colorspace {
	switch primaries {
	case 1:
		return ColorspaceSRGB
	case 2:
		return Colorspace470SystemM
	case 3:
		return Colorspace470SystemBG
	case 4:
		return ColorspaceSMPTE170M
	case 5:
		return ColorspaceSMPTE240M
	}
	return ColorspaceDefault
}

func (c Colorspace) String() string {
	switch c {
	case ColorspaceDefault:
		return "default"
	case ColorspaceSMPTE170M:
		return "smpte170m"
	case ColorspaceSMPTE240M:
		return "smpte240m"
	case ColorspaceREC709:
		return "rec709"
	case Colorspace470SystemM:
		return "470m"
	case Colorspace470SystemBG:
		return "470bg"
	case ColorspaceSRGB:
		return "srgb"
	}
	return fmt.Sprintf("colorspace(%d)", uint8(c))
}
