// Package requests issues UVC class-specific control requests on the default
// control pipe.
package requests

type RequestType uint8

const (
	RequestTypeVideoInterfaceSetRequest RequestType = 0b00100001
	RequestTypeDataEndpointSetRequest   RequestType = 0b00100010
	RequestTypeVideoInterfaceGetRequest RequestType = 0b10100001
	RequestTypeDataEndpointGetRequest   RequestType = 0b10100010

	// RequestTypeStandardDeviceGetRequest addresses standard requests such as
	// GET_DESCRIPTOR.
	RequestTypeStandardDeviceGetRequest RequestType = 0b10000000
)

type RequestCode uint8

const (
	RequestCodeUndefined RequestCode = 0x00
	RequestCodeSetCur    RequestCode = 0x01
	RequestCodeSetCurAll RequestCode = 0x11
	RequestCodeGetCur    RequestCode = 0x81
	RequestCodeGetMin    RequestCode = 0x82
	RequestCodeGetMax    RequestCode = 0x83
	RequestCodeGetRes    RequestCode = 0x84
	RequestCodeGetLen    RequestCode = 0x85
	RequestCodeGetInfo   RequestCode = 0x86
	RequestCodeGetDef    RequestCode = 0x87
	RequestCodeGetCurAll RequestCode = 0x91
	RequestCodeGetMinAll RequestCode = 0x92
	RequestCodeGetMaxAll RequestCode = 0x93
	RequestCodeGetResAll RequestCode = 0x94
	RequestCodeGetDefAll RequestCode = 0x97
)

// IsGet reports whether the request moves data from the device to the host.
func (c RequestCode) IsGet() bool {
	return c&0x80 != 0
}

func (c RequestCode) String() string {
	switch c {
	case RequestCodeSetCur:
		return "SET_CUR"
	case RequestCodeGetCur:
		return "GET_CUR"
	case RequestCodeGetMin:
		return "GET_MIN"
	case RequestCodeGetMax:
		return "GET_MAX"
	case RequestCodeGetRes:
		return "GET_RES"
	case RequestCodeGetLen:
		return "GET_LEN"
	case RequestCodeGetInfo:
		return "GET_INFO"
	case RequestCodeGetDef:
		return "GET_DEF"
	}
	return "UNDEFINED"
}

// VideoControlSelector addresses interface-level controls of the VideoControl
// interface.
type VideoControlSelector uint8

const (
	VideoControlSelectorUndefined        VideoControlSelector = 0x00
	VideoControlSelectorVideoPowerMode   VideoControlSelector = 0x01
	VideoControlSelectorRequestErrorCode VideoControlSelector = 0x02
)

// VideoStreamingSelector addresses controls of a VideoStreaming interface.
type VideoStreamingSelector uint8

const (
	VideoStreamingSelectorUndefined VideoStreamingSelector = 0x00
	VideoStreamingSelectorProbe     VideoStreamingSelector = 0x01
	VideoStreamingSelectorCommit    VideoStreamingSelector = 0x02
)

const (
	standardRequestGetDescriptor = 0x06
	descriptorTypeConfiguration  = 0x02
)
