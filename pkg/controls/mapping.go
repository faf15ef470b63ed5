package controls

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/kevmo314/go-uvchost/pkg/bitfield"
	"github.com/kevmo314/go-uvchost/pkg/requests"
)

// ID is a V4L2 control id.
type ID uint32

// Class is the V4L2 control class an ID belongs to.
type Class uint32

const (
	ClassUser   Class = 0x00980000
	ClassCamera Class = 0x009a0000
)

func (id ID) Class() Class {
	return Class(id & 0x0fff0000)
}

const (
	cidBase       ID = 0x00980900
	cidCameraBase ID = 0x009a0900
)

const (
	IDBrightness              = cidBase + 0
	IDContrast                = cidBase + 1
	IDSaturation              = cidBase + 2
	IDHue                     = cidBase + 3
	IDAutoWhiteBalance        = cidBase + 12
	IDRedBalance              = cidBase + 14
	IDBlueBalance             = cidBase + 15
	IDGamma                   = cidBase + 16
	IDGain                    = cidBase + 19
	IDPowerLineFrequency      = cidBase + 24
	IDHueAuto                 = cidBase + 25
	IDWhiteBalanceTemperature = cidBase + 26
	IDSharpness               = cidBase + 27
	IDBacklightCompensation   = cidBase + 28

	IDExposureAuto         = cidCameraBase + 1
	IDExposureAbsolute     = cidCameraBase + 2
	IDExposureAutoPriority = cidCameraBase + 3
	IDFocusAbsolute        = cidCameraBase + 10
	IDFocusAuto            = cidCameraBase + 12
	IDZoomAbsolute         = cidCameraBase + 13
	IDZoomContinuous       = cidCameraBase + 15
	IDIrisAbsolute         = cidCameraBase + 17
	IDIrisRelative         = cidCameraBase + 18
)

// Type is the V4L2 control type reported to the front end.
type Type uint8

const (
	TypeInteger Type = 1
	TypeBoolean Type = 2
	TypeMenu    Type = 3
	TypeButton  Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "int"
	case TypeBoolean:
		return "bool"
	case TypeMenu:
		return "menu"
	case TypeButton:
		return "button"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// DataType is the interpretation of the raw bits of a mapping.
type DataType uint8

const (
	DataTypeRaw DataType = iota
	DataTypeSigned
	DataTypeUnsigned
	DataTypeBoolean
	DataTypeEnum
	DataTypeBitmask
)

// Encoding selects how a mapping packs its value into the control buffer.
type Encoding uint8

const (
	// EncodingBits stores the value in Size bits at Offset.
	EncodingBits Encoding = iota
	// EncodingRelativeSpeed splits a signed speed into a direction byte and a
	// speed byte, as the relative zoom control does.
	EncodingRelativeSpeed
)

type MenuEntry struct {
	Value uint32
	Name  string
}

// Mapping exposes a bit range of a UVC control as a V4L2 control.
type Mapping struct {
	ID       ID
	Name     string
	Entity   uuid.UUID
	Selector uint8
	Size     int
	Offset   int
	Type     Type
	DataType DataType
	Encoding Encoding
	Menu     []MenuEntry

	// Master, when set, names the control that switches this one between
	// automatic and manual operation. The mapping is inactive unless the
	// master reads MasterManual.
	Master       ID
	MasterManual int32
}

// get decodes the mapping from the buffer returned by query.
func (m *Mapping) get(query requests.RequestCode, data []byte) int32 {
	if m.Encoding == EncodingRelativeSpeed {
		if len(data) < 3 {
			return 0
		}
		speed := int32(data[2])
		switch query {
		case requests.RequestCodeGetCur:
			switch {
			case data[0] == 0:
				return 0
			case int8(data[0]) > 0:
				return speed
			}
			return -speed
		case requests.RequestCodeGetMin:
			return -speed
		}
		return speed
	}
	v := bitfield.Get(data, m.Offset, m.Size)
	if m.DataType == DataTypeSigned {
		return bitfield.SignExtend(v, m.Size)
	}
	return int32(v)
}

// wide is get without the int32 wrap of unsigned 32-bit fields.
func (m *Mapping) wide(query requests.RequestCode, data []byte) int64 {
	if m.Encoding == EncodingRelativeSpeed || m.DataType == DataTypeSigned {
		return int64(m.get(query, data))
	}
	return int64(bitfield.Get(data, m.Offset, m.Size))
}

// clamp32 saturates v to the int32 range of the control API.
func clamp32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// set encodes v into data, leaving bits outside the mapping untouched.
func (m *Mapping) set(v int32, data []byte) {
	if m.Encoding == EncodingRelativeSpeed {
		if len(data) < 3 {
			return
		}
		switch {
		case v == 0:
			data[0] = 0
		case v > 0:
			data[0] = 1
		default:
			data[0] = 0xff
			v = -v
		}
		if v > 0xff {
			v = 0xff
		}
		data[2] = byte(v)
		return
	}
	if m.Type == TypeButton {
		v = -1
	}
	bitfield.Set(data, m.Offset, m.Size, uint32(v))
}

// menuIndex translates a raw menu value into its menu index. Values that no
// entry carries are returned unchanged.
func (m *Mapping) menuIndex(v int32) int32 {
	for i, e := range m.Menu {
		if e.Value == uint32(v) {
			return int32(i)
		}
	}
	return v
}
