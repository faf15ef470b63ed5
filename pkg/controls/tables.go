package controls

import (
	"github.com/google/uuid"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/topology"
)

// Flags are the request capabilities of a control.
type Flags uint16

const (
	FlagSetCur Flags = 1 << iota
	FlagGetCur
	FlagGetMin
	FlagGetMax
	FlagGetRes
	FlagGetDef
	// FlagRestore controls are written back after a resume.
	FlagRestore
	// FlagAutoUpdate controls may change on the device without a SET_CUR.
	FlagAutoUpdate
	FlagAsync

	FlagGetRange = FlagGetCur | FlagGetMin | FlagGetMax | FlagGetRes | FlagGetDef
)

// Info is the static description of a standard control: the entity it
// lives on, its bit in the entity's bmControls, its selector and size.
type Info struct {
	Entity   uuid.UUID
	Index    int
	Selector uint8
	Size     int
	Flags    Flags
}

func puInfo(index int, sel descriptors.ProcessingUnitControlSelector, size int, flags Flags) Info {
	return Info{Entity: topology.GUIDProcessing, Index: index, Selector: uint8(sel), Size: size, Flags: flags}
}

func ctInfo(index int, sel descriptors.CameraTerminalControlSelector, size int, flags Flags) Info {
	return Info{Entity: topology.GUIDCamera, Index: index, Selector: uint8(sel), Size: size, Flags: flags}
}

const (
	fSetRange     = FlagSetCur | FlagGetRange | FlagRestore
	fSetCurDef    = FlagSetCur | FlagGetCur | FlagGetDef | FlagRestore
	fSetRelative  = FlagSetCur | FlagGetMin | FlagGetMax | FlagGetRes | FlagGetDef | FlagAutoUpdate
	fSetRangeAuto = fSetRange | FlagAutoUpdate
)

var infos = []Info{
	puInfo(0, descriptors.ProcessingUnitBrightnessControl, 2, fSetRange),
	puInfo(1, descriptors.ProcessingUnitContrastControl, 2, fSetRange),
	puInfo(2, descriptors.ProcessingUnitHueControl, 2, fSetRangeAuto),
	puInfo(3, descriptors.ProcessingUnitSaturationControl, 2, fSetRange),
	puInfo(4, descriptors.ProcessingUnitSharpnessControl, 2, fSetRange),
	puInfo(5, descriptors.ProcessingUnitGammaControl, 2, fSetRange),
	puInfo(6, descriptors.ProcessingUnitWhiteBalanceTemperatureControl, 2, fSetRangeAuto),
	puInfo(7, descriptors.ProcessingUnitWhiteBalanceComponentControl, 4, fSetRangeAuto),
	puInfo(8, descriptors.ProcessingUnitBacklightCompensationControl, 2, fSetRange),
	puInfo(9, descriptors.ProcessingUnitGainControl, 2, fSetRange),
	puInfo(10, descriptors.ProcessingUnitPowerLineFrequencyControl, 1, fSetCurDef),
	puInfo(11, descriptors.ProcessingUnitHueAutoControl, 1, fSetCurDef),
	puInfo(12, descriptors.ProcessingUnitWhiteBalanceTemperatureAutoControl, 1, fSetCurDef),
	puInfo(13, descriptors.ProcessingUnitWhiteBalanceComponentAutoControl, 1, fSetCurDef),
	puInfo(14, descriptors.ProcessingUnitDigitalMultiplierControl, 2, fSetRange),
	puInfo(15, descriptors.ProcessingUnitDigitalMultiplierLimitControl, 2, fSetRange),
	puInfo(16, descriptors.ProcessingUnitAnalogVideoStandardControl, 1, FlagGetCur),
	puInfo(17, descriptors.ProcessingUnitAnalogVideoLockStatusControl, 1, FlagGetCur),
	puInfo(18, descriptors.ProcessingUnitContrastAutoControl, 1, FlagSetCur|FlagGetCur|FlagGetDef),

	ctInfo(0, descriptors.CameraTerminalControlSelectorScanningModeControl, 1, FlagSetCur|FlagGetCur|FlagRestore),
	ctInfo(1, descriptors.CameraTerminalControlSelectorAutoExposureModeControl, 1, fSetCurDef|FlagGetRes),
	ctInfo(2, descriptors.CameraTerminalControlSelectorAutoExposurePriorityControl, 1, FlagSetCur|FlagGetCur|FlagRestore),
	ctInfo(3, descriptors.CameraTerminalControlSelectorExposureTimeAbsoluteControl, 4, fSetRangeAuto),
	ctInfo(4, descriptors.CameraTerminalControlSelectorExposureTimeRelativeControl, 1, FlagSetCur|FlagRestore),
	ctInfo(5, descriptors.CameraTerminalControlSelectorFocusAbsoluteControl, 2, fSetRangeAuto),
	ctInfo(6, descriptors.CameraTerminalControlSelectorFocusRelativeControl, 2, fSetRelative),
	ctInfo(7, descriptors.CameraTerminalControlSelectorIrisAbsoluteControl, 2, fSetRangeAuto),
	ctInfo(8, descriptors.CameraTerminalControlSelectorIrisRelativeControl, 1, FlagSetCur|FlagAutoUpdate),
	ctInfo(9, descriptors.CameraTerminalControlSelectorZoomAbsoluteControl, 2, fSetRangeAuto),
	ctInfo(10, descriptors.CameraTerminalControlSelectorZoomRelativeControl, 3, fSetRelative),
	ctInfo(11, descriptors.CameraTerminalControlSelectorPanTiltAbsoluteControl, 8, fSetRangeAuto),
	ctInfo(12, descriptors.CameraTerminalControlSelectorPanTiltRelativeControl, 4, FlagSetCur|FlagGetRange|FlagAutoUpdate),
	ctInfo(13, descriptors.CameraTerminalControlSelectorRollAbsoluteControl, 2, fSetRangeAuto),
	ctInfo(14, descriptors.CameraTerminalControlSelectorRollRelativeControl, 2, fSetRelative),
	ctInfo(17, descriptors.CameraTerminalControlSelectorFocusAutoControl, 1, fSetCurDef),
	ctInfo(18, descriptors.CameraTerminalControlSelectorPrivacyControl, 1, FlagSetCur|FlagGetCur|FlagRestore|FlagAutoUpdate),
	ctInfo(19, descriptors.CameraTerminalControlSelectorFocusSimpleControl, 1, FlagSetCur|FlagGetCur|FlagGetDef),
	ctInfo(20, descriptors.CameraTerminalControlSelectorWindowControl, 2, FlagSetCur|FlagGetCur|FlagGetMin|FlagGetMax|FlagGetDef),
	ctInfo(21, descriptors.CameraTerminalControlSelectorRegionOfInterestControl, 2, FlagSetCur|FlagGetCur|FlagGetMin|FlagGetMax|FlagGetDef),
}

var exposureAutoMenu = []MenuEntry{
	{Value: 2, Name: "Auto Mode"},
	{Value: 1, Name: "Manual Mode"},
	{Value: 4, Name: "Shutter Priority Mode"},
	{Value: 8, Name: "Aperture Priority Mode"},
}

var powerLineFrequencyMenu = []MenuEntry{
	{Value: 0, Name: "Disabled"},
	{Value: 1, Name: "50 Hz"},
	{Value: 2, Name: "60 Hz"},
}

// exposureManual is the index of "Manual Mode" in exposureAutoMenu.
const exposureManual = 1

func pu(sel descriptors.ProcessingUnitControlSelector) uint8 { return uint8(sel) }

func ct(sel descriptors.CameraTerminalControlSelector) uint8 { return uint8(sel) }

var mappings = []Mapping{
	{ID: IDBrightness, Name: "Brightness", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitBrightnessControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeSigned},
	{ID: IDContrast, Name: "Contrast", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitContrastControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDHue, Name: "Hue", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitHueControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeSigned, Master: IDHueAuto, MasterManual: 0},
	{ID: IDSaturation, Name: "Saturation", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitSaturationControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDSharpness, Name: "Sharpness", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitSharpnessControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDGamma, Name: "Gamma", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitGammaControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDBacklightCompensation, Name: "Backlight Compensation", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitBacklightCompensationControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDGain, Name: "Gain", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitGainControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDPowerLineFrequency, Name: "Power Line Frequency", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitPowerLineFrequencyControl),
		Size: 2, Type: TypeMenu, DataType: DataTypeEnum, Menu: powerLineFrequencyMenu},
	{ID: IDHueAuto, Name: "Hue, Auto", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitHueAutoControl),
		Size: 1, Type: TypeBoolean, DataType: DataTypeBoolean},
	{ID: IDAutoWhiteBalance, Name: "White Balance Temperature, Auto", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitWhiteBalanceTemperatureAutoControl),
		Size: 1, Type: TypeBoolean, DataType: DataTypeBoolean},
	{ID: IDWhiteBalanceTemperature, Name: "White Balance Temperature", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitWhiteBalanceTemperatureControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned, Master: IDAutoWhiteBalance, MasterManual: 0},
	{ID: IDAutoWhiteBalance, Name: "White Balance Component, Auto", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitWhiteBalanceComponentAutoControl),
		Size: 1, Type: TypeBoolean, DataType: DataTypeBoolean},
	{ID: IDBlueBalance, Name: "White Balance Blue Component", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitWhiteBalanceComponentControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeSigned, Master: IDAutoWhiteBalance, MasterManual: 0},
	{ID: IDRedBalance, Name: "White Balance Red Component", Entity: topology.GUIDProcessing, Selector: pu(descriptors.ProcessingUnitWhiteBalanceComponentControl),
		Size: 16, Offset: 16, Type: TypeInteger, DataType: DataTypeSigned, Master: IDAutoWhiteBalance, MasterManual: 0},

	{ID: IDFocusAbsolute, Name: "Focus (absolute)", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorFocusAbsoluteControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned, Master: IDFocusAuto, MasterManual: 0},
	{ID: IDFocusAuto, Name: "Focus, Auto", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorFocusAutoControl),
		Size: 1, Type: TypeBoolean, DataType: DataTypeBoolean},
	{ID: IDIrisAbsolute, Name: "Iris, Absolute", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorIrisAbsoluteControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDIrisRelative, Name: "Iris, Relative", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorIrisRelativeControl),
		Size: 8, Type: TypeInteger, DataType: DataTypeSigned},
	{ID: IDZoomAbsolute, Name: "Zoom, Absolute", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorZoomAbsoluteControl),
		Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
	{ID: IDZoomContinuous, Name: "Zoom, Continuous", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorZoomRelativeControl),
		Type: TypeInteger, DataType: DataTypeSigned, Encoding: EncodingRelativeSpeed},
	{ID: IDExposureAuto, Name: "Exposure, Auto", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorAutoExposureModeControl),
		Size: 4, Type: TypeMenu, DataType: DataTypeBitmask, Menu: exposureAutoMenu},
	{ID: IDExposureAutoPriority, Name: "Exposure, Auto Priority", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorAutoExposurePriorityControl),
		Size: 1, Type: TypeBoolean, DataType: DataTypeUnsigned},
	{ID: IDExposureAbsolute, Name: "Exposure (Absolute)", Entity: topology.GUIDCamera, Selector: ct(descriptors.CameraTerminalControlSelectorExposureTimeAbsoluteControl),
		Size: 32, Type: TypeInteger, DataType: DataTypeUnsigned, Master: IDExposureAuto, MasterManual: exposureManual},
}
