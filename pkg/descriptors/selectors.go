package descriptors

// CameraTerminalControlSelector is the wValue high byte of a request to a
// camera terminal.
type CameraTerminalControlSelector uint8

const (
	CameraTerminalControlSelectorScanningModeControl CameraTerminalControlSelector = iota + 0x01
	CameraTerminalControlSelectorAutoExposureModeControl
	CameraTerminalControlSelectorAutoExposurePriorityControl
	CameraTerminalControlSelectorExposureTimeAbsoluteControl
	CameraTerminalControlSelectorExposureTimeRelativeControl
	CameraTerminalControlSelectorFocusAbsoluteControl
	CameraTerminalControlSelectorFocusRelativeControl
	CameraTerminalControlSelectorFocusAutoControl
	CameraTerminalControlSelectorIrisAbsoluteControl
	CameraTerminalControlSelectorIrisRelativeControl
	CameraTerminalControlSelectorZoomAbsoluteControl
	CameraTerminalControlSelectorZoomRelativeControl
	CameraTerminalControlSelectorPanTiltAbsoluteControl
	CameraTerminalControlSelectorPanTiltRelativeControl
	CameraTerminalControlSelectorRollAbsoluteControl
	CameraTerminalControlSelectorRollRelativeControl
	CameraTerminalControlSelectorPrivacyControl
	CameraTerminalControlSelectorFocusSimpleControl
	CameraTerminalControlSelectorWindowControl
	CameraTerminalControlSelectorRegionOfInterestControl
)

// ProcessingUnitControlSelector is the wValue high byte of a request to a
// processing unit. It is unrelated to the bit of the control in bmControls.
type ProcessingUnitControlSelector uint8

const (
	ProcessingUnitBacklightCompensationControl ProcessingUnitControlSelector = iota + 0x01
	ProcessingUnitBrightnessControl
	ProcessingUnitContrastControl
	ProcessingUnitGainControl
	ProcessingUnitPowerLineFrequencyControl
	ProcessingUnitHueControl
	ProcessingUnitSaturationControl
	ProcessingUnitSharpnessControl
	ProcessingUnitGammaControl
	ProcessingUnitWhiteBalanceTemperatureControl
	ProcessingUnitWhiteBalanceTemperatureAutoControl
	ProcessingUnitWhiteBalanceComponentControl
	ProcessingUnitWhiteBalanceComponentAutoControl
	ProcessingUnitDigitalMultiplierControl
	ProcessingUnitDigitalMultiplierLimitControl
	ProcessingUnitHueAutoControl
	ProcessingUnitAnalogVideoStandardControl
	ProcessingUnitAnalogVideoLockStatusControl
	ProcessingUnitContrastAutoControl
)
