package controls

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/descriptors/descriptorstest"
	"github.com/kevmo314/go-uvchost/pkg/host/hosttest"
	"github.com/kevmo314/go-uvchost/pkg/requests"
	"github.com/kevmo314/go-uvchost/pkg/topology"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// unit ids of descriptorstest.Camera
const (
	cameraUnit     = 1
	processingUnit = 2
	extensionUnit  = 3
)

var xuGUID = uuid.MustParse("28f03370-6311-4a2e-ba2c-6890eb334016")

type fixture struct {
	host  *hosttest.Controller
	chain *Chain
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	cfg, err := descriptors.ParseConfiguration(descriptorstest.Camera())
	require.NoError(t, err)
	g, err := topology.FromDescriptors(cfg.VideoControl(), zerolog.Nop())
	require.NoError(t, err)
	chains, err := topology.Build(g, zerolog.Nop())
	require.NoError(t, err)

	h := hosttest.NewController()
	opts.Log = zerolog.Nop()
	return &fixture{host: h, chain: New(chains[0], requests.NewClient(h), 0, opts)}
}

func (f *fixture) reg(code requests.RequestCode, unit, selector uint8, data ...byte) {
	f.host.Set(uint8(code), uint16(selector)<<8, uint16(unit)<<8, data)
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	require.NoError(t, f.chain.Init(context.Background()))
}

// brightnessRange sets up brightness as 0..10 in steps of 2, default 4.
func (f *fixture) brightnessRange() {
	sel := uint8(descriptors.ProcessingUnitBrightnessControl)
	f.reg(requests.RequestCodeGetMin, processingUnit, sel, 0, 0)
	f.reg(requests.RequestCodeGetMax, processingUnit, sel, 10, 0)
	f.reg(requests.RequestCodeGetRes, processingUnit, sel, 2, 0)
	f.reg(requests.RequestCodeGetDef, processingUnit, sel, 4, 0)
}

func TestInit(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)

	all := f.chain.Controls()
	assert.Len(t, all, 19)
	supported := 0
	for _, ctl := range all {
		if ctl.Supported() {
			supported++
			assert.NotEqual(t, topology.KindExtensionUnit, ctl.Entity.Kind)
		}
	}
	assert.Equal(t, 11, supported)
	assert.Equal(t, 11, f.host.Count(uint8(requests.RequestCodeGetInfo)))

	assert.Equal(t, []ID{
		IDExposureAuto, IDExposureAbsolute, IDZoomAbsolute, IDZoomContinuous, IDFocusAuto,
		IDBrightness, IDContrast, IDSaturation, IDSharpness, IDWhiteBalanceTemperature, IDAutoWhiteBalance,
	}, f.chain.IDs())
}

func TestGetInfoRefinesFlags(t *testing.T) {
	f := newFixture(t, Options{})
	f.reg(requests.RequestCodeGetInfo, processingUnit, uint8(descriptors.ProcessingUnitBrightnessControl), 0x01)
	f.init(t)
	f.brightnessRange()
	ctx := context.Background()

	q, err := f.chain.Query(ctx, ClassUser, IDBrightness)
	require.NoError(t, err)
	assert.NotZero(t, q.Flags&QueryFlagReadOnly)

	f.chain.Begin()
	err = f.chain.Set(ctx, ClassUser, IDBrightness, 2)
	require.NoError(t, f.chain.Commit(ctx, true))
	assert.ErrorIs(t, err, uvcerr.ErrNotSupported)
}

func TestPopulateOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	f.host.Reset()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		q, err := f.chain.Query(ctx, 0, IDBrightness)
		require.NoError(t, err)
		assert.Equal(t, Query{ID: IDBrightness, Type: TypeInteger, Name: "Brightness", Minimum: 0, Maximum: 10, Step: 2, Default: 4}, q)
	}
	for _, code := range []requests.RequestCode{
		requests.RequestCodeGetDef, requests.RequestCodeGetMin, requests.RequestCodeGetMax, requests.RequestCodeGetRes,
	} {
		assert.Equal(t, 1, f.host.Count(uint8(code)), code.String())
	}
}

func TestSetThenGetBeforeCommit(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	ctx := context.Background()

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 6))
	f.host.Reset()
	v, err := f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, err)
	assert.EqualValues(t, 6, v)
	assert.Empty(t, f.host.Calls())

	require.NoError(t, f.chain.Commit(ctx, false))
	assert.Equal(t, 1, f.host.Count(uint8(requests.RequestCodeSetCur)))
	assert.Equal(t, []byte{6, 0}, f.host.Register(uint8(requests.RequestCodeSetCur), 0x02<<8, processingUnit<<8))
}

func TestSetRounding(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	ctx := context.Background()

	f.chain.Begin()
	defer f.chain.Commit(ctx, true)

	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 5))
	v, err := f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, err)
	assert.Contains(t, []int32{4, 6}, v)

	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 10))
	v, err = f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, err)
	assert.EqualValues(t, 10, v)

	assert.ErrorIs(t, f.chain.Set(ctx, ClassUser, IDBrightness, 11), uvcerr.ErrRange)
	assert.ErrorIs(t, f.chain.Set(ctx, ClassUser, IDBrightness, -1), uvcerr.ErrRange)
}

func TestUnsignedRangeAboveInt32(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	exposure := uint8(descriptors.CameraTerminalControlSelectorExposureTimeAbsoluteControl)
	f.reg(requests.RequestCodeGetMin, cameraUnit, exposure, 0x01, 0x00, 0x00, 0x00)
	f.reg(requests.RequestCodeGetMax, cameraUnit, exposure, 0x00, 0x00, 0x00, 0x90)
	f.reg(requests.RequestCodeGetRes, cameraUnit, exposure, 0x01, 0x00, 0x00, 0x00)
	f.reg(requests.RequestCodeGetDef, cameraUnit, exposure, 0x9c, 0x00, 0x00, 0x00)
	f.reg(requests.RequestCodeGetCur, cameraUnit, uint8(descriptors.CameraTerminalControlSelectorAutoExposureModeControl), 0x01)
	ctx := context.Background()

	q, err := f.chain.Query(ctx, ClassCamera, IDExposureAbsolute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, q.Minimum)
	assert.EqualValues(t, math.MaxInt32, q.Maximum)
	assert.EqualValues(t, 156, q.Default)

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassCamera, IDExposureAbsolute, 1000000))
	assert.ErrorIs(t, f.chain.Set(ctx, ClassCamera, IDExposureAbsolute, 0), uvcerr.ErrRange)
	require.NoError(t, f.chain.Commit(ctx, false))
	assert.Equal(t, []byte{0x40, 0x42, 0x0f, 0x00}, f.host.Register(uint8(requests.RequestCodeSetCur), uint16(exposure)<<8, cameraUnit<<8))
}

func TestWrongClass(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)

	_, err := f.chain.Query(context.Background(), ClassCamera, IDBrightness)
	assert.ErrorIs(t, err, uvcerr.ErrInvalidArgument)
	_, err = f.chain.Query(context.Background(), 0, IDGamma)
	assert.ErrorIs(t, err, uvcerr.ErrInvalidArgument)
}

func TestRollback(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	f.reg(requests.RequestCodeGetCur, processingUnit, 0x02, 8, 0)
	ctx := context.Background()

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 2))
	require.NoError(t, f.chain.Commit(ctx, true))
	assert.Zero(t, f.host.Count(uint8(requests.RequestCodeSetCur)))

	// the staged value is gone and the device value is read back
	f.chain.Begin()
	v, err := f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, f.chain.Commit(ctx, true))
	require.NoError(t, err)
	assert.EqualValues(t, 8, v)
}

func TestCommitFailureRestoresBackup(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	f.reg(requests.RequestCodeGetCur, processingUnit, 0x02, 8, 0)
	f.host.Stall(uint8(requests.RequestCodeSetCur), 0x02<<8, processingUnit<<8)
	ctx := context.Background()

	f.chain.Begin()
	_, err := f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, err)
	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 2))
	err = f.chain.Commit(ctx, false)
	assert.ErrorIs(t, err, uvcerr.ErrIO)

	f.host.Reset()
	f.chain.Begin()
	v, err := f.chain.Get(ctx, ClassUser, IDBrightness)
	require.NoError(t, f.chain.Commit(ctx, true))
	require.NoError(t, err)
	assert.EqualValues(t, 8, v)
	// the backup was loaded, so no device read was needed
	assert.Zero(t, f.host.Count(uint8(requests.RequestCodeGetCur)))
}

func TestBitmaskMenu(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	sel := uint8(descriptors.CameraTerminalControlSelectorAutoExposureModeControl)
	f.reg(requests.RequestCodeGetDef, cameraUnit, sel, 0x02)
	f.reg(requests.RequestCodeGetRes, cameraUnit, sel, 0x03)
	f.reg(requests.RequestCodeGetCur, cameraUnit, sel, 0xf2)
	ctx := context.Background()

	q, err := f.chain.Query(ctx, ClassCamera, IDExposureAuto)
	require.NoError(t, err)
	assert.Equal(t, TypeMenu, q.Type)
	assert.EqualValues(t, 0, q.Minimum)
	assert.EqualValues(t, 3, q.Maximum)
	assert.EqualValues(t, 1, q.Step)
	assert.EqualValues(t, 0, q.Default)

	e, err := f.chain.QueryMenu(ctx, ClassCamera, IDExposureAuto, 1)
	require.NoError(t, err)
	assert.Equal(t, "Manual Mode", e.Name)
	_, err = f.chain.QueryMenu(ctx, ClassCamera, IDExposureAuto, 2)
	assert.ErrorIs(t, err, uvcerr.ErrInvalidArgument)
	_, err = f.chain.QueryMenu(ctx, ClassCamera, IDExposureAuto, 4)
	assert.ErrorIs(t, err, uvcerr.ErrNotFound)
	_, err = f.chain.QueryMenu(ctx, ClassUser, IDBrightness, 0)
	assert.ErrorIs(t, err, uvcerr.ErrInvalidArgument)

	f.chain.Begin()
	assert.ErrorIs(t, f.chain.Set(ctx, ClassCamera, IDExposureAuto, 2), uvcerr.ErrNotSupported)
	assert.ErrorIs(t, f.chain.Set(ctx, ClassCamera, IDExposureAuto, 4), uvcerr.ErrRange)
	require.NoError(t, f.chain.Set(ctx, ClassCamera, IDExposureAuto, 1))
	v, err := f.chain.Get(ctx, ClassCamera, IDExposureAuto)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
	require.NoError(t, f.chain.Commit(ctx, false))

	// the high nibble read from the device is preserved
	assert.Equal(t, []byte{0xf1}, f.host.Register(uint8(requests.RequestCodeSetCur), uint16(sel)<<8, cameraUnit<<8))
}

func TestMasterInactive(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	temp := uint8(descriptors.ProcessingUnitWhiteBalanceTemperatureControl)
	auto := uint8(descriptors.ProcessingUnitWhiteBalanceTemperatureAutoControl)
	f.reg(requests.RequestCodeGetMin, processingUnit, temp, 0xc4, 0x09)
	f.reg(requests.RequestCodeGetMax, processingUnit, temp, 0x64, 0x19)
	f.reg(requests.RequestCodeGetRes, processingUnit, temp, 0x0a, 0x00)
	f.reg(requests.RequestCodeGetDef, processingUnit, temp, 0x88, 0x13)
	f.reg(requests.RequestCodeGetDef, processingUnit, auto, 0x01)
	f.reg(requests.RequestCodeGetCur, processingUnit, auto, 0x01)
	ctx := context.Background()

	q, err := f.chain.Query(ctx, ClassUser, IDWhiteBalanceTemperature)
	require.NoError(t, err)
	assert.NotZero(t, q.Flags&QueryFlagInactive)
	assert.EqualValues(t, 2500, q.Minimum)
	assert.EqualValues(t, 6500, q.Maximum)
	assert.EqualValues(t, 5000, q.Default)

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassUser, IDAutoWhiteBalance, 0))
	require.NoError(t, f.chain.Commit(ctx, false))

	q, err = f.chain.Query(ctx, ClassUser, IDWhiteBalanceTemperature)
	require.NoError(t, err)
	assert.Zero(t, q.Flags&QueryFlagInactive)
}

func TestRelativeZoom(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	sel := uint8(descriptors.CameraTerminalControlSelectorZoomRelativeControl)
	f.reg(requests.RequestCodeGetMin, cameraUnit, sel, 0xff, 0x01, 0x07)
	f.reg(requests.RequestCodeGetMax, cameraUnit, sel, 0x01, 0x01, 0x07)
	f.reg(requests.RequestCodeGetRes, cameraUnit, sel, 0x01, 0x01, 0x01)
	f.reg(requests.RequestCodeGetDef, cameraUnit, sel, 0x00, 0x01, 0x01)
	ctx := context.Background()

	q, err := f.chain.Query(ctx, ClassCamera, IDZoomContinuous)
	require.NoError(t, err)
	assert.EqualValues(t, -7, q.Minimum)
	assert.EqualValues(t, 7, q.Maximum)
	assert.EqualValues(t, 1, q.Step)
	assert.NotZero(t, q.Flags&QueryFlagWriteOnly)

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassCamera, IDZoomContinuous, -3))
	_, err = f.chain.Get(ctx, ClassCamera, IDZoomContinuous)
	assert.ErrorIs(t, err, uvcerr.ErrNotSupported)
	require.NoError(t, f.chain.Commit(ctx, false))
	assert.Equal(t, []byte{0xff, 0x00, 0x03}, f.host.Register(uint8(requests.RequestCodeSetCur), uint16(sel)<<8, cameraUnit<<8))

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassCamera, IDZoomContinuous, 0))
	require.NoError(t, f.chain.Commit(ctx, false))
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, f.host.Register(uint8(requests.RequestCodeSetCur), uint16(sel)<<8, cameraUnit<<8))
}

func TestRestoreOnResume(t *testing.T) {
	f := newFixture(t, Options{})
	f.init(t)
	f.brightnessRange()
	ctx := context.Background()

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassUser, IDBrightness, 4))
	require.NoError(t, f.chain.Commit(ctx, false))

	f.host.Reset()
	require.NoError(t, f.chain.RestoreOnResume(ctx))
	calls := f.host.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, uint8(requests.RequestCodeSetCur), calls[0].Request)
	assert.Equal(t, []byte{4, 0}, calls[0].Data)
}

func TestExtensionPassThrough(t *testing.T) {
	id := ID(0x0098f001)
	f := newFixture(t, Options{Extensions: []Extension{{
		Info: Info{Entity: xuGUID, Index: 0, Selector: 0x01, Size: 2, Flags: FlagSetCur | FlagGetRange},
		Mappings: []Mapping{
			{ID: id, Name: "Vendor Knob", Size: 16, Type: TypeInteger, DataType: DataTypeUnsigned},
		},
	}}})
	f.init(t)
	f.reg(requests.RequestCodeGetMin, extensionUnit, 0x01, 0, 0)
	f.reg(requests.RequestCodeGetMax, extensionUnit, 0x01, 10, 0)
	f.reg(requests.RequestCodeGetDef, extensionUnit, 0x01, 3, 0)
	ctx := context.Background()

	for _, call := range f.host.Calls() {
		if call.Request == uint8(requests.RequestCodeGetInfo) {
			assert.NotEqual(t, uint16(extensionUnit<<8), call.Index, "extension units get no GET_INFO")
		}
	}

	// GET_RES stalls on the extension unit and reads as step 0
	q, err := f.chain.Query(ctx, ClassUser, id)
	require.NoError(t, err)
	assert.Equal(t, "Vendor Knob", q.Name)
	assert.EqualValues(t, 0, q.Step)

	f.chain.Begin()
	require.NoError(t, f.chain.Set(ctx, ClassUser, id, 5))
	require.NoError(t, f.chain.Commit(ctx, false))
	assert.Equal(t, []byte{5, 0}, f.host.Register(uint8(requests.RequestCodeSetCur), 0x01<<8, extensionUnit<<8))
}
