// Package controls maps the UVC controls of a video chain onto V4L2 style
// controls. Values are read from the device lazily and cached per control.
package controls

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/bitfield"
	"github.com/kevmo314/go-uvchost/pkg/requests"
	"github.com/kevmo314/go-uvchost/pkg/topology"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// GET_INFO capability bits.
const (
	infoGet        = 1 << 0
	infoSet        = 1 << 1
	infoDisabled   = 1 << 2
	infoAutoUpdate = 1 << 3
	infoAsync      = 1 << 4
)

// Query flags, as in V4L2_CTRL_FLAG_*.
type QueryFlags uint32

const (
	QueryFlagDisabled  QueryFlags = 0x0001
	QueryFlagReadOnly  QueryFlags = 0x0004
	QueryFlagInactive  QueryFlags = 0x0010
	QueryFlagWriteOnly QueryFlags = 0x0040
	QueryFlagVolatile  QueryFlags = 0x0080
)

// Control is one bit of an entity's bmControls. A control matched by a
// capability entry is supported and owns one buffer per request kind.
type Control struct {
	Entity   *topology.Entity
	Index    int
	Info     Info
	Mappings []*Mapping

	supported bool
	disabled  bool
	// cached is set once the range values have been read.
	cached bool
	// loaded is set while cur mirrors the device value.
	loaded bool
	// dirty is set between a local Set and the next Commit.
	dirty    bool
	modified bool
	// loaded state to return to on rollback
	backupLoaded bool

	cur, backup, min, max, res, def []byte
}

func (ctl *Control) Supported() bool {
	return ctl.supported
}

func (ctl *Control) String() string {
	return fmt.Sprintf("%s control %d (selector %#02x)", ctl.Entity, ctl.Index, ctl.Info.Selector)
}

func (ctl *Control) buffer(code requests.RequestCode) []byte {
	switch code {
	case requests.RequestCodeGetMin:
		return ctl.min
	case requests.RequestCodeGetMax:
		return ctl.max
	case requests.RequestCodeGetRes:
		return ctl.res
	case requests.RequestCodeGetDef:
		return ctl.def
	}
	return ctl.cur
}

func (ctl *Control) value(m *Mapping, code requests.RequestCode) int32 {
	return m.get(code, ctl.buffer(code))
}

func (ctl *Control) wide(m *Mapping, code requests.RequestCode) int64 {
	return m.wide(code, ctl.buffer(code))
}

// Extension describes a vendor control on an extension unit. The entry is
// trusted as given; extension units are never asked for GET_INFO.
type Extension struct {
	Info     Info
	Mappings []Mapping
}

type Options struct {
	Log        zerolog.Logger
	Extensions []Extension
}

// Chain owns the controls of the entities of one video chain. Get, Set and
// Commit form a transaction opened with Begin.
type Chain struct {
	chain  *topology.Chain
	client *requests.Client
	iface  uint8
	log    zerolog.Logger
	exts   []Extension

	mu       sync.Mutex
	controls []*Control
}

// New binds the controls of chain, reached through the VideoControl
// interface iface.
func New(chain *topology.Chain, client *requests.Client, iface uint8, opts Options) *Chain {
	return &Chain{
		chain:  chain,
		client: client,
		iface:  iface,
		log:    opts.Log,
		exts:   opts.Extensions,
	}
}

// Controls lists every control of the chain, supported or not, in chain
// order.
func (c *Chain) Controls() []*Control {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Control(nil), c.controls...)
}

// Init creates one control per bit set in each entity's bmControls and
// refines the capabilities of standard controls with GET_INFO.
func (c *Chain) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.controls = nil
	for _, e := range c.chain.Entities {
		for i := 0; i < len(e.Controls)*8; i++ {
			if !bitfield.Test(e.Controls, i) {
				continue
			}
			ctl := &Control{Entity: e, Index: i}
			c.controls = append(c.controls, ctl)
			if e.Kind == topology.KindExtensionUnit {
				c.initExtension(ctl)
				continue
			}
			if err := c.initStandard(ctx, ctl); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Chain) initStandard(ctx context.Context, ctl *Control) error {
	for _, info := range infos {
		if info.Entity == ctl.Entity.GUID && info.Index == ctl.Index {
			c.addInfo(ctl, info)
			break
		}
	}
	if !ctl.supported {
		return nil
	}
	for i := range mappings {
		if mappings[i].Entity == ctl.Entity.GUID && mappings[i].Selector == ctl.Info.Selector {
			ctl.Mappings = append(ctl.Mappings, &mappings[i])
		}
	}

	data := make([]byte, 1)
	if err := c.client.Query(ctx, requests.RequestCodeGetInfo, ctl.Entity.ID, c.iface, ctl.Info.Selector, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Debug().Err(err).Stringer("control", ctl).Msg("[controls] GET_INFO failed, keeping static flags")
		return nil
	}
	flags := ctl.Info.Flags &^ (FlagGetCur | FlagSetCur)
	if data[0]&infoGet != 0 {
		flags |= FlagGetCur
	}
	if data[0]&infoSet != 0 {
		flags |= FlagSetCur
	}
	if data[0]&infoAutoUpdate != 0 {
		flags |= FlagAutoUpdate
	}
	if data[0]&infoAsync != 0 {
		flags |= FlagAsync
	}
	ctl.Info.Flags = flags
	ctl.disabled = data[0]&infoDisabled != 0
	c.log.Trace().Stringer("control", ctl).Uint8("info", data[0]).Msg("[controls] GET_INFO")
	return nil
}

func (c *Chain) initExtension(ctl *Control) {
	for _, ext := range c.exts {
		if ext.Info.Entity != ctl.Entity.GUID || ext.Info.Index != ctl.Index {
			continue
		}
		c.addInfo(ctl, ext.Info)
		for i := range ext.Mappings {
			m := ext.Mappings[i]
			m.Entity = ctl.Entity.GUID
			m.Selector = ext.Info.Selector
			ctl.Mappings = append(ctl.Mappings, &m)
		}
		return
	}
}

func (c *Chain) addInfo(ctl *Control, info Info) {
	ctl.Info = info
	ctl.cur = make([]byte, info.Size)
	ctl.backup = make([]byte, info.Size)
	ctl.min = make([]byte, info.Size)
	ctl.max = make([]byte, info.Size)
	ctl.res = make([]byte, info.Size)
	ctl.def = make([]byte, info.Size)
	ctl.supported = true
}

func (c *Chain) query(ctx context.Context, ctl *Control, code requests.RequestCode, data []byte) error {
	return c.client.Query(ctx, code, ctl.Entity.ID, c.iface, ctl.Info.Selector, data)
}

// populate reads the range values of ctl once. A failure leaves the control
// unsupported, except a GET_RES failure on an extension unit which reads as a
// zero step.
func (c *Chain) populate(ctx context.Context, ctl *Control) error {
	if ctl.cached {
		return nil
	}
	steps := []struct {
		flag Flags
		code requests.RequestCode
	}{
		{FlagGetDef, requests.RequestCodeGetDef},
		{FlagGetMin, requests.RequestCodeGetMin},
		{FlagGetMax, requests.RequestCodeGetMax},
		{FlagGetRes, requests.RequestCodeGetRes},
	}
	for _, s := range steps {
		if ctl.Info.Flags&s.flag == 0 {
			continue
		}
		buf := ctl.buffer(s.code)
		if err := c.query(ctx, ctl, s.code, buf); err != nil {
			if s.code == requests.RequestCodeGetRes && ctl.Entity.Kind == topology.KindExtensionUnit {
				clear(buf)
				continue
			}
			ctl.supported = false
			return fmt.Errorf("%s: %w", ctl, err)
		}
	}
	ctl.cached = true
	return nil
}

// find returns the first supported control of the chain with a mapping for
// id. A zero class matches any class.
func (c *Chain) find(id ID, class Class) (*Control, *Mapping, error) {
	if class != 0 && id.Class() != class {
		return nil, nil, fmt.Errorf("control %#08x not in class %#08x: %w", uint32(id), uint32(class), uvcerr.ErrInvalidArgument)
	}
	for _, ctl := range c.controls {
		if !ctl.supported {
			continue
		}
		for _, m := range ctl.Mappings {
			if m.ID == id {
				return ctl, m, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("control %#08x: %w", uint32(id), uvcerr.ErrInvalidArgument)
}

// IDs returns the V4L2 ids exposed by the chain, in chain order, each once.
func (c *Chain) IDs() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[ID]bool)
	var ids []ID
	for _, ctl := range c.controls {
		if !ctl.supported {
			continue
		}
		for _, m := range ctl.Mappings {
			if !seen[m.ID] {
				seen[m.ID] = true
				ids = append(ids, m.ID)
			}
		}
	}
	return ids
}

// Query describes a control the way VIDIOC_QUERYCTRL does.
type Query struct {
	ID      ID
	Type    Type
	Name    string
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   QueryFlags
}

// Query returns the type, name, range and flags of control id.
func (c *Chain) Query(ctx context.Context, class Class, id ID) (Query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctl, m, err := c.find(id, class)
	if err != nil {
		return Query{}, err
	}
	q := Query{ID: m.ID, Type: m.Type, Name: m.Name}
	if ctl.Info.Flags&FlagGetCur == 0 {
		q.Flags |= QueryFlagWriteOnly
	}
	if ctl.Info.Flags&FlagSetCur == 0 {
		q.Flags |= QueryFlagReadOnly
	}
	if ctl.Info.Flags&FlagAutoUpdate != 0 {
		q.Flags |= QueryFlagVolatile
	}
	if ctl.disabled {
		q.Flags |= QueryFlagDisabled
	}

	if m.Master != 0 {
		master, mm, err := c.find(m.Master, 0)
		if err == nil && master.Info.Flags&FlagGetCur != 0 {
			v, err := c.get(ctx, master, mm)
			if err != nil {
				return Query{}, err
			}
			if v != m.MasterManual {
				q.Flags |= QueryFlagInactive
			}
		}
	}

	if err := c.populate(ctx, ctl); err != nil {
		return Query{}, err
	}
	if ctl.Info.Flags&FlagGetDef != 0 {
		q.Default = clamp32(ctl.wide(m, requests.RequestCodeGetDef))
	}

	switch m.Type {
	case TypeMenu:
		q.Minimum, q.Maximum, q.Step = 0, int32(len(m.Menu))-1, 1
		q.Default = m.menuIndex(ctl.value(m, requests.RequestCodeGetDef))
		return q, nil
	case TypeBoolean:
		q.Minimum, q.Maximum, q.Step = 0, 1, 1
		return q, nil
	case TypeButton:
		q.Minimum, q.Maximum, q.Step = 0, 0, 0
		return q, nil
	}
	if ctl.Info.Flags&FlagGetMin != 0 {
		q.Minimum = clamp32(ctl.wide(m, requests.RequestCodeGetMin))
	}
	if ctl.Info.Flags&FlagGetMax != 0 {
		q.Maximum = clamp32(ctl.wide(m, requests.RequestCodeGetMax))
	}
	if ctl.Info.Flags&FlagGetRes != 0 {
		q.Step = clamp32(ctl.wide(m, requests.RequestCodeGetRes))
	}
	return q, nil
}

// QueryMenu returns entry index of a menu control. Bitmask menus hide the
// entries the device's resolution mask does not allow.
func (c *Chain) QueryMenu(ctx context.Context, class Class, id ID, index int) (MenuEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctl, m, err := c.find(id, class)
	if err != nil {
		return MenuEntry{}, err
	}
	if m.Type != TypeMenu {
		return MenuEntry{}, fmt.Errorf("control %#08x is not a menu: %w", uint32(id), uvcerr.ErrInvalidArgument)
	}
	if index < 0 || index >= len(m.Menu) {
		return MenuEntry{}, fmt.Errorf("menu %#08x index %d: %w", uint32(id), index, uvcerr.ErrNotFound)
	}
	entry := m.Menu[index]
	if m.DataType == DataTypeBitmask && ctl.Info.Flags&FlagGetRes != 0 {
		if err := c.populate(ctx, ctl); err != nil {
			return MenuEntry{}, err
		}
		mask := uint32(ctl.value(m, requests.RequestCodeGetRes))
		if mask&entry.Value == 0 {
			return MenuEntry{}, fmt.Errorf("menu %#08x index %d not supported by the device: %w", uint32(id), index, uvcerr.ErrInvalidArgument)
		}
	}
	return entry, nil
}

// Begin locks the controls of the chain until the matching Commit.
func (c *Chain) Begin() {
	c.mu.Lock()
}

// get reads the current value of m, loading it from the device when needed.
// Menu values are returned as menu indexes.
func (c *Chain) get(ctx context.Context, ctl *Control, m *Mapping) (int32, error) {
	if ctl.Info.Flags&FlagGetCur == 0 {
		return 0, fmt.Errorf("%s is write-only: %w", ctl, uvcerr.ErrNotSupported)
	}
	if !ctl.loaded {
		if err := c.query(ctx, ctl, requests.RequestCodeGetCur, ctl.cur); err != nil {
			return 0, fmt.Errorf("%s: %w", ctl, err)
		}
		ctl.loaded = true
	}
	if m.Type == TypeMenu {
		return m.menuIndex(ctl.value(m, requests.RequestCodeGetCur)), nil
	}
	return clamp32(ctl.wide(m, requests.RequestCodeGetCur)), nil
}

// Get returns the value of control id. The caller holds Begin.
func (c *Chain) Get(ctx context.Context, class Class, id ID) (int32, error) {
	ctl, m, err := c.find(id, class)
	if err != nil {
		return 0, err
	}
	return c.get(ctx, ctl, m)
}

// Set stages v for control id. The value reaches the device on Commit. The
// caller holds Begin.
func (c *Chain) Set(ctx context.Context, class Class, id ID, v int32) error {
	ctl, m, err := c.find(id, class)
	if err != nil {
		return err
	}
	if ctl.Info.Flags&FlagSetCur == 0 {
		return fmt.Errorf("%s is read-only: %w", ctl, uvcerr.ErrNotSupported)
	}

	switch m.Type {
	case TypeInteger:
		if ctl.Info.Flags&(FlagGetMin|FlagGetMax) == FlagGetMin|FlagGetMax {
			if err := c.populate(ctx, ctl); err != nil {
				return err
			}
			lo := ctl.wide(m, requests.RequestCodeGetMin)
			hi := ctl.wide(m, requests.RequestCodeGetMax)
			step := int64(1)
			if ctl.Info.Flags&FlagGetRes != 0 {
				if s := ctl.wide(m, requests.RequestCodeGetRes); s > 0 {
					step = s
				}
			}
			req := int64(v)
			if req < lo || req > hi {
				return fmt.Errorf("%s: %d outside [%d, %d]: %w", ctl, v, lo, hi, uvcerr.ErrRange)
			}
			rounded := lo + (req-lo+step/2)/step*step
			if rounded > hi {
				rounded = hi
			}
			if rounded > math.MaxInt32 {
				rounded -= step
			}
			v = int32(rounded)
		}
	case TypeBoolean:
		if v < 0 || v > 1 {
			return fmt.Errorf("%s: boolean %d: %w", ctl, v, uvcerr.ErrRange)
		}
	case TypeMenu:
		if v < 0 || int(v) >= len(m.Menu) {
			return fmt.Errorf("%s: menu index %d: %w", ctl, v, uvcerr.ErrRange)
		}
		value := m.Menu[v].Value
		if m.DataType == DataTypeBitmask && ctl.Info.Flags&FlagGetRes != 0 {
			if err := c.populate(ctx, ctl); err != nil {
				return err
			}
			if uint32(ctl.value(m, requests.RequestCodeGetRes))&value == 0 {
				return fmt.Errorf("%s: menu entry %q not allowed by the device: %w", ctl, m.Menu[v].Name, uvcerr.ErrNotSupported)
			}
		}
		v = int32(value)
	}

	wasLoaded := ctl.loaded
	if !ctl.loaded && ctl.Info.Size*8 != m.Size {
		// the mapping covers part of the control, keep the other bits
		if ctl.Info.Flags&FlagGetCur != 0 {
			if err := c.query(ctx, ctl, requests.RequestCodeGetCur, ctl.cur); err != nil {
				return fmt.Errorf("%s: %w", ctl, err)
			}
		} else {
			clear(ctl.cur)
		}
	}
	if !ctl.dirty {
		copy(ctl.backup, ctl.cur)
		ctl.backupLoaded = wasLoaded
	}
	m.set(v, ctl.cur)
	ctl.loaded = true
	ctl.dirty = true
	ctl.modified = true
	return nil
}

// Commit writes every staged control to the device, or discards the staged
// values when rollback is set, and releases the lock taken by Begin. A failed
// write restores the previous value of that control. The first error is
// returned.
func (c *Chain) Commit(ctx context.Context, rollback bool) error {
	defer c.mu.Unlock()
	var first error
	for _, ctl := range c.controls {
		if !ctl.supported {
			continue
		}
		if ctl.Info.Flags&FlagAutoUpdate != 0 || ctl.Info.Flags&FlagGetCur == 0 {
			ctl.loaded = false
		}
		if !ctl.dirty {
			continue
		}
		var err error
		if !rollback {
			err = c.query(ctx, ctl, requests.RequestCodeSetCur, ctl.cur)
		}
		if rollback || err != nil {
			copy(ctl.cur, ctl.backup)
			ctl.loaded = ctl.backupLoaded && ctl.Info.Flags&FlagAutoUpdate == 0 && ctl.Info.Flags&FlagGetCur != 0
		}
		ctl.dirty = false
		if err != nil {
			c.log.Debug().Err(err).Stringer("control", ctl).Msg("[controls] commit failed")
			if first == nil {
				first = fmt.Errorf("%s: %w", ctl, err)
			}
		}
	}
	return first
}

// RestoreOnResume writes back every control changed since connect that the
// device forgets across a suspend.
func (c *Chain) RestoreOnResume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, ctl := range c.controls {
		if !ctl.supported || !ctl.modified || ctl.Info.Flags&FlagRestore == 0 {
			continue
		}
		ctl.dirty = true
		if ctl.Info.Flags&FlagAutoUpdate != 0 || ctl.Info.Flags&FlagGetCur == 0 {
			ctl.loaded = false
		}
		if err := c.query(ctx, ctl, requests.RequestCodeSetCur, ctl.cur); err != nil {
			copy(ctl.cur, ctl.backup)
			c.log.Debug().Err(err).Stringer("control", ctl).Msg("[controls] restore failed")
			if first == nil {
				first = fmt.Errorf("%s: %w", ctl, err)
			}
		}
		ctl.dirty = false
	}
	return first
}
