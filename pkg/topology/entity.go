// Package topology links the terminals and units of a VideoControl interface
// into video chains.
package topology

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
)

type Kind uint8

const (
	KindInputTerminal Kind = iota + 1
	KindOutputTerminal
	KindSelectorUnit
	KindProcessingUnit
	KindExtensionUnit
)

func (k Kind) String() string {
	switch k {
	case KindInputTerminal:
		return "input terminal"
	case KindOutputTerminal:
		return "output terminal"
	case KindSelectorUnit:
		return "selector unit"
	case KindProcessingUnit:
		return "processing unit"
	case KindExtensionUnit:
		return "extension unit"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Entity GUIDs of the standard units. Controls are looked up by the GUID of
// the entity they live on; extension units carry their own code.
var (
	GUIDCamera              = uuid.UUID{15: 0x01}
	GUIDOutput              = uuid.UUID{15: 0x02}
	GUIDMediaTransportInput = uuid.UUID{15: 0x03}
	GUIDProcessing          = uuid.UUID{14: 0x01, 15: 0x01}
	GUIDSelector            = uuid.UUID{14: 0x01, 15: 0x02}
)

// Entity is one terminal or unit. It is immutable once parsed except for its
// chain membership, which Build assigns.
type Entity struct {
	ID           uint8
	Kind         Kind
	TerminalType descriptors.TerminalType
	Name         string
	Sources      []uint8
	// Controls is the bmControls bitmap of the entity.
	Controls []byte
	GUID     uuid.UUID

	chain *Chain
}

func (e *Entity) IsInputTerminal() bool {
	return e.Kind == KindInputTerminal
}

func (e *Entity) IsOutputTerminal() bool {
	return e.Kind == KindOutputTerminal
}

// IsStreaming reports whether e is the USB streaming terminal of a video
// function.
func (e *Entity) IsStreaming() bool {
	return (e.Kind == KindInputTerminal || e.Kind == KindOutputTerminal) &&
		e.TerminalType == descriptors.TerminalTypeStreaming
}

// Chain returns the chain e belongs to, if any.
func (e *Entity) Chain() *Chain {
	return e.chain
}

func (e *Entity) String() string {
	return e.Name
}

// Graph is the parsed content of a VideoControl interface.
type Graph struct {
	UVC                 descriptors.BinaryCodedDecimal
	ClockFrequency      uint32
	StreamingInterfaces []uint8
	Entities            []*Entity
}

// Entity returns the entity with the given id.
func (g *Graph) Entity(id uint8) *Entity {
	for _, e := range g.Entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// FromDescriptors decodes the class-specific descriptors of a VideoControl
// interface. Terminals with a reserved type are dropped; any malformed record
// fails with descriptors.ErrInvalidDescriptor.
func FromDescriptors(vc *descriptors.Interface, log zerolog.Logger) (*Graph, error) {
	g := &Graph{}
	seenHeader := false
	for _, raw := range vc.ClassSpecific {
		desc, err := descriptors.UnmarshalControlInterface(raw)
		if err != nil {
			return nil, fmt.Errorf("video control interface %d: %w", vc.Number, err)
		}
		var e *Entity
		switch d := desc.(type) {
		case *descriptors.HeaderDescriptor:
			seenHeader = true
			g.UVC = d.UVC
			g.ClockFrequency = d.ClockFrequency
			g.StreamingInterfaces = d.VideoStreamingInterfaceIndexes
		case *descriptors.InputTerminalDescriptor:
			if !d.TerminalType.ValidInput() {
				log.Debug().Uint8("id", d.TerminalID).Uint16("type", uint16(d.TerminalType)).Msg("[topology] invalid input terminal type")
				continue
			}
			e = &Entity{
				ID:           d.TerminalID,
				Kind:         KindInputTerminal,
				TerminalType: d.TerminalType,
				Name:         fmt.Sprintf("Input %d", d.TerminalID),
			}
			switch d.TerminalType {
			case descriptors.InputTerminalTypeCamera:
				e.Name = fmt.Sprintf("Camera %d", d.TerminalID)
				e.GUID = GUIDCamera
				if d.Camera != nil {
					e.Controls = d.Camera.ControlsBitmask
				}
			case descriptors.InputTerminalTypeMediaTransportInput:
				e.GUID = GUIDMediaTransportInput
			}
		case *descriptors.OutputTerminalDescriptor:
			if !d.TerminalType.ValidOutput() {
				log.Debug().Uint8("id", d.TerminalID).Uint16("type", uint16(d.TerminalType)).Msg("[topology] invalid output terminal type")
				continue
			}
			e = &Entity{
				ID:           d.TerminalID,
				Kind:         KindOutputTerminal,
				TerminalType: d.TerminalType,
				Name:         fmt.Sprintf("Output %d", d.TerminalID),
				Sources:      []uint8{d.SourceID},
				GUID:         GUIDOutput,
			}
		case *descriptors.SelectorUnitDescriptor:
			e = &Entity{
				ID:      d.UnitID,
				Kind:    KindSelectorUnit,
				Name:    fmt.Sprintf("Selector %d", d.UnitID),
				Sources: d.SourceIDs,
				GUID:    GUIDSelector,
			}
		case *descriptors.ProcessingUnitDescriptor:
			e = &Entity{
				ID:       d.UnitID,
				Kind:     KindProcessingUnit,
				Name:     fmt.Sprintf("Processing %d", d.UnitID),
				Sources:  []uint8{d.SourceID},
				Controls: d.ControlsBitmask,
				GUID:     GUIDProcessing,
			}
		case *descriptors.ExtensionUnitDescriptor:
			e = &Entity{
				ID:       d.UnitID,
				Kind:     KindExtensionUnit,
				Name:     fmt.Sprintf("Extension %d", d.UnitID),
				Sources:  d.SourceIDs,
				Controls: d.ControlsBitmask,
				GUID:     d.GUIDExtensionCode,
			}
		default:
			log.Trace().Uint8("subtype", raw[2]).Msg("[topology] skipped descriptor")
		}
		if e == nil {
			continue
		}
		if e.ID == 0 || g.Entity(e.ID) != nil {
			return nil, fmt.Errorf("%w: duplicate or zero entity id %d", descriptors.ErrInvalidDescriptor, e.ID)
		}
		g.Entities = append(g.Entities, e)
	}
	if !seenHeader {
		return nil, fmt.Errorf("%w: video control interface %d has no header", descriptors.ErrInvalidDescriptor, vc.Number)
	}
	return g, nil
}
