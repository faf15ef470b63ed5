package topology

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
)

// ErrNoChain is returned by Build when no output terminal resolves to a
// valid chain.
var ErrNoChain = errors.New("no valid video chain")

// Chain is the set of entities on the path from the input terminals to one
// output terminal, ordered source to sink. It holds at most one processing
// unit and at most one multi-input selector unit.
type Chain struct {
	Entities   []*Entity
	Processing *Entity
	Selector   *Entity
	// Output is the terminal the scan started from.
	Output *Entity
}

// Entity returns the member with the given id.
func (c *Chain) Entity(id uint8) *Entity {
	for _, e := range c.Entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Input returns the first input terminal of the chain.
func (c *Chain) Input() *Entity {
	for _, e := range c.Entities {
		if e.IsInputTerminal() {
			return e
		}
	}
	return nil
}

// Streaming returns the streaming terminals of the chain.
func (c *Chain) Streaming() []*Entity {
	var terms []*Entity
	for _, e := range c.Entities {
		if e.IsStreaming() {
			terms = append(terms, e)
		}
	}
	return terms
}

func (c *Chain) String() string {
	return fmt.Sprintf("chain %s", c.Output)
}

// Build scans one chain per output terminal that is not yet part of a
// chain. A chain that does not resolve is dropped and its entities are left
// unassigned; Build only fails when no chain survives.
func Build(g *Graph, log zerolog.Logger) ([]*Chain, error) {
	var chains []*Chain
	for _, term := range g.Entities {
		if !term.IsOutputTerminal() || term.chain != nil {
			continue
		}
		s := &scanner{graph: g, chain: &Chain{Output: term}}
		if err := s.scan(term); err != nil {
			log.Debug().Err(err).Uint8("output", term.ID).Msg("[topology] chain dropped")
			s.release()
			continue
		}
		s.chain.Entities = order(s.members)
		log.Debug().Uint8("output", term.ID).Int("entities", len(s.chain.Entities)).Msg("[topology] found chain")
		chains = append(chains, s.chain)
	}
	if len(chains) == 0 {
		return nil, ErrNoChain
	}
	return chains, nil
}

type scanner struct {
	graph   *Graph
	chain   *Chain
	members []*Entity
}

func (s *scanner) add(e *Entity) {
	e.chain = s.chain
	s.members = append(s.members, e)
}

func (s *scanner) release() {
	for _, e := range s.members {
		e.chain = nil
	}
	s.members = nil
}

func (s *scanner) scan(term *Entity) error {
	var prev *Entity
	for e := term; e != nil; {
		if e.chain != nil {
			return fmt.Errorf("%s already in a chain", e)
		}
		if err := s.entity(e); err != nil {
			return err
		}
		if err := s.forward(e, prev); err != nil {
			return err
		}
		prev = e
		next, err := s.backward(e)
		if err != nil {
			return err
		}
		e = next
	}
	return nil
}

// entity validates e against the chain built so far and adds it.
func (s *scanner) entity(e *Entity) error {
	switch e.Kind {
	case KindExtensionUnit:
		if len(e.Sources) != 1 {
			return fmt.Errorf("%s has %d input pins", e, len(e.Sources))
		}
	case KindProcessingUnit:
		if s.chain.Processing != nil {
			return fmt.Errorf("%s: chain already has %s", e, s.chain.Processing)
		}
		s.chain.Processing = e
	case KindSelectorUnit:
		if len(e.Sources) == 1 {
			break
		}
		if s.chain.Selector != nil {
			return fmt.Errorf("%s: chain already has %s", e, s.chain.Selector)
		}
		s.chain.Selector = e
	case KindInputTerminal:
		switch e.TerminalType {
		case descriptors.InputTerminalTypeVendorSpecific,
			descriptors.InputTerminalTypeCamera,
			descriptors.InputTerminalTypeMediaTransportInput,
			descriptors.TerminalTypeStreaming:
		default:
			return fmt.Errorf("%s: unsupported terminal type %#04x", e, uint16(e.TerminalType))
		}
	case KindOutputTerminal:
		switch e.TerminalType {
		case descriptors.OutputTerminalTypeVendorSpecific,
			descriptors.OutputTerminalTypeDisplay,
			descriptors.OutputTerminalTypeMediaTransportOutput,
			descriptors.TerminalTypeStreaming:
		default:
			return fmt.Errorf("%s: unsupported terminal type %#04x", e, uint16(e.TerminalType))
		}
	default:
		return fmt.Errorf("%s: unsupported entity", e)
	}
	s.add(e)
	return nil
}

// forward absorbs the extension units and output terminals fed by e, other
// than prev.
func (s *scanner) forward(e, prev *Entity) error {
	for _, f := range s.graph.Entities {
		if f == prev || f.chain == s.chain || !references(f, e.ID) {
			continue
		}
		switch f.Kind {
		case KindExtensionUnit:
			if len(f.Sources) != 1 {
				return fmt.Errorf("%s has %d input pins", f, len(f.Sources))
			}
		case KindOutputTerminal:
		case KindInputTerminal:
			if f.IsStreaming() {
				return fmt.Errorf("%s: streaming input terminal fed by %s", f, e)
			}
			continue
		default:
			continue
		}
		if f.chain != nil {
			return fmt.Errorf("%s already in a chain", f)
		}
		s.add(f)
	}
	return nil
}

// backward returns the next entity towards the source, or nil when the walk
// reached an input terminal.
func (s *scanner) backward(e *Entity) (*Entity, error) {
	var id uint8
	switch e.Kind {
	case KindExtensionUnit, KindProcessingUnit, KindOutputTerminal:
		id = e.Sources[0]
	case KindInputTerminal:
		return nil, nil
	case KindSelectorUnit:
		if len(e.Sources) == 1 {
			id = e.Sources[0]
			break
		}
		for i, src := range e.Sources {
			term := s.graph.Entity(src)
			if term == nil || !term.IsInputTerminal() {
				return nil, fmt.Errorf("%s input %d is not connected to an input terminal", e, i)
			}
			if term.chain != nil {
				return nil, fmt.Errorf("%s already in a chain", term)
			}
			s.add(term)
			if err := s.forward(term, e); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	next := s.graph.Entity(id)
	if next == nil {
		return nil, fmt.Errorf("%s: unknown source entity %d", e, id)
	}
	return next, nil
}

// order lists the scanned members so that every entity follows the members
// it reads from. Ties keep the reversed scan order, which runs source to sink
// along the backward walk.
func order(members []*Entity) []*Entity {
	in := make(map[uint8]bool, len(members))
	for _, e := range members {
		in[e.ID] = true
	}
	placed := make(map[uint8]bool, len(members))
	out := make([]*Entity, 0, len(members))
	ready := func(e *Entity) bool {
		for _, src := range e.Sources {
			if in[src] && !placed[src] {
				return false
			}
		}
		return true
	}
	for len(out) < len(members) {
		var next *Entity
		for i := len(members) - 1; i >= 0; i-- {
			if e := members[i]; !placed[e.ID] && ready(e) {
				next = e
				break
			}
		}
		if next == nil {
			// a loop among the members; keep the rest in scan order
			for i := len(members) - 1; i >= 0; i-- {
				if !placed[members[i].ID] {
					out = append(out, members[i])
				}
			}
			break
		}
		placed[next.ID] = true
		out = append(out, next)
	}
	return out
}

func references(e *Entity, id uint8) bool {
	for _, src := range e.Sources {
		if src == id {
			return true
		}
	}
	return false
}
