package definition

import (
	"fmt"
	"sort"

	"obvcore/internal/domain"
)

// Registry holds validated protocol definitions.
type Registry struct {
	protocols map[domain.ProtocolID]*Protocol
}

// NewRegistry validates every protocol and indexes them by id.
func NewRegistry(protocols ...*Protocol) (*Registry, error) {
	r := &Registry{protocols: make(map[domain.ProtocolID]*Protocol, len(protocols))}
	for _, p := range protocols {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.protocols[p.ID]; dup {
			return nil, fmt.Errorf("%w: protocol %s registered twice", ErrInvalidProtocol, p.ID)
		}
		r.protocols[p.ID] = p
	}
	return r, nil
}

// Protocol returns the protocol registered under id.
func (r *Registry) Protocol(id domain.ProtocolID) (*Protocol, bool) {
	p, ok := r.protocols[id]
	return p, ok
}

// Protocols lists the registered protocols sorted by id.
func (r *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
