package definition

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"obvcore/internal/codec"
	"obvcore/internal/domain"
)

var (
	ErrInvalidProtocol    = errors.New("invalid protocol definition")
	ErrUnknownProtocol    = errors.New("unknown protocol")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUnknownState       = errors.New("unknown state")
	ErrMalformedInputs    = errors.New("malformed message inputs")
)

// Protocol is a protocol definition. States and Messages hold one zero
// value of every non-reserved state and message type.
type Protocol struct {
	ID       domain.ProtocolID
	States   []State
	Messages []Message
	Steps    []Step

	states   map[StateID]reflect.Type
	messages map[domain.MessageTypeID]reflect.Type
	index    map[trigger][]Step
}

type trigger struct {
	from StateID
	on   domain.MessageTypeID
}

// Validate checks the definition and builds its lookup tables. It must
// succeed before the protocol is used; NewRegistry calls it.
func (p *Protocol) Validate() error {
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if p.ID == "" {
		fail("empty protocol id")
	}

	p.states = make(map[StateID]reflect.Type, len(p.States))
	for _, s := range p.States {
		t := reflect.TypeOf(s)
		switch {
		case t.Kind() != reflect.Struct:
			fail("state %T must be a struct value", s)
		case s.StateID() == "":
			fail("state %T has an empty id", s)
		case IsReserved(s.StateID()):
			fail("state %T redeclares reserved state %q", s, s.StateID())
		case p.states[s.StateID()] != nil:
			fail("state %q declared twice", s.StateID())
		default:
			p.states[s.StateID()] = t
		}
	}

	p.messages = make(map[domain.MessageTypeID]reflect.Type, len(p.Messages))
	for _, m := range p.Messages {
		t := reflect.TypeOf(m)
		switch {
		case t.Kind() != reflect.Struct:
			fail("message %T must be a struct value", m)
		case m.MessageType() == "":
			fail("message %T has an empty type", m)
		case p.messages[m.MessageType()] != nil:
			fail("message type %q declared twice", m.MessageType())
		default:
			p.messages[m.MessageType()] = t
		}
	}

	p.index = make(map[trigger][]Step)
	seen := make(map[StepID]bool, len(p.Steps))
	for _, s := range p.Steps {
		switch {
		case s.ID == "":
			fail("step with empty id")
			continue
		case seen[s.ID]:
			fail("step %q declared twice", s.ID)
			continue
		}
		seen[s.ID] = true
		if s.From != InitialStateID && p.states[s.From] == nil {
			fail("step %q starts from undeclared state %q", s.ID, s.From)
		}
		if p.messages[s.On] == nil {
			fail("step %q triggers on undeclared message %q", s.ID, s.On)
		}
		if !s.Requires.Valid() {
			fail("step %q has invalid requirement %s", s.ID, s.Requires)
		}
		if s.Run == nil {
			fail("step %q has no executor", s.ID)
		}
		k := trigger{from: s.From, on: s.On}
		for _, other := range p.index[k] {
			if rc, ok := overlap(other.Requires, s.Requires); ok {
				fail("steps %q and %q both fire on (%s, %s, %s)", other.ID, s.ID, s.From, s.On, rc)
			}
		}
		p.index[k] = append(p.index[k], s)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalidProtocol, p.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Match returns the single step that fires for a message of type on arriving
// over rc while the instance is in state from. It panics when more than one
// step fires, which Validate rules out.
func (p *Protocol) Match(from StateID, on domain.MessageTypeID, rc domain.ReceptionChannel) (Step, bool) {
	var (
		found Step
		n     int
	)
	for _, s := range p.index[trigger{from: from, on: on}] {
		if s.Requires.Accepts(rc) {
			if n > 0 {
				panic(fmt.Sprintf("protocol %s: steps %q and %q both fire on (%s, %s, %s)", p.ID, found.ID, s.ID, from, on, rc))
			}
			found = s
			n++
		}
	}
	return found, n == 1
}

// NewMessage wraps msg as a protocol message for instance.
func (p *Protocol) NewMessage(instance domain.InstanceID, msg Message) (domain.ProtocolMessage, error) {
	return EncodeMessage(p.ID, instance, msg)
}

// EncodeMessage wraps msg as a protocol message of protocol for instance.
func EncodeMessage(protocol domain.ProtocolID, instance domain.InstanceID, msg Message) (domain.ProtocolMessage, error) {
	inputs, err := codec.Marshal(msg)
	if err != nil {
		return domain.ProtocolMessage{}, err
	}
	return domain.ProtocolMessage{
		Protocol: protocol,
		Type:     msg.MessageType(),
		Instance: instance,
		Inputs:   inputs,
	}, nil
}

// DecodeMessage rebuilds the typed message carried by pm.
func (p *Protocol) DecodeMessage(pm domain.ProtocolMessage) (Message, error) {
	t, ok := p.messages[pm.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMessageType, p.ID, pm.Type)
	}
	v := reflect.New(t)
	if err := codec.Unmarshal(pm.Inputs, v.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrMalformedInputs, p.ID, pm.Type, err)
	}
	return v.Elem().Interface().(Message), nil
}

// EncodeState serializes s for persistence.
func EncodeState(s State) (StateID, []byte, error) {
	raw, err := codec.Marshal(s)
	return s.StateID(), raw, err
}

// DecodeState rebuilds a state persisted with EncodeState.
func (p *Protocol) DecodeState(id StateID, raw []byte) (State, error) {
	if id == InitialStateID {
		return Initial{}, nil
	}
	t, ok := p.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownState, p.ID, id)
	}
	v := reflect.New(t)
	if err := codec.Unmarshal(raw, v.Interface()); err != nil {
		return nil, fmt.Errorf("decode state %s/%s: %w", p.ID, id, err)
	}
	return v.Elem().Interface().(State), nil
}

// Declares reports whether id is a reserved state or one of p's states.
func (p *Protocol) Declares(id StateID) bool {
	return IsReserved(id) || p.states[id] != nil
}

// StepTable lists the steps sorted by source state and message type.
func (p *Protocol) StepTable() []Step {
	out := append([]Step(nil), p.Steps...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].On < out[j].On
	})
	return out
}
