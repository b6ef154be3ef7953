package definition

import "obvcore/internal/domain"

// StateID names a state within a protocol.
type StateID string

func (s StateID) String() string { return string(s) }

// Reserved states.
const (
	InitialStateID   StateID = "initial"
	FinalStateID     StateID = "final"
	CancelledStateID StateID = "cancelled"
)

// State is a protocol state. Implementations are plain structs whose
// exported fields are persisted between steps.
type State interface {
	StateID() StateID
}

// Message is a protocol message. Implementations are plain structs encoded
// as ordered arrays:
//
//	type Ping struct {
//		_    struct{} `cbor:",toarray"`
//		From domain.Identity
//	}
type Message interface {
	MessageType() domain.MessageTypeID
}

// Initial is the state of an instance that has not run any step.
type Initial struct{}

// Final ends an instance successfully.
type Final struct{}

// Cancelled ends an instance after a protocol-level failure.
type Cancelled struct{}

func (Initial) StateID() StateID   { return InitialStateID }
func (Final) StateID() StateID     { return FinalStateID }
func (Cancelled) StateID() StateID { return CancelledStateID }

// IsReserved reports whether id is one of the shared states.
func IsReserved(id StateID) bool {
	return id == InitialStateID || id == FinalStateID || id == CancelledStateID
}

// IsTerminal reports whether s ends the instance.
func IsTerminal(s State) bool {
	id := s.StateID()
	return id == FinalStateID || id == CancelledStateID
}
