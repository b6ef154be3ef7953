package definition

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
)

// StepID names a step within a protocol.
type StepID string

func (s StepID) String() string { return string(s) }

// Executor runs a step. It returns the next state; protocol-level failures
// are reported by returning Cancelled, not an error. A returned error aborts
// the transaction the step runs in and leaves the instance untouched.
type Executor func(sc StepContext, state State, msg Message) (State, error)

// Step is one transition of a protocol.
type Step struct {
	ID       StepID
	From     StateID
	On       domain.MessageTypeID
	Requires Requirement
	Run      Executor
}

// StepContext is what a running step can see and do. Every effect is part of
// the step's transaction: channel and directory changes, outbound messages,
// dialogs and local deliveries all commit together with the next state.
type StepContext interface {
	Context() context.Context
	Now() time.Time
	Log() *logrus.Entry

	Owned() domain.Identity
	CurrentDevice() domain.DeviceID
	Protocol() domain.ProtocolID
	Instance() domain.InstanceID
	Flow() domain.FlowID
	Reception() domain.ReceptionChannel

	// OwnedKeys returns the private keys of the owned identity. Callers
	// should wipe them once done.
	OwnedKeys() (domain.OwnedIdentityKeys, error)
	Channels() ChannelOps
	Directory() DirectoryOps

	// Post sends msg to this same instance on the devices sel resolves to.
	Post(sel dispatch.Selector, msg Message) error
	// PostTo sends msg to another protocol instance.
	PostTo(protocol domain.ProtocolID, instance domain.InstanceID, sel dispatch.Selector, msg Message) error
	// PresentDialog raises a dialog; its response comes back to this instance
	// as a local message.
	PresentDialog(kind string, payload any) (domain.DialogID, error)
}

// ChannelOps manages the oblivious channels between the current device and
// remote devices.
type ChannelOps interface {
	Create(remote domain.Identity, device domain.DeviceID, seed domain.Seed) error
	Confirm(remote domain.Identity, device domain.DeviceID) error
	Delete(remote domain.Identity, device domain.DeviceID) error
	Exists(remote domain.Identity, device domain.DeviceID) (bool, error)
	ExistsConfirmed(remote domain.Identity, device domain.DeviceID) (bool, error)
	// DevicesWith lists the devices of remote the current device has a
	// channel with.
	DevicesWith(remote domain.Identity, confirmedOnly bool) ([]domain.DeviceID, error)
	// DeleteAllWith removes every channel of the owned identity with remote.
	DeleteAllWith(remote domain.Identity) (int, error)
}

// DirectoryOps reads and edits the contact book of the owned identity.
type DirectoryOps interface {
	IsKnownContact(contact domain.Identity) (bool, error)
	AddContact(contact domain.Identity, devices []domain.DeviceID) error
	AddContactDevice(contact domain.Identity, device domain.DeviceID) error
	DeleteContact(contact domain.Identity) error
	CurrentDeviceIDs(identity domain.Identity) ([]domain.DeviceID, error)
	AddOwnedDevice(device domain.DeviceID) error
}
