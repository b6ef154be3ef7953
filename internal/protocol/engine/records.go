package engine

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"obvcore/internal/domain"
	"obvcore/internal/store"
)

const (
	instanceNS = "inst"
	inboxNS    = "inbox"
	pendingNS  = "pending"
	dialogNS   = "dialog"
	doneNS     = "done"
)

// inboxItem is a decrypted message waiting to be processed.
type inboxItem struct {
	ID         string                  `cbor:"1,keyasint"`
	Owned      domain.Identity         `cbor:"2,keyasint"`
	Message    domain.LogicalMessage   `cbor:"3,keyasint"`
	Reception  domain.ReceptionChannel `cbor:"4,keyasint"`
	Flow       domain.FlowID           `cbor:"5,keyasint"`
	ReceivedAt time.Time               `cbor:"6,keyasint"`
}

// newInboxItem uses a time-ordered id so that Resume replays in arrival order.
func newInboxItem(owned domain.Identity, msg domain.LogicalMessage, rc domain.ReceptionChannel, flow domain.FlowID, now time.Time) inboxItem {
	return inboxItem{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Owned:      owned,
		Message:    msg,
		Reception:  rc,
		Flow:       flow,
		ReceivedAt: now,
	}
}

// parkedEnvelope waits for the channel it references to be created.
type parkedEnvelope struct {
	Inbound  domain.Inbound `cbor:"1,keyasint"`
	Flow     domain.FlowID  `cbor:"2,keyasint"`
	ParkedAt time.Time      `cbor:"3,keyasint"`
}

// completedInstance marks an instance that reached a terminal state or was
// aborted. Messages addressed to it are dropped until it expires.
type completedInstance struct {
	Protocol domain.ProtocolID `cbor:"1,keyasint"`
	At       time.Time         `cbor:"2,keyasint"`
}

func completedKey(owned domain.Identity, instance domain.InstanceID) []byte {
	return store.Key(doneNS, owned.Key(), instance.String())
}

func markCompleted(tx domain.Tx, owned domain.Identity, instance domain.InstanceID, protocol domain.ProtocolID, now time.Time) error {
	return store.Save(tx, completedKey(owned, instance), completedInstance{Protocol: protocol, At: now})
}

func instanceKey(owned domain.Identity, instance domain.InstanceID) []byte {
	return store.Key(instanceNS, owned.Key(), instance.String())
}

func inboxKey(id string) []byte { return store.Key(inboxNS, id) }

func pendingKey(in domain.Inbound) []byte {
	return store.Key(pendingNS, in.Envelope.ID, strconv.Itoa(in.Header))
}

func dialogKey(owned domain.Identity, id domain.DialogID) []byte {
	return store.Key(dialogNS, owned.Key(), id.String())
}

func lockKey(owned domain.Identity, instance domain.InstanceID) string {
	return owned.Key() + "|" + instance.String()
}

func loadInstance(tx domain.Tx, owned domain.Identity, instance domain.InstanceID) (domain.ProtocolInstance, bool, error) {
	return store.Load[domain.ProtocolInstance](tx, instanceKey(owned, instance))
}

// deleteDialogsOf removes the dialogs raised by one instance.
func deleteDialogsOf(tx domain.Tx, owned domain.Identity, instance domain.InstanceID) error {
	ds, err := store.LoadAll[domain.Dialog](tx, store.Prefix(dialogNS, owned.Key()))
	if err != nil {
		return err
	}
	for _, d := range ds {
		if d.Instance != instance {
			continue
		}
		if err := tx.Delete(dialogKey(owned, d.ID)); err != nil {
			return err
		}
	}
	return nil
}
