package definition

import (
	"fmt"

	"obvcore/internal/domain"
)

// Requirement is a predicate over the reception channel of a message. The
// set is closed so that two steps can be checked for overlap.
type Requirement uint8

const (
	RequireLocal Requirement = iota + 1
	RequireAsymmetric
	RequireServerResponse
	RequireAnyOblivious
	RequireConfirmedOblivious
	RequireObliviousFromOwnedDevice
	RequireConfirmedObliviousFromOwnedDevice
	RequireObliviousFromContact
	RequireConfirmedObliviousFromContact
	requirementEnd
)

var requirementNames = map[Requirement]string{
	RequireLocal:                             "local",
	RequireAsymmetric:                        "asymmetric",
	RequireServerResponse:                    "server-response",
	RequireAnyOblivious:                      "any-oblivious",
	RequireConfirmedOblivious:                "confirmed-oblivious",
	RequireObliviousFromOwnedDevice:          "oblivious-from-owned-device",
	RequireConfirmedObliviousFromOwnedDevice: "confirmed-oblivious-from-owned-device",
	RequireObliviousFromContact:              "oblivious-from-contact",
	RequireConfirmedObliviousFromContact:     "confirmed-oblivious-from-contact",
}

func (r Requirement) String() string {
	if n, ok := requirementNames[r]; ok {
		return n
	}
	return fmt.Sprintf("requirement(%d)", uint8(r))
}

// Valid reports whether r is one of the declared requirements.
func (r Requirement) Valid() bool { return r > 0 && r < requirementEnd }

// Accepts reports whether a message received over rc satisfies r.
func (r Requirement) Accepts(rc domain.ReceptionChannel) bool {
	oblivious := rc.Kind == domain.ReceivedOverObliviousChannel
	switch r {
	case RequireLocal:
		return rc.Kind == domain.ReceivedLocally
	case RequireAsymmetric:
		return rc.Kind == domain.ReceivedOverAsymmetricChannel
	case RequireServerResponse:
		return rc.Kind == domain.ReceivedAsServerResponse
	case RequireAnyOblivious:
		return oblivious
	case RequireConfirmedOblivious:
		return oblivious && rc.Confirmed
	case RequireObliviousFromOwnedDevice:
		return rc.FromOwnedDevice()
	case RequireConfirmedObliviousFromOwnedDevice:
		return rc.FromOwnedDevice() && rc.Confirmed
	case RequireObliviousFromContact:
		return oblivious && !rc.FromOwnedDevice()
	case RequireConfirmedObliviousFromContact:
		return oblivious && !rc.FromOwnedDevice() && rc.Confirmed
	default:
		return false
	}
}

// sampleReceptions covers every combination of reception attributes the
// requirements can tell apart.
func sampleReceptions() []domain.ReceptionChannel {
	owned := domain.Identity{Server: "owned.invalid"}
	other := domain.Identity{Server: "other.invalid"}
	out := []domain.ReceptionChannel{
		domain.LocalReception(owned),
		domain.AsymmetricReception(owned, "local"),
		domain.ServerResponseReception(owned),
	}
	for _, remote := range []domain.Identity{owned, other} {
		for _, confirmed := range []bool{false, true} {
			for _, broadcast := range []bool{false, true} {
				key := domain.ChannelKey{Owned: owned, LocalDevice: "local", RemoteIdentity: remote, RemoteDevice: "remote"}
				out = append(out, domain.ObliviousReception(key, confirmed, broadcast))
			}
		}
	}
	return out
}

// overlap returns a reception both requirements accept, if any.
func overlap(a, b Requirement) (domain.ReceptionChannel, bool) {
	for _, rc := range sampleReceptions() {
		if a.Accepts(rc) && b.Accepts(rc) {
			return rc, true
		}
	}
	return domain.ReceptionChannel{}, false
}
