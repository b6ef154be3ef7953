package definition_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
)

type ping struct {
	_     struct{} `cbor:",toarray"`
	Nonce uint64
	Note  string
}

func (ping) MessageType() domain.MessageTypeID { return "ping" }

type waiting struct {
	Nonce uint64
}

func (waiting) StateID() definition.StateID { return "waiting" }

func noop(definition.StepContext, definition.State, definition.Message) (definition.State, error) {
	return definition.Final{}, nil
}

func baseProtocol(steps ...definition.Step) *definition.Protocol {
	return &definition.Protocol{
		ID:       "test",
		States:   []definition.State{waiting{}},
		Messages: []definition.Message{ping{}},
		Steps:    steps,
	}
}

var (
	owned   = domain.Identity{Server: "https://a.example"}
	contact = domain.Identity{Server: "https://b.example"}
)

func oblivious(remote domain.Identity, confirmed bool) domain.ReceptionChannel {
	key := domain.ChannelKey{Owned: owned, LocalDevice: "a1", RemoteIdentity: remote, RemoteDevice: "x1"}
	return domain.ObliviousReception(key, confirmed, false)
}

func TestValidate_RejectsOverlappingRequirements(t *testing.T) {
	p := baseProtocol(
		definition.Step{ID: "one", From: definition.InitialStateID, On: "ping", Requires: definition.RequireAnyOblivious, Run: noop},
		definition.Step{ID: "two", From: definition.InitialStateID, On: "ping", Requires: definition.RequireConfirmedObliviousFromContact, Run: noop},
	)
	_, err := definition.NewRegistry(p)
	require.ErrorIs(t, err, definition.ErrInvalidProtocol)
	require.Contains(t, err.Error(), `steps "one" and "two"`)
}

func TestValidate_AcceptsDisjointRequirements(t *testing.T) {
	p := baseProtocol(
		definition.Step{ID: "from-owned", From: definition.InitialStateID, On: "ping", Requires: definition.RequireConfirmedObliviousFromOwnedDevice, Run: noop},
		definition.Step{ID: "from-contact", From: definition.InitialStateID, On: "ping", Requires: definition.RequireConfirmedObliviousFromContact, Run: noop},
		definition.Step{ID: "local", From: definition.InitialStateID, On: "ping", Requires: definition.RequireLocal, Run: noop},
		definition.Step{ID: "resume", From: "waiting", On: "ping", Requires: definition.RequireAnyOblivious, Run: noop},
	)
	reg, err := definition.NewRegistry(p)
	require.NoError(t, err)

	got, ok := reg.Protocols()[0].Match(definition.InitialStateID, "ping", oblivious(owned, true))
	require.True(t, ok)
	require.Equal(t, definition.StepID("from-owned"), got.ID)

	got, ok = p.Match(definition.InitialStateID, "ping", oblivious(contact, true))
	require.True(t, ok)
	require.Equal(t, definition.StepID("from-contact"), got.ID)

	_, ok = p.Match(definition.InitialStateID, "ping", oblivious(contact, false))
	require.False(t, ok, "unconfirmed channel satisfies no step")

	_, ok = p.Match(definition.InitialStateID, "ping", domain.AsymmetricReception(owned, "a1"))
	require.False(t, ok)

	_, ok = p.Match(definition.FinalStateID, "ping", domain.LocalReception(owned))
	require.False(t, ok)
}

func TestValidate_RejectsUndeclaredReferences(t *testing.T) {
	cases := map[string]definition.Step{
		"undeclared state":   {ID: "s", From: "nowhere", On: "ping", Requires: definition.RequireLocal, Run: noop},
		"undeclared message": {ID: "s", From: definition.InitialStateID, On: "pong", Requires: definition.RequireLocal, Run: noop},
		"no executor":        {ID: "s", From: definition.InitialStateID, On: "ping", Requires: definition.RequireLocal},
		"bad requirement":    {ID: "s", From: definition.InitialStateID, On: "ping", Run: noop},
	}
	for name, step := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := definition.NewRegistry(baseProtocol(step))
			require.ErrorIs(t, err, definition.ErrInvalidProtocol)
		})
	}
}

type badState struct{}

func (badState) StateID() definition.StateID { return definition.FinalStateID }

func TestValidate_RejectsReservedStateRedeclaration(t *testing.T) {
	p := baseProtocol()
	p.States = append(p.States, badState{})
	_, err := definition.NewRegistry(p)
	require.ErrorIs(t, err, definition.ErrInvalidProtocol)
}

func TestRegistry_RejectsDuplicateIDs(t *testing.T) {
	_, err := definition.NewRegistry(baseProtocol(), baseProtocol())
	require.ErrorIs(t, err, definition.ErrInvalidProtocol)
}

func TestMessageAndStateEncoding(t *testing.T) {
	p := baseProtocol()
	require.NoError(t, p.Validate())

	pm, err := p.NewMessage("inst-1", ping{Nonce: 7, Note: "hi"})
	require.NoError(t, err)
	require.Equal(t, domain.MessageTypeID("ping"), pm.Type)

	msg, err := p.DecodeMessage(pm)
	require.NoError(t, err)
	require.Equal(t, ping{Nonce: 7, Note: "hi"}, msg)

	pm.Inputs = []byte{0xff}
	_, err = p.DecodeMessage(pm)
	require.ErrorIs(t, err, definition.ErrMalformedInputs)

	pm.Type = "pong"
	_, err = p.DecodeMessage(pm)
	require.ErrorIs(t, err, definition.ErrUnknownMessageType)

	id, raw, err := definition.EncodeState(waiting{Nonce: 3})
	require.NoError(t, err)
	st, err := p.DecodeState(id, raw)
	require.NoError(t, err)
	require.Equal(t, waiting{Nonce: 3}, st)

	st, err = p.DecodeState(definition.InitialStateID, nil)
	require.NoError(t, err)
	require.Equal(t, definition.Initial{}, st)

	_, err = p.DecodeState("gone", raw)
	require.ErrorIs(t, err, definition.ErrUnknownState)
}

func TestRequirement_Accepts(t *testing.T) {
	local := domain.LocalReception(owned)
	require.True(t, definition.RequireLocal.Accepts(local))
	require.False(t, definition.RequireAnyOblivious.Accepts(local))

	require.True(t, definition.RequireObliviousFromOwnedDevice.Accepts(oblivious(owned, false)))
	require.False(t, definition.RequireConfirmedObliviousFromOwnedDevice.Accepts(oblivious(owned, false)))
	require.False(t, definition.RequireObliviousFromContact.Accepts(oblivious(owned, true)))
	require.True(t, definition.RequireConfirmedOblivious.Accepts(oblivious(contact, true)))
	require.True(t, definition.RequireServerResponse.Accepts(domain.ServerResponseReception(owned)))
}
