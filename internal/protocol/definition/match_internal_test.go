package definition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"obvcore/internal/domain"
)

func TestMatch_PanicsOnAmbiguity(t *testing.T) {
	run := func(StepContext, State, Message) (State, error) { return Final{}, nil }
	k := trigger{from: InitialStateID, on: "m"}
	p := &Protocol{
		ID: "broken",
		index: map[trigger][]Step{k: {
			{ID: "a", From: InitialStateID, On: "m", Requires: RequireLocal, Run: run},
			{ID: "b", From: InitialStateID, On: "m", Requires: RequireLocal, Run: run},
		}},
	}
	require.Panics(t, func() {
		p.Match(InitialStateID, "m", domain.LocalReception(domain.Identity{}))
	})
}
