package interfaces

import (
	"context"

	domaintypes "obvcore/internal/domain/types"
)

// DialogPresenter shows dialogs raised by protocol steps to the user.
type DialogPresenter interface {
	Present(ctx context.Context, dialog domaintypes.Dialog) error
}

// ApplicationSink receives decrypted application payloads.
type ApplicationSink interface {
	Deliver(ctx context.Context, owned domaintypes.Identity, from domaintypes.ReceptionChannel, payload []byte) error
}
