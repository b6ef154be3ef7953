package interfaces

import (
	"context"

	domaintypes "obvcore/internal/domain/types"
)

// NetworkPoster hands envelopes to the transport layer.
type NetworkPoster interface {
	// Post returns one network message identifier per header, in header order.
	Post(ctx context.Context, envelope domaintypes.Envelope) ([]domaintypes.NetworkMessageID, error)
	Query(ctx context.Context, query domaintypes.ServerQuery) error
}

// NetworkFetcher pulls envelopes addressed to one device.
type NetworkFetcher interface {
	Fetch(ctx context.Context, to domaintypes.Recipient, limit int) ([]domaintypes.Inbound, error)
	Ack(ctx context.Context, to domaintypes.Recipient, count int) error
}

// Network is a relay the device both posts to and fetches from.
type Network interface {
	NetworkPoster
	NetworkFetcher
}
