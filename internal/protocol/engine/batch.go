package engine

import (
	"context"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"obvcore/internal/domain"
)

type channelOf struct {
	to      domain.Recipient
	from    domain.Recipient
	variant domain.ChannelVariant
}

// DeliverBatch receives a batch of fetched envelopes. Envelopes of the same
// channel are processed one at a time in key index order; distinct channels
// are processed concurrently by at most the configured number of workers.
// Every envelope is attempted; the errors of all of them are combined.
func (e *Engine) DeliverBatch(ctx context.Context, ins []domain.Inbound, flow domain.FlowID) error {
	groups := make(map[channelOf][]domain.Inbound)
	var order []channelOf
	for _, in := range ins {
		k := channelOf{}
		if in.Header >= 0 && in.Header < len(in.Envelope.Headers) {
			h := in.Envelope.Headers[in.Header]
			k = channelOf{
				to:      h.Recipient(),
				from:    domain.Recipient{Identity: h.FromIdentity, Device: h.FromDevice},
				variant: h.Variant,
			}
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], in)
	}

	errs := make([]error, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(a, b int) bool {
			return headerIndex(group[a]) < headerIndex(group[b])
		})
		g.Go(func() error {
			for _, in := range group {
				if err := gctx.Err(); err != nil {
					errs[i] = multierr.Append(errs[i], err)
					return nil
				}
				errs[i] = multierr.Append(errs[i], e.ReceiveEnvelope(gctx, in, flow))
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}
