package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"obvcore/internal/domain"
	"obvcore/internal/store"
)

const (
	outboxNS      = "outbox"
	outboxQueryNS = "outbox-query"
)

// Enqueue stores the envelopes and queries of p in tx. They stay queued
// until Dequeue, so a crash between commit and post loses nothing.
func Enqueue(tx domain.Tx, p *Prepared) error {
	for _, env := range p.Envelopes {
		if err := store.Save(tx, store.Key(outboxNS, env.ID), env); err != nil {
			return err
		}
	}
	for _, q := range p.Queries {
		if err := store.Save(tx, store.Key(outboxQueryNS, q.ID), q); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns everything still queued.
func Pending(tx domain.Tx) (*Prepared, error) {
	envs, err := store.LoadAll[domain.Envelope](tx, store.Prefix(outboxNS))
	if err != nil {
		return nil, err
	}
	qs, err := store.LoadAll[domain.ServerQuery](tx, store.Prefix(outboxQueryNS))
	if err != nil {
		return nil, err
	}
	return &Prepared{Envelopes: envs, Queries: qs}, nil
}

// Dequeue removes posted envelopes and queries.
func Dequeue(tx domain.Tx, envelopeIDs, queryIDs []string) error {
	for _, id := range envelopeIDs {
		if err := tx.Delete(store.Key(outboxNS, id)); err != nil {
			return err
		}
	}
	for _, id := range queryIDs {
		if err := tx.Delete(store.Key(outboxQueryNS, id)); err != nil {
			return err
		}
	}
	return nil
}

// Sent reports what Post managed to hand over.
type Sent struct {
	IDs       domain.PerRecipientMessageIDs
	Envelopes []string
	Queries   []string
}

// Post hands the envelopes and queries of p to network. Failures of single
// envelopes are accumulated; ErrNoMessageSent is returned when there was
// something to post and nothing got through.
func Post(ctx context.Context, network domain.NetworkPoster, p *Prepared) (Sent, error) {
	sent := Sent{IDs: make(domain.PerRecipientMessageIDs)}
	var errs error
	for _, env := range p.Envelopes {
		mids, err := network.Post(ctx, env)
		if err == nil && len(mids) != len(env.Headers) {
			err = fmt.Errorf("relay returned %d ids for %d headers", len(mids), len(env.Headers))
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("envelope %s to %s: %w", env.ID, env.Server, err))
			continue
		}
		for i, h := range env.Headers {
			sent.IDs[h.Recipient()] = mids[i]
		}
		sent.Envelopes = append(sent.Envelopes, env.ID)
	}
	for _, q := range p.Queries {
		if err := network.Query(ctx, q); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query %s to %s: %w", q.ID, q.Server, err))
			continue
		}
		sent.Queries = append(sent.Queries, q.ID)
	}
	if errs != nil && len(sent.Envelopes)+len(sent.Queries) == 0 {
		return sent, fmt.Errorf("%w: %w", ErrNoMessageSent, errs)
	}
	return sent, errs
}
