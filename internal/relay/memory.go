package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"obvcore/internal/domain"
)

// ErrPostFailed is returned when the relay refuses an envelope or query.
var ErrPostFailed = errors.New("relay post failed")

// Memory is an in-process relay.
type Memory struct {
	mu      sync.RWMutex
	inboxes map[domain.Recipient][]domain.Inbound
	queries map[string][]domain.ServerQuery
	failing error
}

// NewMemory returns an empty relay.
func NewMemory() *Memory {
	return &Memory{
		inboxes: make(map[domain.Recipient][]domain.Inbound),
		queries: make(map[string][]domain.ServerQuery),
	}
}

var _ domain.Network = (*Memory)(nil)

// Post queues env once per header.
func (m *Memory) Post(_ context.Context, env domain.Envelope) ([]domain.NetworkMessageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, fmt.Errorf("%w: %w", ErrPostFailed, m.failing)
	}
	ids := make([]domain.NetworkMessageID, len(env.Headers))
	for i, h := range env.Headers {
		to := h.Recipient()
		m.inboxes[to] = append(m.inboxes[to], domain.Inbound{Envelope: env, Header: i})
		ids[i] = messageID(env.ID, i)
	}
	return ids, nil
}

// Query records q for its server.
func (m *Memory) Query(_ context.Context, q domain.ServerQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return fmt.Errorf("%w: %w", ErrPostFailed, m.failing)
	}
	m.queries[q.Server] = append(m.queries[q.Server], q)
	return nil
}

// Fetch returns up to limit queued envelopes for to, oldest first. A
// non-positive limit returns everything.
func (m *Memory) Fetch(_ context.Context, to domain.Recipient, limit int) ([]domain.Inbound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.inboxes[to]
	if limit > 0 && limit < len(q) {
		q = q[:limit]
	}
	return append([]domain.Inbound(nil), q...), nil
}

// Ack drops the first count envelopes queued for to.
func (m *Memory) Ack(_ context.Context, to domain.Recipient, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.inboxes[to]
	if count >= len(q) {
		delete(m.inboxes, to)
		return nil
	}
	m.inboxes[to] = q[count:]
	return nil
}

// Queries returns the queries posted to server.
func (m *Memory) Queries(server string) []domain.ServerQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.ServerQuery(nil), m.queries[server]...)
}

// SetFailing makes every later Post and Query fail with err until it is
// called with nil.
func (m *Memory) SetFailing(err error) {
	m.mu.Lock()
	m.failing = err
	m.mu.Unlock()
}

func messageID(envelopeID string, header int) domain.NetworkMessageID {
	return domain.NetworkMessageID(envelopeID + "/" + strconv.Itoa(header))
}
