package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"obvcore/internal/codec"
	"obvcore/internal/domain"
)

// DefaultEnvelopeTTL is how long an unfetched envelope is kept.
const DefaultEnvelopeTTL = 30 * 24 * time.Hour

// Redis is a relay backed by a redis server.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis returns a relay over rdb. A zero ttl means DefaultEnvelopeTTL.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultEnvelopeTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

var _ domain.Network = (*Redis)(nil)

func envelopeKey(id string) string { return "env:" + id }

func inboxKey(to domain.Recipient) string {
	return "inbox:" + to.Identity.Key() + "/" + to.Device.String()
}

func queriesKey(server string) string { return "queries:" + server }

// Post stores env once and pushes a reference to it on the inbox of every
// addressed device, atomically.
func (r *Redis) Post(ctx context.Context, env domain.Envelope) ([]domain.NetworkMessageID, error) {
	blob, err := codec.Marshal(env)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.NetworkMessageID, len(env.Headers))
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, envelopeKey(env.ID), blob, r.ttl)
		for i, h := range env.Headers {
			ids[i] = messageID(env.ID, i)
			p.RPush(ctx, inboxKey(h.Recipient()), string(ids[i]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPostFailed, err)
	}
	return ids, nil
}

// Query pushes q on the query list of its server.
func (r *Redis) Query(ctx context.Context, q domain.ServerQuery) error {
	blob, err := codec.Marshal(q)
	if err != nil {
		return err
	}
	if err := r.rdb.RPush(ctx, queriesKey(q.Server), blob).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPostFailed, err)
	}
	return nil
}

// Fetch returns up to limit envelopes queued for to. References to expired
// envelopes are removed from the inbox on the way.
func (r *Redis) Fetch(ctx context.Context, to domain.Recipient, limit int) ([]domain.Inbound, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	refs, err := r.rdb.LRange(ctx, inboxKey(to), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	envs := make(map[string]*domain.Envelope)
	out := make([]domain.Inbound, 0, len(refs))
	for _, ref := range refs {
		id, header, err := parseMessageID(ref)
		if err != nil {
			return nil, err
		}
		env, ok := envs[id]
		if !ok {
			env, err = r.envelope(ctx, id)
			if err != nil {
				return nil, err
			}
			envs[id] = env
		}
		if env == nil {
			if err := r.rdb.LRem(ctx, inboxKey(to), 1, ref).Err(); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, domain.Inbound{Envelope: *env, Header: header})
	}
	return out, nil
}

func (r *Redis) envelope(ctx context.Context, id string) (*domain.Envelope, error) {
	blob, err := r.rdb.Get(ctx, envelopeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env domain.Envelope
	if err := codec.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("decode envelope %s: %w", id, err)
	}
	return &env, nil
}

// Ack drops the first count references queued for to. The envelopes
// themselves expire on their own.
func (r *Redis) Ack(ctx context.Context, to domain.Recipient, count int) error {
	if count <= 0 {
		return nil
	}
	return r.rdb.LTrim(ctx, inboxKey(to), int64(count), -1).Err()
}

// Queries returns the queries posted to server.
func (r *Redis) Queries(ctx context.Context, server string) ([]domain.ServerQuery, error) {
	blobs, err := r.rdb.LRange(ctx, queriesKey(server), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServerQuery, 0, len(blobs))
	for _, b := range blobs {
		var q domain.ServerQuery
		if err := codec.Unmarshal([]byte(b), &q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func parseMessageID(ref string) (string, int, error) {
	i := strings.LastIndexByte(ref, '/')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed inbox entry %q", ref)
	}
	header, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed inbox entry %q: %w", ref, err)
	}
	return ref[:i], header, nil
}
