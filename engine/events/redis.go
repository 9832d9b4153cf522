package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/pkg/logger"
)

const (
	defaultChannelPrefix = "meshflow:events:"
	defaultLogPrefix     = "meshflow:events:log:"
	defaultSeqPrefix     = "meshflow:events:seq:"
	defaultMaxEntries    = 500
	defaultTTL           = 24 * time.Hour
)

// Envelope is the transport representation persisted and broadcast to
// subscribers. ID is a per-execution monotonic sequence number.
type Envelope struct {
	ID    int64 `json:"id"`
	Event Event `json:"event"`
}

// Redis fans events out over pub/sub and keeps a capped per-execution replay
// log. Emission failures are logged, never surfaced to the run.
type Redis struct {
	client        redis.UniversalClient
	channelPrefix string
	logPrefix     string
	seqPrefix     string
	maxEntries    int64
	ttl           time.Duration
}

// RedisOptions controls Redis emitter behavior.
type RedisOptions struct {
	ChannelPrefix string
	LogPrefix     string
	SeqPrefix     string
	MaxEntries    int64
	TTL           time.Duration
}

// NewRedis constructs a Redis-backed emitter.
func NewRedis(client redis.UniversalClient, opts *RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("events: redis client is required")
	}
	r := &Redis{
		client:        client,
		channelPrefix: defaultChannelPrefix,
		logPrefix:     defaultLogPrefix,
		seqPrefix:     defaultSeqPrefix,
		maxEntries:    defaultMaxEntries,
		ttl:           defaultTTL,
	}
	if opts != nil {
		if opts.ChannelPrefix != "" {
			r.channelPrefix = opts.ChannelPrefix
		}
		if opts.LogPrefix != "" {
			r.logPrefix = opts.LogPrefix
		}
		if opts.SeqPrefix != "" {
			r.seqPrefix = opts.SeqPrefix
		}
		if opts.MaxEntries > 0 {
			r.maxEntries = opts.MaxEntries
		}
		if opts.TTL != 0 {
			r.ttl = opts.TTL
		}
	}
	return r, nil
}

// Emit appends the event to the replay log and broadcasts it. Failures are
// logged so a broken sink cannot abort the run.
func (r *Redis) Emit(ctx context.Context, event Event) {
	if err := r.publish(ctx, event); err != nil {
		logger.FromContext(ctx).Error("failed to publish event",
			"kind", event.Kind,
			"execution_id", event.ExecutionID,
			"error", err,
		)
	}
}

func (r *Redis) publish(ctx context.Context, event Event) error {
	if event.ExecutionID == "" {
		return errors.New("events: execution id is required")
	}
	id, err := r.client.Incr(ctx, r.seqKey(event.ExecutionID)).Result()
	if err != nil {
		return fmt.Errorf("events: increment seq: %w", err)
	}
	payload, err := json.Marshal(Envelope{ID: id, Event: event})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	logKey := r.logKey(event.ExecutionID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, logKey, payload)
	pipe.LTrim(ctx, logKey, 0, r.maxEntries-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, logKey, r.ttl)
		pipe.Expire(ctx, r.seqKey(event.ExecutionID), r.ttl)
	}
	pipe.Publish(ctx, r.Channel(event.ExecutionID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("events: persist event: %w", err)
	}
	return nil
}

// Replay returns stored events with id greater than afterID in ascending
// order.
func (r *Redis) Replay(ctx context.Context, execID core.ID, afterID int64, limit int) ([]Envelope, error) {
	if limit <= 0 || int64(limit) > r.maxEntries {
		limit = int(r.maxEntries)
	}
	values, err := r.client.LRange(ctx, r.logKey(execID), 0, r.maxEntries-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("events: fetch backlog: %w", err)
	}
	result := make([]Envelope, 0, limit)
	for i := len(values) - 1; i >= 0; i-- {
		var envelope Envelope
		if err := json.Unmarshal([]byte(values[i]), &envelope); err != nil {
			continue
		}
		if envelope.ID <= afterID {
			continue
		}
		result = append(result, envelope)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Channel returns the pub/sub channel for the execution id.
func (r *Redis) Channel(execID core.ID) string {
	return r.channelPrefix + execID.String()
}

func (r *Redis) logKey(execID core.ID) string {
	return r.logPrefix + execID.String()
}

func (r *Redis) seqKey(execID core.ID) string {
	return r.seqPrefix + execID.String()
}
