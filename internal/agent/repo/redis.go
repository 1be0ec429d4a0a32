package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	logx "github.com/deal-associate/server/pkg/logger"
)

// RedisDealRepository stores the deal snapshot as one JSON value and the
// transcript as a list, both under a sliding TTL.
type RedisDealRepository struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisDealRepository(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisDealRepository {
	if prefix == "" {
		prefix = "deal"
	}
	return &RedisDealRepository{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (r *RedisDealRepository) stateKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:state", r.prefix, sessionID)
}

func (r *RedisDealRepository) transcriptKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:transcript", r.prefix, sessionID)
}

func (r *RedisDealRepository) Load(ctx context.Context, sessionID string) (*model.DealState, error) {
	key := r.stateKey(sessionID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.ErrSessionNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load deal state from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.DealState
	if err := json.Unmarshal(raw, &state); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal deal state")
		return nil, fmt.Errorf("unmarshal deal state: %w", err)
	}

	tkey := r.transcriptKey(sessionID)
	rows, err := r.rdb.LRange(ctx, tkey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", tkey).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}
	state.Transcript = make([]model.Message, 0, len(rows))
	for i, s := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		state.Transcript = append(state.Transcript, m)
	}
	state.SessionID = sessionID
	return &state, nil
}

// Save writes the snapshot and appends only the new transcript entries, in
// one MULTI/EXEC.
func (r *RedisDealRepository) Save(ctx context.Context, state *model.DealState, appended []model.Message) error {
	snapshot := *state
	snapshot.Transcript = nil
	b, err := json.Marshal(&snapshot)
	if err != nil {
		logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to marshal deal state")
		return fmt.Errorf("marshal deal state: %w", err)
	}

	entries := make([]any, 0, len(appended))
	for _, m := range appended {
		mb, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		entries = append(entries, mb)
	}

	key, tkey := r.stateKey(state.SessionID), r.transcriptKey(state.SessionID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, b, r.ttl)
		if len(entries) > 0 {
			p.RPush(ctx, tkey, entries...)
		}
		// extend TTL on touch
		if r.ttl > 0 {
			p.Expire(ctx, tkey, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save deal state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisDealRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.stateKey(sessionID), r.transcriptKey(sessionID)).Err(); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete deal session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.DealRepository = (*RedisDealRepository)(nil)
