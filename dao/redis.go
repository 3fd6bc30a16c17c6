package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"lms-agent/model"
)

type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(addr, password string, db int, keyPrefix string, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(client, keyPrefix, ttl)
}

func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "lms-agent:session:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		retention: ExpiredRetention,
		now:       time.Now,
	}
}

func (s *RedisStore) historyKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":history"
}

func (s *RedisStore) pendingKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":pending"
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*model.ChatContext, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	var historyCmd *redis.StringSliceCmd
	var pendingCmd *redis.StringCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		historyCmd = pipe.LRange(ctx, s.historyKey(sessionID), 0, -1)
		pendingCmd = pipe.Get(ctx, s.pendingKey(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	raw := historyCmd.Val()
	pending, err := decodePending(pendingCmd)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 && pending == nil {
		return nil, nil
	}

	cc := &model.ChatContext{SessionID: sessionID, PendingConfirmation: pending}
	for _, item := range raw {
		var rec model.RequestRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode history of %s: %w", sessionID, err)
		}
		cc.PreviousRequests = append(cc.PreviousRequests, rec)
	}
	return cc, nil
}

// AppendRequest pushes rec and trims the log to the newest limit entries in one transaction.
func (s *RedisStore) AppendRequest(ctx context.Context, sessionID string, rec model.RequestRecord, limit int) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := s.historyKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if limit > 0 {
			pipe.LTrim(ctx, key, int64(-limit), -1)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// PutPending stores p until ExpiresAt plus the retention window; Redis drops the
// key after that. Between the two a read returns the expired record.
func (s *RedisStore) PutPending(ctx context.Context, sessionID string, p model.PendingConfirmation) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if p.ActionID == "" {
		return fmt.Errorf("%w: pending confirmation has no action id", ErrInvalidSession)
	}
	ttl := p.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.pendingKey(sessionID), data, ttl).Err()
}

func (s *RedisStore) PeekPending(ctx context.Context, sessionID string) (*model.PendingConfirmation, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return decodePending(s.client.Get(ctx, s.pendingKey(sessionID)))
}

// TakePending reads and deletes the record with GETDEL, so concurrent callers
// cannot both receive it.
func (s *RedisStore) TakePending(ctx context.Context, sessionID string) (*model.PendingConfirmation, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return decodePending(s.client.GetDel(ctx, s.pendingKey(sessionID)))
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodePending(cmd *redis.StringCmd) (*model.PendingConfirmation, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p model.PendingConfirmation
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pending confirmation: %w", err)
	}
	return &p, nil
}
