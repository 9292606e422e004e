// Package redisstore stores verification codes in Redis as an alternative to the
// DynamoDB verifications table.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "jobboard:otp"

// consumeScript deletes the hash only when the code matches and
// expires_at_ms is still ahead of ARGV[2]. Expired hashes are removed.
const consumeScript = `
local code = redis.call("HGET", KEYS[1], "code")
if not code then
  return 0
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at_ms"))
if exp == nil or exp <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 0
end
if code ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

// VerificationStore keeps one hash per subject and channel.
type VerificationStore struct {
	client  redis.UniversalClient
	consume *redis.Script
}

func NewVerificationStore(client redis.UniversalClient) *VerificationStore {
	return &VerificationStore{client: client, consume: redis.NewScript(consumeScript)}
}

// NewClient opens a client and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

func key(subjectID string, ch domain.Channel) string {
	return keyPrefix + ":" + subjectID + ":" + string(ch)
}

// Put replaces the hash in one transaction. The key expiry is housekeeping;
// expires_at_ms decides validity.
func (s *VerificationStore) Put(ctx context.Context, v *domain.VerificationRecord) error {
	k := key(v.SubjectID, v.Channel)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k,
			"code", v.Code,
			"expires_at_ms", v.ExpiresAt.UnixMilli(),
			"created_at_ms", v.CreatedAt.UnixMilli(),
		)
		p.PExpireAt(ctx, k, v.ExpiresAt.Add(time.Minute))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put verification: %w", err)
	}
	return nil
}

func (s *VerificationStore) Consume(ctx context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error) {
	n, err := s.consume.Run(ctx, s.client, []string{key(subjectID, ch)}, code, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis consume verification: %w", err)
	}
	return n == 1, nil
}

func (s *VerificationStore) Get(ctx context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error) {
	m, err := s.client.HGetAll(ctx, key(subjectID, ch)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	exp, err := strconv.ParseInt(m["expires_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at_ms: %w", err)
	}
	created, _ := strconv.ParseInt(m["created_at_ms"], 10, 64)
	return &domain.VerificationRecord{
		SubjectID: subjectID,
		Channel:   ch,
		Code:      m["code"],
		ExpiresAt: time.UnixMilli(exp).UTC(),
		CreatedAt: time.UnixMilli(created).UTC(),
	}, nil
}
