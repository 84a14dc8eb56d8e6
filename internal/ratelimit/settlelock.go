package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// One settlement per user at a time, cluster-wide. The lock is advisory:
// the settlement transaction is the correctness boundary, so losing or
// outliving the lock degrades to database-level contention, never to a
// wrong balance.
const settleKeyPrefix = "claimlens:settle:"

// SettleLockTTL caps how long a dead node can hold a user's settlement
// lock. A settlement finishes in well under a second; the margin covers
// slow commits, not normal operation.
const SettleLockTTL = 5 * time.Second

// Release only what we own. A lock that expired and was re-acquired by
// another settlement carries that settlement's token, so DEL must be
// conditional on the token matching.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SettleLock serializes unlock settlements per user across nodes.
type SettleLock struct {
	client *redis.Client
}

// NewSettleLock returns nil when redis is not configured; the unlock
// engine treats a nil lock as "single node, skip".
func NewSettleLock(client *redis.Client) *SettleLock {
	if client == nil {
		return nil
	}
	return &SettleLock{client: client}
}

func settleKey(userID snowflake.ID) string {
	return settleKeyPrefix + userID.String()
}

// Acquire takes the settlement lock for userID. ok=false means another
// settlement for the same user holds it; callers proceed anyway and let
// the database arbitrate.
func (l *SettleLock) Acquire(ctx context.Context, userID snowflake.ID) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("settle lock: redis client not configured")
	}
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, settleKey(userID), token, SettleLockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees userID's settlement lock if token still owns it.
func (l *SettleLock) Release(ctx context.Context, userID snowflake.ID, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return releaseIfOwner.Run(ctx, l.client, []string{settleKey(userID)}, token).Err()
}
