package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyJobLock = "payments:job:%s"

// Deletes the key only while it still holds our token, so a lock that
// expired and was taken by another instance is left alone.
const releaseJobLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrInvalidLockTTL = errors.New("job lock ttl must be positive")

// JobLock keeps a scheduler job single-flight across instances. Without Redis
// every acquisition succeeds and the database row locks remain the guard.
type JobLock struct {
	client  *redis.Client
	release *redis.Script
}

func NewJobLock(client *redis.Client) *JobLock {
	if client == nil {
		return nil
	}
	return &JobLock{
		client:  client,
		release: redis.NewScript(releaseJobLockScript),
	}
}

// Acquire reports ok=false when another instance holds the job. The returned
// release is always safe to call.
func (j *JobLock) Acquire(ctx context.Context, job string, ttl time.Duration) (release func(), ok bool, err error) {
	if j == nil || j.client == nil {
		return func() {}, true, nil
	}
	if ttl <= 0 {
		return func() {}, false, ErrInvalidLockTTL
	}

	key := fmt.Sprintf(keyJobLock, job)
	owner := uuid.NewString()
	ok, err = j.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		_ = j.release.Run(context.WithoutCancel(ctx), j.client, []string{key}, owner).Err()
	}, true, nil
}
