package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1], so a lock
// that expired and was retaken elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SET NX PX. The price
// scheduler takes "scheduler:prices" so that one replica ticks at a time.
type LockManager struct {
	rdb *redis.Client
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb}
}

func lockKey(name string) string { return "lock:" + name }

// Acquire takes name for ttl. It fails with domain.ErrLockHeld while another
// holder has it. The returned release func may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("redis: lock %s: ttl must be positive", name)
	}
	held := &heldLock{rdb: lm.rdb, key: lockKey(name), token: uuid.NewString(), ctx: context.WithoutCancel(ctx)}

	ok, err := lm.rdb.SetNX(ctx, held.key, held.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	return held.release, nil
}

type heldLock struct {
	rdb   *redis.Client
	key   string
	token string
	ctx   context.Context
	once  sync.Once
}

func (l *heldLock) release() {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(l.ctx, releaseTimeout)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
	})
}
