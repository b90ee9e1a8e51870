package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Local is a per-key token bucket held in process memory.
type Local struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocal allows max requests per window per key.
func NewLocal(window time.Duration, max int) *Local {
	if max <= 0 {
		max = 1
	}
	return &Local{
		limiters: map[string]*entry{},
		every:    rate.Every(window / time.Duration(max)),
		burst:    max,
		idle:     window * 2,
		now:      time.Now,
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.sweep(now)
	return e.lim.AllowN(now, 1), nil
}

func (l *Local) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.limiters, k)
		}
	}
}

// incrWindow bumps the counter and starts its window in one step. A key left
// without a TTL is given one on the next hit so it can never lock a client out.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Redis is a fixed-window counter shared by every API instance.
type Redis struct {
	client *redis.Client
	window time.Duration
	max    int64
	prefix string
}

func NewRedis(url string, window time.Duration, max int) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, window: window, max: int64(max), prefix: "ratelimit:"}, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrWindow.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= r.max, nil
}

func (r *Redis) Close() error { return r.client.Close() }
