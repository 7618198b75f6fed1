package cachemanager

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"second-level-cache/internal/config"
)

const (
	scanBatch        = 500
	breakerThreshold = 5

	// expiredGrace keeps an expired element in redis a little longer so a
	// get can still tell an expiry from a key that was never there.
	expiredGrace = 30 * time.Second
)

// redisStore keeps a clustered cache in redis. Every key lives under
// "<prefix>:<cache>:" so caches sharing a deployment stay apart. Both parts
// are query-escaped: they hold no ':' of their own and no glob
// metacharacters, so one cache's key pattern never matches another's keys.
type redisStore struct {
	client *redis.Client
	prefix string

	mu      sync.RWMutex
	ttl     time.Duration
	tti     time.Duration
	timeout time.Duration

	// breaker is nil unless the cache is nonstop
	breaker *gobreaker.CircuitBreaker
}

func newRedisStore(client *redis.Client, keyPrefix, name string, cfg config.CacheConfiguration) *redisStore {
	prefix := url.QueryEscape(name) + ":"
	if keyPrefix != "" {
		prefix = url.QueryEscape(keyPrefix) + ":" + prefix
	}

	s := &redisStore{
		client: client,
		prefix: prefix,
	}
	s.apply(cfg)

	if cfg.IsNonstopEnabled() {
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: s.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("cache", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("cluster circuit state change")
			},
		})
	}
	return s
}

func (s *redisStore) apply(cfg config.CacheConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ttl, s.tti = 0, 0
	if !cfg.Eternal {
		s.ttl = time.Duration(cfg.TimeToLiveSeconds) * time.Second
		s.tti = time.Duration(cfg.TimeToIdleSeconds) * time.Second
	}
	if cfg.IsNonstopEnabled() {
		s.timeout = time.Duration(cfg.Clustered.Nonstop.TimeoutMillis) * time.Millisecond
		if s.timeout <= 0 {
			s.timeout = config.DefaultNonstopTimeoutMillis * time.Millisecond
		}
	}
}

func (s *redisStore) settings() (ttl, tti, timeout time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl, s.tti, s.timeout
}

// do runs fn under the nonstop timeout and circuit breaker when the cache is
// nonstop, reporting any failure as ErrNonStop.
func (s *redisStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return errors.Wrapf(fn(ctx), "redis %s", op)
	}

	_, _, timeout := s.settings()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		// timeouts, an open circuit and an unreachable cluster all mean the
		// operation could not complete in time
		return errors.Wrapf(ErrNonStop, "redis %s: %v", op, err)
	}
	return nil
}

func (s *redisStore) key(key string) string {
	return s.prefix + key
}

// expiry returns how long an element created at created may live from now on.
func (s *redisStore) expiry(created time.Time) time.Duration {
	ttl, tti, _ := s.settings()

	var remaining time.Duration
	if ttl > 0 {
		remaining = time.Until(created.Add(ttl))
		if remaining <= 0 {
			remaining = time.Millisecond
		}
	}
	if tti > 0 && (remaining == 0 || tti < remaining) {
		remaining = tti
	}
	if remaining > 0 {
		remaining += expiredGrace
	}
	return remaining
}

// lapsed reports whether a key with the given remaining time to live is only
// kept for expiredGrace. Keys without expiry report -1 and never lapse.
func lapsed(left time.Duration) bool {
	return left >= 0 && left <= expiredGrace
}

func (s *redisStore) get(ctx context.Context, key string) (any, lookup, error) {
	var (
		value  any
		result = lookupMiss
	)

	err := s.do(ctx, "get", func(ctx context.Context) error {
		var (
			get  *redis.StringCmd
			pttl *redis.DurationCmd
		)
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			get = pipe.Get(ctx, s.key(key))
			pttl = pipe.PTTL(ctx, s.key(key))
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		raw, err := get.Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if lapsed(pttl.Val()) {
			result = lookupExpired
			return s.client.Del(ctx, s.key(key)).Err()
		}

		v, created, err := decodeValue(raw)
		if err != nil {
			return err
		}
		if _, tti, _ := s.settings(); tti > 0 {
			if err := s.client.PExpire(ctx, s.key(key), s.expiry(created)).Err(); err != nil {
				return err
			}
		}

		value, result = v, lookupHit
		return nil
	})
	if err != nil {
		return nil, lookupMiss, err
	}
	return value, result, nil
}

func (s *redisStore) put(ctx context.Context, key string, value any) error {
	now := time.Now()
	raw, err := encodeValue(value, now)
	if err != nil {
		return err
	}

	return s.do(ctx, "put", func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(key), raw, s.expiry(now)).Err()
	})
}

func (s *redisStore) remove(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := s.do(ctx, "remove", func(ctx context.Context) error {
		n, err := s.client.Del(ctx, s.key(key)).Result()
		removed = n > 0
		return err
	})
	return removed, err
}

func (s *redisStore) removeAll(ctx context.Context) error {
	return s.do(ctx, "removeAll", func(ctx context.Context) error {
		keys, err := s.scan(ctx)
		if err != nil {
			return err
		}
		for start := 0; start < len(keys); start += scanBatch {
			end := min(start+scanBatch, len(keys))
			if err := s.client.Del(ctx, keys[start:end]...).Err(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *redisStore) contains(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.do(ctx, "contains", func(ctx context.Context) error {
		left, err := s.client.PTTL(ctx, s.key(key)).Result()
		// -2 is a missing key
		found = left != -2 && !lapsed(left)
		return err
	})
	return found, err
}

func (s *redisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.do(ctx, "keys", func(ctx context.Context) error {
		raw, err := s.scan(ctx)
		if err != nil {
			return err
		}
		keys = make([]string, 0, len(raw))
		for _, k := range raw {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		return nil
	})
	return keys, err
}

func (s *redisStore) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// sweep is a no-op: redis expires keys itself.
func (s *redisStore) sweep(context.Context) (int, error) {
	return 0, nil
}

func (s *redisStore) reconfigure(cfg config.CacheConfiguration) {
	s.apply(cfg)
}

func (s *redisStore) memorySize() int64 {
	return 0
}

func (s *redisStore) inMemoryBytes() int64 {
	return 0
}

func (s *redisStore) remoteSize(ctx context.Context) (int64, error) {
	keys, err := s.keys(ctx)
	return int64(len(keys)), err
}

// close leaves remote data in place; the client belongs to the manager.
func (s *redisStore) close() {}
