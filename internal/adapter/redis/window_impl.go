package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/user/imo-scraper/internal/entity"
)

const windowKeyPrefix = "scraper:rate:"

// reserveScript prunes the window, then adds the member only when the
// remaining count is under the limit. Returns 1 when added.
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// WindowRepoImpl stores each source's rolling window as a sorted set scored
// by unix microseconds, so several processes can share one quota.
type WindowRepoImpl struct {
	client *redis.Client
}

func NewWindowRepo(client *redis.Client) *WindowRepoImpl {
	return &WindowRepoImpl{client: client}
}

func (r *WindowRepoImpl) key(source entity.Source) string {
	return fmt.Sprintf("%s%s", windowKeyPrefix, source)
}

// Load prunes entries at or before since and returns the rest in order.
func (r *WindowRepoImpl) Load(ctx context.Context, source entity.Source, since time.Time) ([]time.Time, error) {
	key := r.key(source)
	cutoff := strconv.FormatInt(since.UnixMicro(), 10)
	if err := r.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return nil, err
	}
	members, err := r.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(members))
	for _, z := range members {
		out = append(out, time.UnixMicro(int64(z.Score)).UTC())
	}
	return out, nil
}

// Save adds the window's timestamps and drops anything older than its first.
func (r *WindowRepoImpl) Save(ctx context.Context, w entity.RateWindow) error {
	if len(w.Requests) == 0 {
		return nil
	}
	key := r.key(w.Source)
	members := make([]redis.Z, 0, len(w.Requests))
	for _, t := range w.Requests {
		members = append(members, redis.Z{Score: float64(t.UnixMicro()), Member: t.UTC().Format(time.RFC3339Nano)})
	}
	oldest := strconv.FormatInt(w.Requests[0].UnixMicro(), 10)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, members...)
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+oldest)
		return nil
	})
	return err
}

// Reserve checks and records one grant atomically. Members carry a random
// suffix so grants from different processes in the same microsecond both count.
func (r *WindowRepoImpl) Reserve(ctx context.Context, source entity.Source, at time.Time, window time.Duration, limit int) (bool, []time.Time, error) {
	key := r.key(source)
	since := at.Add(-window)
	member := fmt.Sprintf("%s/%s", at.UTC().Format(time.RFC3339Nano), uuid.NewString())
	added, err := reserveScript.Run(ctx, r.client, []string{key},
		since.UnixMicro(), at.UnixMicro(), limit, member, window.Milliseconds(),
	).Int()
	if err != nil {
		return false, nil, fmt.Errorf("reserve rate slot: %w", err)
	}
	if added == 1 {
		return true, nil, nil
	}
	stored, err := r.Load(ctx, source, since)
	if err != nil {
		return false, nil, err
	}
	return false, stored, nil
}
