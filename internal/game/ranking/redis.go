package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOrderedSet implements OrderedSet on a Redis sorted set (member =
// player id, score = timing error in ms, ascending) plus a hash holding
// display names beside it.
type RedisOrderedSet struct {
	client *redis.Client
}

// NewRedisOrderedSet wraps an existing Redis client.
func NewRedisOrderedSet(client *redis.Client) *RedisOrderedSet {
	return &RedisOrderedSet{client: client}
}

func namesKey(set string) string {
	return set + ":names"
}

func (r *RedisOrderedSet) Score(ctx context.Context, set, member string) (int64, error) {
	score, err := r.client.ZScore(ctx, set, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotRanked
	}
	if err != nil {
		return 0, fmt.Errorf("zscore %s: %w", set, err)
	}
	return int64(score), nil
}

func (r *RedisOrderedSet) Add(ctx context.Context, set, member string, score int64) error {
	if err := r.client.ZAdd(ctx, set, redis.Z{Member: member, Score: float64(score)}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", set, err)
	}
	return nil
}

func (r *RedisOrderedSet) Rank(ctx context.Context, set, member string) (int64, error) {
	rank, err := r.client.ZRank(ctx, set, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotRanked
	}
	if err != nil {
		return 0, fmt.Errorf("zrank %s: %w", set, err)
	}
	return rank, nil
}

func (r *RedisOrderedSet) Range(ctx context.Context, set string, n int64) ([]ScoredMember, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := r.client.ZRangeWithScores(ctx, set, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", set, err)
	}
	members := make([]ScoredMember, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		members[i] = ScoredMember{Member: member, Score: int64(z.Score)}
	}
	return members, nil
}

func (r *RedisOrderedSet) Card(ctx context.Context, set string) (int64, error) {
	n, err := r.client.ZCard(ctx, set).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", set, err)
	}
	return n, nil
}

func (r *RedisOrderedSet) SetName(ctx context.Context, set, member, name string) error {
	if err := r.client.HSet(ctx, namesKey(set), member, name).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", namesKey(set), err)
	}
	return nil
}

func (r *RedisOrderedSet) Names(ctx context.Context, set string, members []string) (map[string]string, error) {
	if len(members) == 0 {
		return map[string]string{}, nil
	}
	vals, err := r.client.HMGet(ctx, namesKey(set), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget %s: %w", namesKey(set), err)
	}
	names := make(map[string]string, len(members))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			names[members[i]] = s
		}
	}
	return names, nil
}
