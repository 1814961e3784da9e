package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds one connection for persisted client state and a
// separate one for the hub's pub/sub fan-out, since a subscribed connection
// cannot issue regular commands.
type RedisClients struct {
	State  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stateClient := redis.NewClient(opt)
	if err := stateClient.Ping(ctx).Err(); err != nil {
		stateClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (state): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		stateClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		State:  stateClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.State.Close()
	r.PubSub.Close()
}
