package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client shared by the session store and the roster queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects lazily to addr. The read timeout stays above the
// queue's 5s BRPOP wait so a blocking pop is not cut short.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  7 * time.Second,
		WriteTimeout: time.Second,
	})}
}

// Healthy pings redis, giving up after two seconds.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
