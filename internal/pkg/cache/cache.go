package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

var (
	mu     sync.RWMutex
	client *redis.Client
)

// Options returns the redis connection settings from the environment.
func Options() *redis.Options {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	}
}

// SetupCache initializes the shared redis client used by the job queue.
func SetupCache() {
	c := redis.NewClient(Options())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := c.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to redis cache: %s", pong)
	}
	SetClient(c)
}

// SetClient replaces the shared client. Tests point it at miniredis.
func SetClient(c *redis.Client) {
	mu.Lock()
	defer mu.Unlock()
	client = c
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	mu.RLock()
	c := client
	mu.RUnlock()
	if c == nil {
		SetupCache()
		mu.RLock()
		c = client
		mu.RUnlock()
	}
	return c
}

func currentClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// Ping reports whether the cache answers within the context deadline.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// Close closes the shared client if one was created.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
