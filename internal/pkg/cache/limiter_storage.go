package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

// limiterDatabase keeps rate-limit counters apart from the job queue (DB 0).
const limiterDatabase = 1

// NewLimiterStorage returns a redis-backed fiber.Storage for the API rate
// limiter, sharing host and credentials with the cache client.
func NewLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	opts := Options()
	if c := currentClient(); c != nil {
		opts = c.Options()
	}
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	if opts.Password != "" {
		password = opts.Password
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_DB", limiterDatabase),
		Reset:    false,
	})
}
