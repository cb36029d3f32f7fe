package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	fiberredis "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis server backing the job queue
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to %s:%s: %v", host, port, err)
	} else {
		log.Infof("[Cache] Connected to %s:%s: %s", host, port, pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Ping reports whether the cache server is reachable
func Ping(c context.Context) error {
	return GetClient().Ping(c).Err()
}

// NewLimiterStorage returns a fiber.Storage on Redis database 1 so rate limit
// counters are shared between instances. Returns nil when the cache is down;
// callers fall back to the in-memory limiter store.
func NewLimiterStorage() fiber.Storage {
	if err := Ping(ctx); err != nil {
		log.Warnf("[Cache] Rate limiter falls back to memory storage: %v", err)
		return nil
	}

	host := "localhost"
	port := 6379
	opts := GetClient().Options()
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: 1,
		Reset:    false,
	})
}
