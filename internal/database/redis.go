// internal/database/redis.go
package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"

	"circula/internal/config"
)

// OpenRedis connects to Redis. Redis only backs the reservation grace-window
// holds, so an unreachable instance is tolerated: the caller receives nil and
// promotion degrades to advisory-only.
func OpenRedis(cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis connection failed, continuing without holds: %v", err)
		return nil
	}

	log.Println("redis connection established")
	return rdb
}
