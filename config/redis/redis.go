package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 5 * time.Second
	readTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
	poolSize     = 10
	poolTimeout  = 4 * time.Second
)

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	UseTracer bool
	UseTLS    bool
}

// RedisDB wraps the client backing the pending-reconciliation flag store.
type RedisDB struct {
	Client *redis.Client
}

func NewRedisDB(ctx context.Context, cfg RedisConfig) (*RedisDB, error) {
	options := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		PoolSize:     poolSize,
		PoolTimeout:  poolTimeout,
	}

	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	} else {
		options.TLSConfig = &tls.Config{}
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Address, err)
	}

	if cfg.UseTracer {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return nil, err
		}
	}

	return &RedisDB{Client: client}, nil
}
