package app

import (
	"context"
	"fmt"

	"github.com/posixpascal/discourse-piratenlogin/internal/config"
	"github.com/posixpascal/discourse-piratenlogin/internal/db"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
	"github.com/posixpascal/discourse-piratenlogin/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := Migrate(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})

	return &Infra{
		DB:    database,
		Redis: redisClient,
	}, nil
}

// Migrate opens the database, applies the schema and defines the
// authorization group. The caller owns the returned handle.
func Migrate(ctx context.Context, cfg config.Config) (*db.DB, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}

	group := cfg.Policy().GroupName
	if err := db.EnsureGroup(ctx, database, group); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info("database ready", map[string]any{"group": group})
	return database, nil
}

func (i *Infra) Close() error {
	var firstErr error
	if err := i.Redis.Close(); err != nil {
		firstErr = err
	}
	if err := i.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
