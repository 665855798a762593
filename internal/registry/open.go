// Package registry opens the configured artifact store.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/adapters/secondary/postgres"
	"fraud-classifier-service/internal/adapters/secondary/sqlite"
	"fraud-classifier-service/internal/config"
	ports "fraud-classifier-service/internal/core/ports/output"
)

// Open returns the artifact store selected by cfg.Driver and a release func
// that is safe to call more than once.
func Open(ctx context.Context, cfg *config.RegistryConfig) (ports.ArtifactRepository, func(), error) {
	switch cfg.Driver {
	case config.RegistryPostgres:
		return openPostgres(ctx, cfg)
	case config.RegistrySQLite:
		return openSQLite(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *config.RegistryConfig) (ports.ArtifactRepository, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("postgres registry connection established")

	repo := postgres.NewArtifactRepository(pool)
	var once sync.Once
	return repo, func() {
		once.Do(func() {
			_ = repo.Close()
			pool.Close()
		})
	}, nil
}

func openSQLite(cfg *config.RegistryConfig) (ports.ArtifactRepository, func(), error) {
	repo, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("path", cfg.SQLitePath).Debug("sqlite registry opened")

	var once sync.Once
	return repo, func() {
		once.Do(func() {
			if err := repo.Close(); err != nil {
				log.WithError(err).Warn("close sqlite registry")
			}
		})
	}, nil
}
