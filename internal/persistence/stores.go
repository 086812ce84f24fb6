package persistence

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/config"
	"github.com/testimonioya/recovery-service/internal/repository"
)

// Backend names the store selected at startup.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// Stores bundles the repositories for the selected backend.
type Stores struct {
	Backend    Backend
	Cases      repository.RecoveryCaseRepository
	Businesses repository.BusinessRepository
	Users      repository.UserRepository
	NPS        repository.NPSResponseRepository

	postgres *Postgres
	sqlite   *sql.DB
}

// OpenStores picks Postgres when a DSN is set, SQLite when a path is set, and
// the in-memory store otherwise.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch {
	case cfg.Postgres.DSN != "":
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.Pool(), logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		pool := pg.Pool()
		return &Stores{
			Backend:    BackendPostgres,
			Cases:      repository.NewRecoveryCaseRepository(pool),
			Businesses: repository.NewBusinessRepository(pool),
			Users:      repository.NewUserRepository(pool),
			NPS:        repository.NewNPSResponseRepository(pool),
			postgres:   pg,
		}, nil
	case cfg.SQLite.Path != "":
		db, err := OpenSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Backend:    BackendSQLite,
			Cases:      repository.NewSQLiteRecoveryCaseRepository(db),
			Businesses: repository.NewSQLiteBusinessRepository(db),
			Users:      repository.NewSQLiteUserRepository(db),
			NPS:        repository.NewSQLiteNPSResponseRepository(db),
			sqlite:     db,
		}, nil
	default:
		logger.Warn("no database configured; using in-memory store")
		mem := repository.NewMemoryStore()
		return &Stores{
			Backend:    BackendMemory,
			Cases:      mem.Cases(),
			Businesses: mem.Businesses(),
			Users:      mem.Users(),
			NPS:        mem.NPS(),
		}, nil
	}
}

// Ping checks the underlying database.
func (s *Stores) Ping(ctx context.Context) error {
	switch s.Backend {
	case BackendPostgres:
		return s.postgres.Ping(ctx)
	case BackendSQLite:
		return s.sqlite.PingContext(ctx)
	}
	return nil
}

// Close releases database resources.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	s.postgres.Close()
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
}
