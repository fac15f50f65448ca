// Package store opens the appointment backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/parchi-health/parchi/internal/appointment"
	"github.com/parchi-health/parchi/internal/config"
	"github.com/parchi-health/parchi/internal/db"
	"github.com/parchi-health/parchi/internal/logger"
)

// Backend is everything the binaries need from a store.
type Backend interface {
	appointment.Repository
	appointment.Directory
	Ping(ctx context.Context) error
}

var (
	_ Backend = (*appointment.PgRepository)(nil)
	_ Backend = (*appointment.MongoRepository)(nil)
)

type Store struct {
	Backend
	Driver string
	close  func()
}

// Open connects to the configured driver and prepares its schema: migrations
// for postgres, indexes for mongo.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	entry := log.WithComponent("store").WithField("driver", cfg.StoreDriver)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		entry.Info("connected to postgres")
		return &Store{
			Backend: appointment.NewPgRepository(pool),
			Driver:  cfg.StoreDriver,
			close:   pool.Close,
		}, nil

	case config.StoreMongo:
		database, err := db.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo := appointment.NewMongoRepository(database)
		if err := repo.EnsureIndexes(connectCtx); err != nil {
			_ = database.Client().Disconnect(context.Background())
			return nil, err
		}
		entry.WithField("database", cfg.MongoDatabase).Info("connected to mongo")
		return &Store{
			Backend: repo,
			Driver:  cfg.StoreDriver,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := database.Client().Disconnect(ctx); err != nil {
					entry.WithError(err).Warn("error disconnecting mongo")
				}
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
