package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories that share one connection pool. It is the
// storage handle passed to every provider worker.
type Store struct {
	*JobRepository
	*PriceRepository
	*AlertRepository

	pool *pgxpool.Pool
}

// NewStore wires all repositories onto the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		JobRepository:   NewJobRepository(pool),
		PriceRepository: NewPriceRepository(pool),
		AlertRepository: NewAlertRepository(pool),
		pool:            pool,
	}
}

// Ping verifies database connectivity. It backs the /health probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureSchema(ctx, s.pool)
}
