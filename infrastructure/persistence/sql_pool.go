package persistence

import (
	"context"
	"database/sql"

	"social-publisher/infrastructure/configuration"
)

// configurePool applies database.pool to a freshly opened handle and checks
// that the server answers within the ping timeout.
func configurePool(db *sql.DB, pool configuration.Pool) error {
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(configuration.Seconds(pool.ConnMaxLifetimeSeconds))
	db.SetConnMaxIdleTime(configuration.Seconds(pool.ConnMaxIdleTimeSeconds))

	ctx, cancel := context.WithTimeout(context.Background(), configuration.Seconds(pool.PingTimeoutSeconds))
	defer cancel()
	return db.PingContext(ctx)
}
