package postgres

import (
	"context"
	"database/sql"
)

// Client represents a Postgres client interface for testing and abstraction
type Client interface {
	// Connect establishes the connection pool
	Connect(ctx context.Context) error

	// DB returns the underlying connection pool
	DB() *sql.DB

	// Ping checks the connection to Postgres
	Ping(ctx context.Context) error

	// Close closes the connection pool
	Close() error
}
