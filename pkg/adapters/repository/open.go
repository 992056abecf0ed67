// Package repository selects a LinkStore implementation from a database URL.
package repository

import (
	"fmt"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// Open connects to PostgreSQL for postgres:// URLs and to SQLite (local file or
// libsql remote) for everything else. The schema is created when missing.
func Open(dbURL string) (ports.LinkStore, error) {
	if postgres.IsPostgresURL(dbURL) {
		repo, err := postgres.NewPostgresRepository(dbURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return repo, nil
	}

	repo, err := sqlite.NewSQLiteRepository(dbURL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return repo, nil
}
