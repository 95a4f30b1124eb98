package main

import (
	"database/sql"
	"errors"
	"fmt"
)

// migrationStatus is the row golang-migrate keeps in schema_migrations.
type migrationStatus struct {
	Version int64
	Dirty   bool
	Applied bool
}

func (s migrationStatus) String() string {
	if !s.Applied {
		return "no migrations applied"
	}
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty: fix the failed migration, then run force %d)", s.Version, s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

func readStatus(db *sql.DB) (migrationStatus, error) {
	var exists bool
	if err := db.QueryRow(`SELECT to_regclass('public.schema_migrations') IS NOT NULL`).Scan(&exists); err != nil {
		return migrationStatus{}, fmt.Errorf("check schema_migrations: %w", err)
	}
	if !exists {
		return migrationStatus{}, nil
	}

	var status migrationStatus
	err := db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&status.Version, &status.Dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return migrationStatus{}, nil
	}
	if err != nil {
		return migrationStatus{}, fmt.Errorf("read schema_migrations: %w", err)
	}
	status.Applied = true
	return status, nil
}
