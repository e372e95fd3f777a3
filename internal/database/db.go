// Package database owns the MySQL connection pool.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/tenant-auth/internal/config"
)

// Open builds the connection pool from the loaded configuration and
// verifies it with a bounded ping. parseTime and loc=UTC keep every
// DATETIME column flowing through as a UTC time.Time; the conditional
// lookups in the repositories (session rotation, token consumption)
// depend on that consistency.
func Open(cfg config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&timeout=5s",
		credentials(cfg), cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func credentials(cfg config.Config) string {
	if cfg.DBPass == "" {
		return cfg.DBUser
	}
	return cfg.DBUser + ":" + cfg.DBPass
}
