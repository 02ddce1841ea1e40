package db

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var MigrationFS embed.FS

func InitDB(conn string) (*sqlx.DB, error) {
	log.Info("connecting to DB")

	DB, err := sqlx.Connect("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := DB.Ping(); err != nil {
		DB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrations(DB); err != nil {
		DB.Close()
		return nil, err
	}

	log.Info("Database connection established")
	return DB, nil
}

// Migrations applies the embedded schema on the open connection.
func Migrations(db *sqlx.DB) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("MIGRATIONS: create postgres driver: %w", err)
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("MIGRATIONS: open embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("MIGRATIONS: initialize migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("MIGRATIONS: apply: %w", err)
	}

	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"version": version, "dirty": dirty}).Info("MIGRATIONS: database is up to date")
	return nil
}
