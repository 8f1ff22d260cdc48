// Command migrate applies the store schema without starting the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mariovalmir/chatwoot/internal/config"
	"github.com/mariovalmir/chatwoot/internal/database"
	"github.com/mariovalmir/chatwoot/internal/migrations"
	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file; its database section is used")
	driver := flag.String("driver", migrations.DriverSQLite, "Database driver: sqlite3 or postgres")
	dbPath := flag.String("db", "./waingest.db", "Path to the sqlite database file")
	dsn := flag.String("dsn", "", "Postgres connection string")
	dir := flag.String("dir", "", "Directory with extra <driver>/*.sql migrations")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := models.DatabaseConfig{Driver: *driver, Path: *dbPath, DSN: *dsn}
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded.Database
	}
	if *dir != "" {
		migrations.MigrationsDir = *dir
	}

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, cfg models.DatabaseConfig, logger *logrus.Logger) error {
	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Fprintf(os.Stdout, "applied %s\n", name)
	}
	logger.WithField("driver", db.Driver()).Info("Database schema is up to date")
	return nil
}
