package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/bidhub/auction-backend/shared"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var DB *sql.DB

// Connect establishes the database connection with default pool configuration
func Connect(dbURL string) error {
	config := shared.NewDefaultUnifiedConfiguration().Database
	return ConnectWithConfig(dbURL, &config)
}

// ConnectWithConfig establishes database connection with custom configuration
func ConnectWithConfig(dbURL string, config *shared.DatabaseConfig) error {
	var err error
	DB, err = sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(config.MaxOpenConns)
	DB.SetMaxIdleConns(config.MaxIdleConns)
	DB.SetConnMaxLifetime(config.ConnMaxLifetime)
	DB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":    config.MaxOpenConns,
		"max_idle_conns":    config.MaxIdleConns,
		"conn_max_lifetime": config.ConnMaxLifetime,
	}).Info("Connected to database successfully")

	return nil
}

// Migrate applies the schema file. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so re-running on startup is safe.
func Migrate(schemaPath string) error {
	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
	}

	if _, err := DB.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logrus.WithField("schema", schemaPath).Info("Database schema applied")
	return nil
}

// SeedLiveChannels creates poolSize broadcast channels when the pool table
// is empty, so a fresh deployment can go live without manual setup.
func SeedLiveChannels(poolSize int) error {
	var count int
	if err := DB.QueryRow(`SELECT COUNT(*) FROM live_channels`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count live channels: %w", err)
	}
	if count > 0 {
		return nil
	}

	for i := 0; i < poolSize; i++ {
		_, err := DB.Exec(`
			INSERT INTO live_channels (stream_url, stream_key, watch_url, is_allocated, is_available)
			VALUES ($1, '', '', FALSE, TRUE)`,
			"rtmp://a.rtmp.youtube.com/live2",
		)
		if err != nil {
			return fmt.Errorf("failed to seed live channel: %w", err)
		}
	}

	logrus.WithField("pool_size", poolSize).Info("Seeded live channel pool")
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logrus.Info("Database connection closed")
	}
}
