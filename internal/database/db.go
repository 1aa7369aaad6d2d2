package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/models"
)

// DB wraps the Postgres pool backing the listing-cache storage and the
// diagnosis scan history.
type DB struct {
	conn *sql.DB
}

// InitDB opens the pool, verifies it and applies the schema.
func InitDB(ctx context.Context, connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Log.Info("Database connection established")
	return db, nil
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS scan_images (
			id               TEXT PRIMARY KEY,
			user_id          TEXT             NOT NULL,
			image_url        TEXT             NOT NULL,
			plant_species    TEXT             NOT NULL DEFAULT '',
			disease_name     TEXT             NOT NULL DEFAULT '',
			severity         DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
			treatments       TEXT[]           NOT NULL DEFAULT '{}',
			prevention_steps TEXT[]           NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_scan_images_user ON scan_images(user_id);
	`)
	return err
}

// Get reads a listing-cache key. A missing key is reported with ok=false.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		logger.Log.Error("Failed to read kv_store key", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return value, true, nil
}

// Set upserts a listing-cache key in a single statement.
func (d *DB) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := d.conn.ExecContext(ctx, query, key, value); err != nil {
		logger.Log.Error("Failed to write kv_store key", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// CreateScan inserts a diagnosis record.
func (d *DB) CreateScan(ctx context.Context, scan *models.ScanRecord) error {
	query := `
		INSERT INTO scan_images (id, user_id, image_url, plant_species, disease_name, severity, confidence, treatments, prevention_steps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := d.conn.ExecContext(
		ctx,
		query,
		scan.ID,
		scan.UserID,
		scan.ImageURL,
		scan.PlantSpecies,
		scan.DiseaseName,
		scan.Severity,
		scan.Confidence,
		pq.Array(scan.Treatments),
		pq.Array(scan.PreventionSteps),
		scan.CreatedAt,
	)
	if err != nil {
		logger.Log.Error("Failed to create scan record",
			zap.String("scan_id", scan.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ListScansByUser returns a user's scans, newest first.
func (d *DB) ListScansByUser(ctx context.Context, userID string, limit int) ([]*models.ScanRecord, error) {
	query := `
		SELECT id, user_id, image_url, plant_species, disease_name, severity, confidence, treatments, prevention_steps, created_at
		FROM scan_images
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := d.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		logger.Log.Error("Failed to query scans by user ID",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*models.ScanRecord, error) {
	var scans []*models.ScanRecord

	for rows.Next() {
		var scan models.ScanRecord
		err := rows.Scan(
			&scan.ID,
			&scan.UserID,
			&scan.ImageURL,
			&scan.PlantSpecies,
			&scan.DiseaseName,
			&scan.Severity,
			&scan.Confidence,
			pq.Array(&scan.Treatments),
			pq.Array(&scan.PreventionSteps),
			&scan.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		scans = append(scans, &scan)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scans, nil
}
