package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"pv-monitor/internal/ml"
	"pv-monitor/internal/models"
)

// ErrStatusNotFound is returned when the live status row has not been bootstrapped
var ErrStatusNotFound = errors.New("system status not found")

type ClickHouseDB struct {
	conn   driver.Conn
	logger *slog.Logger
}

// ClickHouseConfig holds connection settings
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseDB creates a new ClickHouse database connection, creates the tables
// and bootstraps the live status row
func NewClickHouseDB(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouseDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := &ClickHouseDB{conn: conn, logger: logger.With("component", "clickhouse")}
	db.logger.Info("connected", "addr", cfg.Addr, "database", cfg.Database)

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := db.EnsureStatus(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("schema initialized")
	return nil
}

// EnsureStatus inserts a Normal live status row when the table is empty
func (db *ClickHouseDB) EnsureStatus(ctx context.Context) error {
	_, err := db.ReadStatusID(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrStatusNotFound) {
		return err
	}

	initial := InitialStatus(uuid.NewString(), time.Now().UTC())
	if err := db.UpdateStatus(ctx, initial.ID, initial); err != nil {
		return fmt.Errorf("failed to bootstrap system status: %w", err)
	}
	db.logger.Info("system status bootstrapped", "id", initial.ID)
	return nil
}

// InsertPrediction appends to the prediction log
func (db *ClickHouseDB) InsertPrediction(ctx context.Context, record *models.PredictionRecord) error {
	probabilities, err := encodeProbabilities(record.Probabilities)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO predictions (id, created_at, predicted_fault, probabilities, features, row_count, dataset_name, source, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = db.conn.Exec(ctx, query,
		record.ID,
		record.CreatedAt,
		record.PredictedFault.String(),
		probabilities,
		record.InputFeatures.Features,
		uint32(record.InputFeatures.RowCount),
		record.DatasetName,
		record.Source,
		ml.ModelVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction record: %w", err)
	}

	return nil
}

// InsertHistory appends a qualifying fault to the history
func (db *ClickHouseDB) InsertHistory(ctx context.Context, record *models.HistoryRecord) error {
	query := `
		INSERT INTO fault_history (id, timestamp, fault_type, severity, confidence, dataset_name, features_used, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		record.ID,
		record.Timestamp,
		record.FaultType.String(),
		string(record.Severity),
		record.Confidence,
		record.DatasetName,
		record.FeaturesUsed,
		record.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fault history: %w", err)
	}

	return nil
}

// ListHistory returns one page of fault history, newest first, and the total row count
func (db *ClickHouseDB) ListHistory(ctx context.Context, limit, offset int) ([]models.HistoryRecord, int, error) {
	var total uint64
	if err := db.conn.QueryRow(ctx, `SELECT count() FROM fault_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count fault history: %w", err)
	}

	query := `
		SELECT id, timestamp, fault_type, severity, confidence, dataset_name, features_used, duration
		FROM fault_history
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query fault history: %w", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0, limit)
	for rows.Next() {
		var (
			rec       models.HistoryRecord
			faultType string
			severity  string
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &faultType, &severity, &rec.Confidence, &rec.DatasetName, &rec.FeaturesUsed, &rec.Duration); err != nil {
			return nil, 0, fmt.Errorf("failed to scan fault history: %w", err)
		}
		if rec.FaultType, err = models.ParseFaultType(faultType); err != nil {
			db.logger.Warn("skipping history row with unknown fault type", "id", rec.ID, "fault_type", faultType)
			continue
		}
		rec.Severity = models.Severity(severity)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read fault history: %w", err)
	}

	return records, int(total), nil
}

// ReadStatusID returns the id of the live status row
func (db *ClickHouseDB) ReadStatusID(ctx context.Context) (string, error) {
	var id string
	err := db.conn.QueryRow(ctx, `SELECT id FROM system_status FINAL ORDER BY last_updated DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStatusNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read system status id: %w", err)
	}
	return id, nil
}

// GetStatus returns the latest version of the live status row
func (db *ClickHouseDB) GetStatus(ctx context.Context) (*models.SystemStatus, error) {
	query := `
		SELECT id, status, current_fault, confidence, last_updated
		FROM system_status FINAL
		ORDER BY last_updated DESC
		LIMIT 1
	`

	var id, status, fault string
	var confidence float64
	var lastUpdated time.Time
	err := db.conn.QueryRow(ctx, query).Scan(&id, &status, &fault, &confidence, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read system status: %w", err)
	}

	return decodeStatus(id, status, fault, confidence, lastUpdated)
}

// UpdateStatus writes a new version of the live status row
func (db *ClickHouseDB) UpdateStatus(ctx context.Context, id string, status *models.SystemStatus) error {
	query := `
		INSERT INTO system_status (id, status, current_fault, confidence, last_updated)
		VALUES (?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		id,
		string(status.Status),
		status.CurrentFault.String(),
		status.Confidence,
		status.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to update system status: %w", err)
	}

	return nil
}

// Ping checks that the server is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}

// InitialStatus is the live status written when none exists
func InitialStatus(id string, now time.Time) *models.SystemStatus {
	return &models.SystemStatus{
		ID:           id,
		Status:       models.StatusNormal,
		CurrentFault: models.Normal,
		Confidence:   0,
		LastUpdated:  now,
	}
}

// encodeProbabilities serializes the ranked distribution for the probabilities column
func encodeProbabilities(predictions []models.ScoredPrediction) (string, error) {
	b, err := json.Marshal(predictions)
	if err != nil {
		return "", fmt.Errorf("failed to encode probabilities: %w", err)
	}
	return string(b), nil
}

func decodeStatus(id, status, fault string, confidence float64, lastUpdated time.Time) (*models.SystemStatus, error) {
	level, err := models.ParseStatusLevel(status)
	if err != nil {
		return nil, fmt.Errorf("corrupt system status %s: %w", id, err)
	}
	faultType, err := models.ParseFaultType(fault)
	if err != nil {
		return nil, fmt.Errorf("corrupt system status %s: %w", id, err)
	}
	return &models.SystemStatus{
		ID:           id,
		Status:       level,
		CurrentFault: faultType,
		Confidence:   confidence,
		LastUpdated:  lastUpdated,
	}, nil
}
