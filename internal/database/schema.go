package database

// SQL schemas for all ClickHouse tables

const (
	// PredictionsTableSQL creates the immutable prediction log, one row per pipeline run
	PredictionsTableSQL = `
		CREATE TABLE IF NOT EXISTS predictions (
			id String,
			created_at DateTime64(3),
			predicted_fault LowCardinality(String),
			probabilities String,
			features Array(String),
			row_count UInt32,
			dataset_name String,
			source LowCardinality(String),
			model_version LowCardinality(String)
		) ENGINE = MergeTree()
		ORDER BY (created_at, id)
		PARTITION BY toYYYYMM(created_at)
	`

	// FaultHistoryTableSQL creates the append-only fault history
	FaultHistoryTableSQL = `
		CREATE TABLE IF NOT EXISTS fault_history (
			id String,
			timestamp DateTime64(3),
			fault_type LowCardinality(String),
			severity LowCardinality(String),
			confidence Float64,
			dataset_name String,
			features_used Array(String),
			duration Nullable(String)
		) ENGINE = MergeTree()
		ORDER BY (timestamp, id)
		PARTITION BY toYYYYMM(timestamp)
	`

	// SystemStatusTableSQL creates the live status table.
	// An update inserts a new version of the row; reads use FINAL to see the latest.
	SystemStatusTableSQL = `
		CREATE TABLE IF NOT EXISTS system_status (
			id String,
			status LowCardinality(String),
			current_fault LowCardinality(String),
			confidence Float64,
			last_updated DateTime64(3)
		) ENGINE = ReplacingMergeTree(last_updated)
		ORDER BY id
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		PredictionsTableSQL,
		FaultHistoryTableSQL,
		SystemStatusTableSQL,
	}
}
