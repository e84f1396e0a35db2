// Package sqlite stores analyses in a local SQLite file using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/RMahshie/capfit/internal/repository"
	"github.com/RMahshie/capfit/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	environment TEXT NOT NULL,
	average_capacitance REAL NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fit_results (
	analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	topology TEXT NOT NULL,
	label TEXT NOT NULL,
	source_voltage REAL NOT NULL,
	resistance REAL NOT NULL,
	resistance_2 REAL NOT NULL,
	lower_bound REAL NOT NULL,
	upper_bound REAL NOT NULL,
	capacitance REAL NOT NULL,
	variance REAL,
	std_err REAL,
	residual_ss REAL NOT NULL,
	iterations INTEGER NOT NULL,
	source TEXT NOT NULL,
	series TEXT NOT NULL,
	PRIMARY KEY (analysis_id, position)
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses (created_at DESC);
`

// Open opens (creating if needed) the database file at path. A sqlite://
// prefix is accepted so DATABASE_URL can be passed straight through.
func Open(path string) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteAnalysisRepository implements AnalysisRepository for SQLite
type SQLiteAnalysisRepository struct {
	db *sql.DB
}

// NewSQLiteAnalysisRepository creates a new SQLite analysis repository
func NewSQLiteAnalysisRepository(db *sql.DB) repository.AnalysisRepository {
	return &SQLiteAnalysisRepository{db: db}
}

// Migrate creates the tables if they do not exist
func (r *SQLiteAnalysisRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// StoreAnalysis inserts an analysis and its fit results in one transaction
func (r *SQLiteAnalysisRepository) StoreAnalysis(ctx context.Context, analysis *models.Analysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analyses (id, environment, average_capacitance, created_at) VALUES (?, ?, ?, ?)`,
		analysis.ID,
		analysis.Environment,
		analysis.AverageCapacitance,
		analysis.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	query := `
		INSERT INTO fit_results (analysis_id, position, topology, label, source_voltage, resistance, resistance_2,
			lower_bound, upper_bound, capacitance, variance, std_err, residual_ss, iterations, source, series)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, res := range analysis.Results {
		series, err := repository.EncodeSeries(res.Series)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query,
			analysis.ID,
			i,
			string(res.Topology),
			res.Label,
			res.Circuit.SourceVoltage,
			res.Circuit.Resistance,
			res.Circuit.Resistance2,
			res.Bounds.Lower,
			res.Bounds.Upper,
			res.Capacitance,
			repository.NullableFloat(res.Variance),
			repository.NullableFloat(res.StdErr),
			res.ResidualSS,
			res.Iterations,
			res.Series.Source,
			series)
		if err != nil {
			return fmt.Errorf("failed to insert %s result: %w", res.Topology, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves an analysis and its fit results
func (r *SQLiteAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	var analysis models.Analysis
	var createdAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, environment, average_capacitance, created_at FROM analyses WHERE id = ?`,
		id.String()).Scan(
		&analysis.ID,
		&analysis.Environment,
		&analysis.AverageCapacitance,
		&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	analysis.CreatedAt = time.Unix(0, createdAt).UTC()

	results, err := r.getResults(ctx, id)
	if err != nil {
		return nil, err
	}
	analysis.Results = results

	return &analysis, nil
}

// ListRecent returns the newest analyses first
func (r *SQLiteAnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*models.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	// Drain the cursor first: the pool holds a single connection.
	var ids []uuid.UUID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid analysis id %q: %w", id, err)
		}
		ids = append(ids, parsed)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	analyses := make([]*models.Analysis, 0, len(ids))
	for _, id := range ids {
		analysis, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, nil
}

// Close closes the database
func (r *SQLiteAnalysisRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteAnalysisRepository) getResults(ctx context.Context, id uuid.UUID) ([]models.FitResult, error) {
	query := `
		SELECT topology, label, source_voltage, resistance, resistance_2, lower_bound, upper_bound,
			capacitance, variance, std_err, residual_ss, iterations, source, series
		FROM fit_results
		WHERE analysis_id = ?
		ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.FitResult
	for rows.Next() {
		var res models.FitResult
		var variance, stdErr sql.NullFloat64
		var source, series string

		err := rows.Scan(
			&res.Topology,
			&res.Label,
			&res.Circuit.SourceVoltage,
			&res.Circuit.Resistance,
			&res.Circuit.Resistance2,
			&res.Bounds.Lower,
			&res.Bounds.Upper,
			&res.Capacitance,
			&variance,
			&stdErr,
			&res.ResidualSS,
			&res.Iterations,
			&source,
			&series)
		if err != nil {
			return nil, err
		}

		res.Circuit.Topology = res.Topology
		res.Variance = repository.FloatOrInf(variance)
		res.StdErr = repository.FloatOrInf(stdErr)
		res.Series, err = repository.DecodeSeries(series, res.Topology, source)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}
