package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RMahshie/capfit/internal/repository"
	"github.com/RMahshie/capfit/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id UUID PRIMARY KEY,
	environment TEXT NOT NULL,
	average_capacitance DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS fit_results (
	analysis_id UUID NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	topology TEXT NOT NULL,
	label TEXT NOT NULL,
	source_voltage DOUBLE PRECISION NOT NULL,
	resistance DOUBLE PRECISION NOT NULL,
	resistance_2 DOUBLE PRECISION NOT NULL,
	lower_bound DOUBLE PRECISION NOT NULL,
	upper_bound DOUBLE PRECISION NOT NULL,
	capacitance DOUBLE PRECISION NOT NULL,
	variance DOUBLE PRECISION,
	std_err DOUBLE PRECISION,
	residual_ss DOUBLE PRECISION NOT NULL,
	iterations INTEGER NOT NULL,
	source TEXT NOT NULL,
	series JSONB NOT NULL,
	PRIMARY KEY (analysis_id, position)
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses (created_at DESC);
`

// PostgresAnalysisRepository implements AnalysisRepository for PostgreSQL
type PostgresAnalysisRepository struct {
	db *sql.DB
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db *sql.DB) repository.AnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

// Migrate creates the tables if they do not exist
func (r *PostgresAnalysisRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// StoreAnalysis inserts an analysis and its fit results in one transaction
func (r *PostgresAnalysisRepository) StoreAnalysis(ctx context.Context, analysis *models.Analysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, environment, average_capacitance, created_at)
		VALUES ($1, $2, $3, $4)`,
		analysis.ID,
		analysis.Environment,
		analysis.AverageCapacitance,
		analysis.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	query := `
		INSERT INTO fit_results (analysis_id, position, topology, label, source_voltage, resistance, resistance_2,
			lower_bound, upper_bound, capacitance, variance, std_err, residual_ss, iterations, source, series)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

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
func (r *PostgresAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	query := `
		SELECT id, environment, average_capacitance, created_at
		FROM analyses
		WHERE id = $1`

	var analysis models.Analysis
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&analysis.ID,
		&analysis.Environment,
		&analysis.AverageCapacitance,
		&analysis.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	analysis.CreatedAt = analysis.CreatedAt.UTC()

	results, err := r.getResults(ctx, id)
	if err != nil {
		return nil, err
	}
	analysis.Results = results

	return &analysis, nil
}

// ListRecent returns the newest analyses first
func (r *PostgresAnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*models.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
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

// Close closes the underlying connection pool
func (r *PostgresAnalysisRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresAnalysisRepository) getResults(ctx context.Context, id uuid.UUID) ([]models.FitResult, error) {
	query := `
		SELECT topology, label, source_voltage, resistance, resistance_2, lower_bound, upper_bound,
			capacitance, variance, std_err, residual_ss, iterations, source, series
		FROM fit_results
		WHERE analysis_id = $1
		ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, id)
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
