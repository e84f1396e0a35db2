// Package repotest holds behaviour checks shared by the repository backends.
package repotest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/capfit/internal/repository"
	"github.com/RMahshie/capfit/pkg/models"
)

// SampleAnalysis builds a complete three-circuit analysis created at ts
func SampleAnalysis(ts time.Time) *models.Analysis {
	series := func(t models.Topology, src string) models.MeasurementSeries {
		return models.MeasurementSeries{
			Topology:    t,
			Source:      src,
			Frequencies: []float64{100, 1000, 10000},
			Voltages:    []float64{3.5, 2.9, 0.7},
		}
	}
	result := func(t models.Topology, c float64, variance float64) models.FitResult {
		circuit := models.Circuit{Topology: t, SourceVoltage: 3.5, Resistance: 1475}
		if t == models.TopologyRCR {
			circuit.Resistance2 = 1197
		}
		return models.FitResult{
			Topology:    t,
			Label:       t.Label(),
			Circuit:     circuit,
			Bounds:      models.Bounds{Lower: 0, Upper: 1e-6},
			Capacitance: c,
			Variance:    variance,
			StdErr:      math.Sqrt(variance),
			ResidualSS:  1.5e-4,
			Iterations:  7,
			Series:      series(t, string(t)+"data.txt"),
		}
	}

	return &models.Analysis{
		ID:          uuid.New().String(),
		Environment: "test",
		Results: []models.FitResult{
			result(models.TopologyRC, 100e-9, 4e-20),
			result(models.TopologyCR, 98e-9, 9e-20),
			result(models.TopologyRCR, 102e-9, math.Inf(1)),
		},
		AverageCapacitance: 100e-9,
		CreatedAt:          ts.UTC().Truncate(time.Microsecond),
	}
}

// RunRepositoryTests exercises a freshly migrated, empty repository
func RunRepositoryTests(t *testing.T, repo repository.AnalysisRepository) {
	ctx := context.Background()

	t.Run("store and get", func(t *testing.T) {
		want := SampleAnalysis(time.Now())
		require.NoError(t, repo.StoreAnalysis(ctx, want))

		got, err := repo.GetByID(ctx, uuid.MustParse(want.ID))
		require.NoError(t, err)

		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Environment, got.Environment)
		assert.InDelta(t, want.AverageCapacitance, got.AverageCapacitance, 1e-21)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.Results, 3)

		for i, res := range got.Results {
			assert.Equal(t, want.Results[i].Topology, res.Topology)
			assert.Equal(t, want.Results[i].Label, res.Label)
			assert.Equal(t, want.Results[i].Circuit, res.Circuit)
			assert.Equal(t, want.Results[i].Bounds, res.Bounds)
			assert.Equal(t, want.Results[i].Capacitance, res.Capacitance)
			assert.Equal(t, want.Results[i].Iterations, res.Iterations)
			assert.Equal(t, want.Results[i].Series, res.Series)
		}
		assert.Equal(t, 4e-20, got.Results[0].Variance)
		assert.True(t, math.IsInf(got.Results[2].Variance, 1), "undefined variance survives a round trip")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("duplicate id is rejected atomically", func(t *testing.T) {
		a := SampleAnalysis(time.Now())
		require.NoError(t, repo.StoreAnalysis(ctx, a))

		dup := SampleAnalysis(time.Now())
		dup.ID = a.ID
		dup.Environment = "other"
		assert.Error(t, repo.StoreAnalysis(ctx, dup))

		got, err := repo.GetByID(ctx, uuid.MustParse(a.ID))
		require.NoError(t, err)
		assert.Equal(t, "test", got.Environment)
		assert.Len(t, got.Results, 3)
	})

	t.Run("list recent", func(t *testing.T) {
		base := time.Now().Add(time.Hour)
		older := SampleAnalysis(base)
		newer := SampleAnalysis(base.Add(time.Minute))
		require.NoError(t, repo.StoreAnalysis(ctx, older))
		require.NoError(t, repo.StoreAnalysis(ctx, newer))

		recent, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, newer.ID, recent[0].ID)
		assert.Equal(t, older.ID, recent[1].ID)
		assert.Len(t, recent[0].Results, 3)
	})
}
