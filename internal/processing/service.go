package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/RMahshie/capfit/internal/circuit"
	"github.com/RMahshie/capfit/internal/config"
	"github.com/RMahshie/capfit/internal/fitting"
	"github.com/RMahshie/capfit/internal/loader"
	"github.com/RMahshie/capfit/internal/repository"
	"github.com/RMahshie/capfit/pkg/models"
)

// AnalysisService runs the load and fit pipeline over every configured circuit
type AnalysisService interface {
	Run(ctx context.Context) (*models.Analysis, error)
}

// Job describes one circuit to fit
type Job struct {
	Topology models.Topology
	File     string
	Circuit  models.Circuit
	Bounds   models.Bounds
}

// Options tunes the pipeline
type Options struct {
	Environment string
	Loader      loader.Options
	Fitter      fitting.Options
	// Now stamps new analyses; time.Now when nil
	Now func() time.Time
}

type analysisService struct {
	source     loader.Source
	repository repository.AnalysisRepository
	jobs       []Job
	opts       Options
}

// NewAnalysisService creates the pipeline. repo may be nil, in which case
// nothing is persisted.
func NewAnalysisService(src loader.Source, repo repository.AnalysisRepository, jobs []Job, opts Options) AnalysisService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fitter.MaxIterations <= 0 {
		opts.Fitter = fitting.DefaultOptions()
	}
	return &analysisService{
		source:     src,
		repository: repo,
		jobs:       jobs,
		opts:       opts,
	}
}

// JobsFromConfig builds the RC, CR and RCR jobs in reporting order
func JobsFromConfig(cfg *config.Config) []Job {
	jobs := make([]Job, 0, len(models.Topologies))
	for _, t := range models.Topologies {
		jobs = append(jobs, Job{
			Topology: t,
			File:     cfg.DataFileFor(t),
			Circuit:  cfg.CircuitFor(t),
			Bounds:   cfg.BoundsFor(t),
		})
	}
	return jobs
}

// OptionsFromConfig derives pipeline options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Environment: cfg.Env,
		Loader:      loader.Options{StrictOrder: cfg.Data.StrictOrder},
		Fitter:      fitting.DefaultOptions(),
	}
}

func (s *analysisService) Run(ctx context.Context) (*models.Analysis, error) {
	if len(s.jobs) == 0 {
		return nil, fmt.Errorf("no circuits configured")
	}

	results := make([]models.FitResult, 0, len(s.jobs))
	capacitances := make([]float64, 0, len(s.jobs))

	for _, job := range s.jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		series, err := loader.Load(ctx, s.source, job.File, job.Topology, s.opts.Loader)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", job.Topology, err)
		}
		log.Debug().
			Str("topology", string(job.Topology)).
			Str("file", job.File).
			Int("points", series.Len()).
			Msg("Loaded measurements")

		result, err := FitSeries(series, job.Circuit, job.Bounds, s.opts.Fitter)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", job.Topology, err)
		}
		log.Info().
			Str("topology", string(job.Topology)).
			Float64("capacitance_nf", result.Nanofarads()).
			Float64("std_err_nf", result.StdErr*models.FaradsToNanofarads).
			Int("iterations", result.Iterations).
			Msg("Fitted capacitance")

		results = append(results, *result)
		capacitances = append(capacitances, result.Capacitance)
	}

	analysis := &models.Analysis{
		ID:                 uuid.New().String(),
		Environment:        s.opts.Environment,
		Results:            results,
		AverageCapacitance: stat.Mean(capacitances, nil),
		CreatedAt:          s.opts.Now().UTC(),
	}

	if s.repository != nil {
		if err := s.repository.StoreAnalysis(ctx, analysis); err != nil {
			return nil, fmt.Errorf("failed to store analysis: %w", err)
		}
		log.Info().Str("analysis_id", analysis.ID).Msg("Stored analysis")
	}

	return analysis, nil
}

// FitSeries fits the circuit model to a measured series
func FitSeries(series *models.MeasurementSeries, c models.Circuit, bounds models.Bounds, opts fitting.Options) (*models.FitResult, error) {
	model, err := circuit.Model(c)
	if err != nil {
		return nil, err
	}

	res, err := fitting.Fit(fitting.Model(model), series.Frequencies, series.Voltages, bounds, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fit %s: %w", series.Source, err)
	}

	return &models.FitResult{
		Topology:    c.Topology,
		Label:       c.Topology.Label(),
		Circuit:     c,
		Bounds:      bounds,
		Capacitance: res.Parameter,
		Variance:    res.Variance,
		StdErr:      res.StdErr(),
		ResidualSS:  res.ResidualSS,
		Iterations:  res.Iterations,
		Series:      *series,
	}, nil
}
