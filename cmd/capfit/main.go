package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/capfit/internal/config"
	"github.com/RMahshie/capfit/internal/loader"
	"github.com/RMahshie/capfit/internal/processing"
	"github.com/RMahshie/capfit/internal/report"
	"github.com/RMahshie/capfit/internal/repository"
	"github.com/RMahshie/capfit/internal/repository/postgres"
	"github.com/RMahshie/capfit/internal/repository/sqlite"
	"github.com/RMahshie/capfit/internal/storage"
	"github.com/RMahshie/capfit/pkg/models"
)

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatal().Err(err).Msg("Capacitance fit failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var s3 storage.S3Service
	if cfg.AWS.S3Bucket != "" {
		svc, err := storage.NewS3Service(ctx, storage.S3Config{
			Bucket:    cfg.AWS.S3Bucket,
			Endpoint:  cfg.AWS.S3Endpoint,
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKeyID,
			SecretKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		s3 = svc
	}

	var src loader.Source = loader.NewDirSource(cfg.Data.Dir)
	if s3 != nil {
		src = storage.NewObjectSource(s3, cfg.AWS.DataPrefix)
		log.Info().Str("bucket", cfg.AWS.S3Bucket).Str("prefix", cfg.AWS.DataPrefix).Msg("Reading measurements from S3")
	} else {
		log.Info().Str("dir", cfg.Data.Dir).Msg("Reading measurements from disk")
	}

	repo, err := openRepository(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
	}

	svc := processing.NewAnalysisService(src, repo, processing.JobsFromConfig(cfg), processing.OptionsFromConfig(cfg))
	analysis, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.PrintSummary(os.Stdout, analysis); err != nil {
		return err
	}

	var artifacts []string
	if cfg.Output.PlotDir != "" {
		paths, err := report.WritePlots(cfg.Output.PlotDir, analysis)
		if err != nil {
			return err
		}
		log.Info().Strs("files", paths).Msg("Wrote plots")
		artifacts = append(artifacts, paths...)
	}

	if cfg.Output.ReportFile != "" {
		if err := report.WriteReport(cfg.Output.ReportFile, analysis); err != nil {
			return err
		}
		log.Info().Str("file", cfg.Output.ReportFile).Msg("Wrote report")
		artifacts = append(artifacts, cfg.Output.ReportFile)
	}

	if s3 != nil && cfg.AWS.ArtifactPrefix != "" {
		prefix := path.Join(cfg.AWS.ArtifactPrefix, analysis.ID)
		if err := publish(ctx, s3, prefix, artifacts); err != nil {
			return err
		}
	}

	if repo != nil {
		logDrift(ctx, repo, analysis)
	}
	return nil
}

// openRepository returns nil when url is empty
func openRepository(ctx context.Context, url string) (repository.AnalysisRepository, error) {
	var repo repository.AnalysisRepository
	switch {
	case url == "":
		return nil, nil
	case strings.HasPrefix(url, "sqlite://"):
		db, err := sqlite.Open(url)
		if err != nil {
			return nil, err
		}
		repo = sqlite.NewSQLiteAnalysisRepository(db)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo = postgres.NewPostgresAnalysisRepository(db)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme")
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// publish uploads local artifacts under prefix
func publish(ctx context.Context, s3 storage.S3Service, prefix string, files []string) error {
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}

		key := storage.ObjectKey(prefix, filepath.Base(file))
		if err := s3.UploadFile(ctx, key, storage.ContentType(file), data); err != nil {
			return err
		}

		url, err := s3.GenerateDownloadURL(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Uploaded artifact without download URL")
			continue
		}
		log.Info().Str("key", key).Str("url", url).Msg("Uploaded artifact")
	}
	return nil
}

// logDrift compares the new average with the previous stored run
func logDrift(ctx context.Context, repo repository.AnalysisRepository, current *models.Analysis) {
	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load previous analyses")
		return
	}
	for _, prev := range recent {
		if prev.ID == current.ID {
			continue
		}
		log.Info().
			Str("previous_id", prev.ID).
			Float64("previous_nf", prev.AverageNanofarads()).
			Float64("delta_nf", current.AverageNanofarads()-prev.AverageNanofarads()).
			Msg("Compared with previous run")
		return
	}
}
