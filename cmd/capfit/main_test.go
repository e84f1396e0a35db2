package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/capfit/internal/circuit"
	"github.com/RMahshie/capfit/internal/config"
	"github.com/RMahshie/capfit/internal/repository/repotest"
	"github.com/RMahshie/capfit/pkg/models"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockS3) UploadFile(ctx context.Context, key string, contentType string, data []byte) error {
	return m.Called(ctx, key, contentType, data).Error(0)
}

func (m *mockS3) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func TestOpenRepositoryDisabled(t *testing.T) {
	repo, err := openRepository(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestOpenRepositorySQLite(t *testing.T) {
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "history.db")

	repo, err := openRepository(ctx, url)
	require.NoError(t, err)
	defer repo.Close()

	first := repotest.SampleAnalysis(time.Now().Add(-time.Hour))
	second := repotest.SampleAnalysis(time.Now())
	require.NoError(t, repo.StoreAnalysis(ctx, first))
	require.NoError(t, repo.StoreAnalysis(ctx, second))

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	logDrift(ctx, repo, second)
}

func TestOpenRepositoryUnsupportedScheme(t *testing.T) {
	_, err := openRepository(context.Background(), "mysql://localhost/capfit")
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	plot := filepath.Join(dir, "rc_fit.png")
	rep := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(plot, []byte("png"), 0644))
	require.NoError(t, os.WriteFile(rep, []byte("{}"), 0644))

	s3 := new(mockS3)
	s3.On("UploadFile", ctx, "runs/42/rc_fit.png", "image/png", []byte("png")).Return(nil)
	s3.On("UploadFile", ctx, "runs/42/report.json", "application/json", []byte("{}")).Return(nil)
	s3.On("GenerateDownloadURL", ctx, "runs/42/rc_fit.png").Return("https://example/rc_fit.png", nil)
	s3.On("GenerateDownloadURL", ctx, "runs/42/report.json").Return("", errors.New("presign failed"))

	require.NoError(t, publish(ctx, s3, "runs/42", []string{plot, rep}))
	s3.AssertExpectations(t)
}

func TestPublishUploadFailure(t *testing.T) {
	ctx := context.Background()
	plot := filepath.Join(t.TempDir(), "cr_fit.png")
	require.NoError(t, os.WriteFile(plot, []byte("png"), 0644))

	s3 := new(mockS3)
	s3.On("UploadFile", ctx, "cr_fit.png", "image/png", []byte("png")).Return(errors.New("access denied"))

	assert.EqualError(t, publish(ctx, s3, "", []string{plot}), "access denied")
}

func TestPublishMissingFile(t *testing.T) {
	err := publish(context.Background(), new(mockS3), "runs", []string{filepath.Join(t.TempDir(), "missing.png")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENVIRONMENT", "e2e")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("PLOT_DIR", filepath.Join(dir, "plots"))
	t.Setenv("REPORT_FILE", filepath.Join(dir, "report.xlsx"))
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(dir, "history.db"))

	cfg, err := config.Load()
	require.NoError(t, err)

	freqs := []float64{100, 300, 1000, 3000, 10000, 30000, 100000, 1000000}
	for _, topo := range models.Topologies {
		volts, err := circuit.Response(cfg.CircuitFor(topo), freqs, 100e-9)
		require.NoError(t, err)

		f, err := os.Create(filepath.Join(dir, cfg.DataFileFor(topo)))
		require.NoError(t, err)
		for i := range freqs {
			fmt.Fprintf(f, "%g %.17g\n", freqs[i], volts[i])
		}
		require.NoError(t, f.Close())
	}

	require.NoError(t, run(context.Background(), cfg))

	for _, name := range []string{"plots/rc_fit.png", "plots/cr_fit.png", "plots/rcr_fit.png", "report.xlsx", "history.db"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	repo, err := openRepository(context.Background(), cfg.Database.URL)
	require.NoError(t, err)
	defer repo.Close()

	recent, err := repo.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.InEpsilon(t, 100e-9, recent[0].AverageCapacitance, 1e-6)
	assert.Equal(t, "e2e", recent[0].Environment)
}

func TestRunMissingData(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	err = run(context.Background(), cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
