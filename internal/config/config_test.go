package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/capfit/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "RCdata.txt", cfg.DataFileFor(models.TopologyRC))
	assert.Equal(t, "CRdata.txt", cfg.DataFileFor(models.TopologyCR))
	assert.Equal(t, "RCRdata.txt", cfg.DataFileFor(models.TopologyRCR))
	assert.False(t, cfg.Data.StrictOrder)
	assert.Equal(t, "plots", cfg.Output.PlotDir)
	assert.Empty(t, cfg.Database.URL)

	assert.Equal(t, models.Circuit{Topology: models.TopologyRC, SourceVoltage: 3.535, Resistance: 1475}, cfg.CircuitFor(models.TopologyRC))
	assert.Equal(t, models.Circuit{Topology: models.TopologyCR, SourceVoltage: 3.543, Resistance: 1475}, cfg.CircuitFor(models.TopologyCR))
	assert.Equal(t, models.Circuit{Topology: models.TopologyRCR, SourceVoltage: 3.477, Resistance: 1475, Resistance2: 1197}, cfg.CircuitFor(models.TopologyRCR))

	assert.Equal(t, models.Bounds{Lower: 0, Upper: 1}, cfg.BoundsFor(models.TopologyRC))
	assert.Equal(t, models.Bounds{Lower: 0, Upper: 1}, cfg.BoundsFor(models.TopologyCR))
	assert.Equal(t, models.Bounds{Lower: 0, Upper: 1e-6}, cfg.BoundsFor(models.TopologyRCR))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/bench")
	t.Setenv("RESISTANCE", "1000")
	t.Setenv("RCR_CAP_UPPER", "2e-6")
	t.Setenv("STRICT_FREQUENCY_ORDER", "true")
	t.Setenv("REPORT_FILE", "out/report.xlsx")

	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/srv/bench", cfg.Data.Dir)
	assert.Equal(t, 1000.0, cfg.Circuits.Resistance)
	assert.Equal(t, 2e-6, cfg.BoundsFor(models.TopologyRCR).Upper)
	assert.True(t, cfg.Data.StrictOrder)
	assert.Equal(t, "out/report.xlsx", cfg.Output.ReportFile)
}

func TestLoadEmptyPlotDirDisablesPlots(t *testing.T) {
	t.Setenv("PLOT_DIR", "")

	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.Output.PlotDir)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "RC_DATA_FILE=rc_run2.txt\nPLOT_DIR=figures\nRC_SOURCE_VOLTAGE=3.6\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.bench"), []byte(content), 0644))
	t.Setenv("ENVIRONMENT", "bench")

	cfg, err := load(viper.New(), dir)
	require.NoError(t, err)

	assert.Equal(t, "bench", cfg.Env)
	assert.Equal(t, "rc_run2.txt", cfg.Data.RCFile)
	assert.Equal(t, "figures", cfg.Output.PlotDir)
	assert.Equal(t, 3.6, cfg.Circuits.RCSourceVoltage)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "negative resistance", env: map[string]string{"RESISTANCE": "-1"}, wantErr: "RESISTANCE must be positive"},
		{name: "zero voltage", env: map[string]string{"CR_SOURCE_VOLTAGE": "0"}, wantErr: "CR_SOURCE_VOLTAGE must be positive"},
		{name: "zero bound", env: map[string]string{"RC_CAP_UPPER": "0"}, wantErr: "RC_CAP_UPPER must be positive"},
		{name: "unknown report format", env: map[string]string{"REPORT_FILE": "report.pdf"}, wantErr: "unsupported format"},
		{name: "unknown database", env: map[string]string{"DATABASE_URL": "mysql://localhost/capfit"}, wantErr: "DATABASE_URL"},
		{name: "artifacts without bucket", env: map[string]string{"S3_ARTIFACT_PREFIX": "runs"}, wantErr: "S3_BUCKET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New(), t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
