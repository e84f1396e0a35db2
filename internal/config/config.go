package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/RMahshie/capfit/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	Env      string
	LogLevel string
	Data     DataConfig
	Circuits CircuitsConfig
	Output   OutputConfig
	Database DatabaseConfig
	AWS      AWSConfig
}

// DataConfig describes where the measurement tables live
type DataConfig struct {
	Dir         string
	RCFile      string
	CRFile      string
	RCRFile     string
	StrictOrder bool
}

// CircuitsConfig holds the known circuit constants and search bounds
type CircuitsConfig struct {
	RCSourceVoltage  float64
	CRSourceVoltage  float64
	RCRSourceVoltage float64
	Resistance       float64
	Resistance2      float64
	RCUpper          float64
	CRUpper          float64
	RCRUpper         float64
}

// OutputConfig holds report and plot destinations
type OutputConfig struct {
	PlotDir    string
	ReportFile string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AWSConfig holds AWS/S3 configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string
	DataPrefix      string
	ArtifactPrefix  string
}

var reportFormats = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
	".tsv":  true,
	".xlsx": true,
}

var keys = []string{
	"ENVIRONMENT",
	"LOG_LEVEL",
	"DATA_DIR",
	"RC_DATA_FILE",
	"CR_DATA_FILE",
	"RCR_DATA_FILE",
	"STRICT_FREQUENCY_ORDER",
	"RC_SOURCE_VOLTAGE",
	"CR_SOURCE_VOLTAGE",
	"RCR_SOURCE_VOLTAGE",
	"RESISTANCE",
	"RESISTANCE_2",
	"RC_CAP_UPPER",
	"CR_CAP_UPPER",
	"RCR_CAP_UPPER",
	"PLOT_DIR",
	"REPORT_FILE",
	"DATABASE_URL",
	"AWS_REGION",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"S3_BUCKET",
	"S3_ENDPOINT",
	"S3_DATA_PREFIX",
	"S3_ARTIFACT_PREFIX",
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	// Set defaults
	v.SetDefault("ENVIRONMENT", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_DIR", ".")
	v.SetDefault("RC_DATA_FILE", "RCdata.txt")
	v.SetDefault("CR_DATA_FILE", "CRdata.txt")
	v.SetDefault("RCR_DATA_FILE", "RCRdata.txt")
	v.SetDefault("STRICT_FREQUENCY_ORDER", false)
	v.SetDefault("RC_SOURCE_VOLTAGE", 3.535)
	v.SetDefault("CR_SOURCE_VOLTAGE", 3.543)
	v.SetDefault("RCR_SOURCE_VOLTAGE", 3.477)
	v.SetDefault("RESISTANCE", 1475.0)
	v.SetDefault("RESISTANCE_2", 1197.0)
	v.SetDefault("RC_CAP_UPPER", 1.0)
	v.SetDefault("CR_CAP_UPPER", 1.0)
	v.SetDefault("RCR_CAP_UPPER", 1e-6)
	v.SetDefault("PLOT_DIR", "plots")
	v.SetDefault("REPORT_FILE", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_DATA_PREFIX", "")
	v.SetDefault("S3_ARTIFACT_PREFIX", "")

	// Environment variables override .env file values
	v.AutomaticEnv()
	v.AllowEmptyEnv(true) // PLOT_DIR= disables plotting
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	env := v.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev" // Use "dev" to match .env.dev filename
	}

	// Read .env file for the current environment (ignore error if file doesn't exist)
	v.SetConfigName(".env." + env)
	v.SetConfigType("env")
	v.AddConfigPath(configPath)
	if err := v.ReadInConfig(); err == nil {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded environment file")
	}

	var cfg Config
	cfg.Env = env
	cfg.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Data.Dir = v.GetString("DATA_DIR")
	cfg.Data.RCFile = v.GetString("RC_DATA_FILE")
	cfg.Data.CRFile = v.GetString("CR_DATA_FILE")
	cfg.Data.RCRFile = v.GetString("RCR_DATA_FILE")
	cfg.Data.StrictOrder = v.GetBool("STRICT_FREQUENCY_ORDER")
	cfg.Circuits.RCSourceVoltage = v.GetFloat64("RC_SOURCE_VOLTAGE")
	cfg.Circuits.CRSourceVoltage = v.GetFloat64("CR_SOURCE_VOLTAGE")
	cfg.Circuits.RCRSourceVoltage = v.GetFloat64("RCR_SOURCE_VOLTAGE")
	cfg.Circuits.Resistance = v.GetFloat64("RESISTANCE")
	cfg.Circuits.Resistance2 = v.GetFloat64("RESISTANCE_2")
	cfg.Circuits.RCUpper = v.GetFloat64("RC_CAP_UPPER")
	cfg.Circuits.CRUpper = v.GetFloat64("CR_CAP_UPPER")
	cfg.Circuits.RCRUpper = v.GetFloat64("RCR_CAP_UPPER")
	cfg.Output.PlotDir = v.GetString("PLOT_DIR")
	cfg.Output.ReportFile = v.GetString("REPORT_FILE")
	cfg.Database.URL = v.GetString("DATABASE_URL")
	cfg.AWS.Region = v.GetString("AWS_REGION")
	cfg.AWS.AccessKeyID = v.GetString("AWS_ACCESS_KEY_ID")
	cfg.AWS.SecretAccessKey = v.GetString("AWS_SECRET_ACCESS_KEY")
	cfg.AWS.S3Bucket = v.GetString("S3_BUCKET")
	cfg.AWS.S3Endpoint = v.GetString("S3_ENDPOINT")
	cfg.AWS.DataPrefix = v.GetString("S3_DATA_PREFIX")
	cfg.AWS.ArtifactPrefix = v.GetString("S3_ARTIFACT_PREFIX")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	positive := map[string]float64{
		"RC_SOURCE_VOLTAGE":  c.Circuits.RCSourceVoltage,
		"CR_SOURCE_VOLTAGE":  c.Circuits.CRSourceVoltage,
		"RCR_SOURCE_VOLTAGE": c.Circuits.RCRSourceVoltage,
		"RESISTANCE":         c.Circuits.Resistance,
		"RESISTANCE_2":       c.Circuits.Resistance2,
		"RC_CAP_UPPER":       c.Circuits.RCUpper,
		"CR_CAP_UPPER":       c.Circuits.CRUpper,
		"RCR_CAP_UPPER":      c.Circuits.RCRUpper,
	}
	for _, key := range keys {
		if v, ok := positive[key]; ok && !(v > 0) {
			return fmt.Errorf("%s must be positive, got %g", key, v)
		}
	}

	if c.Data.RCFile == "" || c.Data.CRFile == "" || c.Data.RCRFile == "" {
		return fmt.Errorf("data file names must not be empty")
	}

	if c.Output.ReportFile != "" {
		ext := strings.ToLower(filepath.Ext(c.Output.ReportFile))
		if !reportFormats[ext] {
			return fmt.Errorf("REPORT_FILE %q: unsupported format %q", c.Output.ReportFile, ext)
		}
	}

	if c.Database.URL != "" && !strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") && !strings.HasPrefix(c.Database.URL, "sqlite://") {
		return fmt.Errorf("DATABASE_URL must use the postgres:// or sqlite:// scheme")
	}

	if c.AWS.ArtifactPrefix != "" && c.AWS.S3Bucket == "" {
		return fmt.Errorf("S3_ARTIFACT_PREFIX requires S3_BUCKET")
	}
	return nil
}

// CircuitFor returns the circuit constants for a topology
func (c *Config) CircuitFor(t models.Topology) models.Circuit {
	switch t {
	case models.TopologyRC:
		return models.Circuit{Topology: t, SourceVoltage: c.Circuits.RCSourceVoltage, Resistance: c.Circuits.Resistance}
	case models.TopologyCR:
		return models.Circuit{Topology: t, SourceVoltage: c.Circuits.CRSourceVoltage, Resistance: c.Circuits.Resistance}
	default:
		return models.Circuit{
			Topology:      t,
			SourceVoltage: c.Circuits.RCRSourceVoltage,
			Resistance:    c.Circuits.Resistance,
			Resistance2:   c.Circuits.Resistance2,
		}
	}
}

// BoundsFor returns the capacitance search interval for a topology
func (c *Config) BoundsFor(t models.Topology) models.Bounds {
	switch t {
	case models.TopologyRC:
		return models.Bounds{Lower: 0, Upper: c.Circuits.RCUpper}
	case models.TopologyCR:
		return models.Bounds{Lower: 0, Upper: c.Circuits.CRUpper}
	default:
		return models.Bounds{Lower: 0, Upper: c.Circuits.RCRUpper}
	}
}

// DataFileFor returns the table name for a topology
func (c *Config) DataFileFor(t models.Topology) string {
	switch t {
	case models.TopologyRC:
		return c.Data.RCFile
	case models.TopologyCR:
		return c.Data.CRFile
	default:
		return c.Data.RCRFile
	}
}
