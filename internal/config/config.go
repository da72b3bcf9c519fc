// Package config resolves the tidepods runtime configuration from the
// environment, once, at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every configuration variable.
const Prefix = "TIDEPODS"

// Config holds the tidepods configuration. Command line flags override the
// values read from the environment.
type Config struct {
	// EngineHome is the tide predictor installation root. Executable and
	// reference data are discovered below it unless set explicitly.
	EngineHome string `envconfig:"ENGINE_HOME"`
	// EngineCommand is prepended to the engine invocation, e.g. "wine".
	EngineCommand    string        `envconfig:"ENGINE_COMMAND"`
	EngineExecutable string        `envconfig:"ENGINE_EXECUTABLE"`
	ConstituentsFile string        `envconfig:"CONSTITUENTS_FILE"`
	PrepackFile      string        `envconfig:"PREPACK_FILE"`
	EngineTimeout    time.Duration `envconfig:"ENGINE_TIMEOUT"`

	WorkDir string `envconfig:"WORK_DIR"`
	Workers int    `envconfig:"WORKERS" default:"4"`

	GCSBlockSize string `envconfig:"GCS_BLOCK_SIZE" default:"512k"`
	GCSNumBlocks int    `envconfig:"GCS_NUM_BLOCKS" default:"1000"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"true"`
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

func envName(field string) string {
	return Prefix + "_" + field
}

// Load reads dotenv files, then the environment. Without arguments a missing
// ./.env file is ignored; explicitly named files must exist.
func Load(dotenv ...string) (*Config, error) {
	if len(dotenv) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(dotenv...); err != nil {
		return nil, fmt.Errorf("load %v: %w", dotenv, err)
	}
	cfg := Config{}
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	if c.EngineHome == "" && (c.EngineExecutable == "" || c.ConstituentsFile == "" || c.PrepackFile == "") {
		return &ErrMissingRequiredEnvVar{Name: envName("ENGINE_HOME")}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid %s %d, must be > 0", envName("WORKERS"), c.Workers)
	}
	if c.EngineTimeout < 0 {
		return fmt.Errorf("invalid %s %s", envName("ENGINE_TIMEOUT"), c.EngineTimeout)
	}
	return nil
}

// ValidateS3 checks the settings needed to publish to s3:// locations.
func (c *Config) ValidateS3() error {
	for _, kv := range [][2]string{
		{"S3_ENDPOINT", c.S3Endpoint},
		{"S3_ACCESS_KEY", c.S3AccessKey},
		{"S3_SECRET_KEY", c.S3SecretKey},
	} {
		if kv[1] == "" {
			return &ErrMissingRequiredEnvVar{Name: envName(kv[0])}
		}
	}
	return nil
}
