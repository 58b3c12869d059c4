// Package config - File configuration for the shelf audit service.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-shelf/inference/providers"
	"github.com/nvr-ai/go-shelf/models/postprocess"
)

// Config is the top-level configuration file.
type Config struct {
	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Model is the detection model.
	Model providers.Config `json:"model" yaml:"model"`

	// Classifier is an optional second model run over each detected box.
	Classifier *providers.Config `json:"classifier,omitempty" yaml:"classifier,omitempty"`

	// PostProcess controls decoding, filtering and suppression.
	PostProcess postprocess.Config `json:"postprocess" yaml:"postprocess"`

	// Server configures the HTTP transport.
	Server ServerConfig `json:"server" yaml:"server"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	// MaxUploadBytes caps the size of an uploaded frame.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// DefaultConfig returns a configuration with sensible defaults.
//
// Returns:
//   - Config: Defaults for every section. Classifier is unset.
//
// @example
// cfg := DefaultConfig()
// cfg.Model.ModelPath = "path/to/model.tflite"
func DefaultConfig() Config {
	return Config{
		LogLevel:    logrus.InfoLevel.String(),
		Model:       providers.DefaultConfig(),
		PostProcess: postprocess.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 16 << 20,
		},
	}
}

// Load reads a YAML file over DefaultConfig and validates the result.
//
// Unknown keys are rejected. An empty file yields the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to open config")
	}
	defer f.Close()

	return Parse(f)
}

// Parse is Load over a reader.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if err := c.Model.Validate(); err != nil {
		return errors.Wrap(err, "model")
	}
	if c.Classifier != nil {
		if err := c.Classifier.Validate(); err != nil {
			return errors.Wrap(err, "classifier")
		}
	}
	if err := c.PostProcess.Validate(); err != nil {
		return errors.Wrap(err, "postprocess")
	}
	if c.PostProcess.Layout != nil && c.PostProcess.Layout.Confidence.Len() < 1 {
		return errors.Wrap(postprocess.ErrInvalidLayout, "postprocess: confidence range is empty")
	}
	if c.Server.Addr == "" {
		return errors.New("server: addr is required")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("server: timeouts must not be negative")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server: max_upload_bytes must be positive")
	}
	return nil
}

// Logger builds a logrus logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
