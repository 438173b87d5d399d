package internal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/kinovod/kino/internal/api"
	"github.com/kinovod/kino/internal/database"
	"github.com/kinovod/kino/internal/ffmpeg"
	"github.com/kinovod/kino/internal/pipeline"
	"github.com/mitchellh/go-homedir"
)

// KinoConfig is the struct used to contain the various user config
// supplied by file, or manually inside the code.
type KinoConfig struct {
	MediaDirPath  string                  `yaml:"media_dir" env:"MEDIA_DIR"`
	EncodeTimeout time.Duration           `yaml:"encode_timeout" env:"ENCODE_TIMEOUT" env-default:"2h"`
	Pipeline      pipeline.Config         `yaml:"pipeline"`
	Ffmpeg        ffmpeg.Config           `yaml:"ffmpeg"`
	Database      database.DatabaseConfig `yaml:"database" env-required:"true"`
	RestConfig    api.RestConfig          `yaml:"api"`
}

// LoadFromFile loads a YAML configuration file in to a KinoConfig,
// applying environment variable overrides on top.
func (config *KinoConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	return nil
}

// LoadFromEnv populates the config purely from environment variables, for
// deployments which carry no config file.
func (config *KinoConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}

// getMediaDir returns the directory all media (originals, HLS trees and
// thumbnails) lives under. Defaults to a 'kino' directory in the user's
// home when not configured.
func (config *KinoConfig) getMediaDir() string {
	if config.MediaDirPath != "" {
		return config.MediaDirPath
	}

	dir, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir %s", err))
	}

	return filepath.Join(dir, "kino", "media")
}
