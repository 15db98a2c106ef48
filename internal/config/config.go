// Package config loads and validates docsmcp's persisted configuration
// document (config.toml), per the specification's external interface §6.1.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Ollama holds the embedding-service connection settings.
type Ollama struct {
	Protocol           string `mapstructure:"protocol"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Model              string `mapstructure:"model"`
	BatchSize          int    `mapstructure:"batch_size"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
}

// BaseURL renders the configured scheme/host/port as a base URL.
func (o Ollama) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", o.Protocol, o.Host, o.Port)
}

// Chunking holds the chunker's size/overlap bounds.
type Chunking struct {
	TargetChunkSize int `mapstructure:"target_chunk_size"`
	MaxChunkSize    int `mapstructure:"max_chunk_size"`
	MinChunkSize    int `mapstructure:"min_chunk_size"`
	OverlapSize     int `mapstructure:"overlap_size"`
}

// Config is the root of the persisted configuration document.
type Config struct {
	DataDir  string   `mapstructure:"-"`
	Ollama   Ollama   `mapstructure:"ollama"`
	Chunking Chunking `mapstructure:"chunking"`
}

// recognizedKeys enumerates every key config.toml may carry. Unknown keys
// are rejected per §6.1.
var recognizedKeys = map[string]bool{
	"ollama.protocol": true, "ollama.host": true, "ollama.port": true,
	"ollama.model": true, "ollama.batch_size": true, "ollama.embedding_dimension": true,
	"chunking.target_chunk_size": true, "chunking.max_chunk_size": true,
	"chunking.min_chunk_size": true, "chunking.overlap_size": true,
}

// Defaults returns a Config populated with the documented defaults.
func Defaults(dataDir string) Config {
	return Config{
		DataDir: dataDir,
		Ollama: Ollama{
			Protocol:           "http",
			Host:               "localhost",
			Port:               11434,
			Model:              "nomic-embed-text",
			BatchSize:          32,
			EmbeddingDimension: 768,
		},
		Chunking: Chunking{
			TargetChunkSize: 512,
			MaxChunkSize:    1024,
			MinChunkSize:    128,
			OverlapSize:     64,
		},
	}
}

// Load reads <dataDir>/config.toml, overlaying it on the defaults, and
// validates the result. A missing file is not an error — defaults apply.
func Load(dataDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(dataDir, "config.toml"))
	v.SetConfigType("toml")

	defaults := Defaults(dataDir)
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config.toml: %w", err)
		}
	} else {
		if err := rejectUnknownKeys(v); err != nil {
			return nil, err
		}
	}

	cfg := defaults
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config.toml: %w", err)
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("ollama.protocol", d.Ollama.Protocol)
	v.SetDefault("ollama.host", d.Ollama.Host)
	v.SetDefault("ollama.port", d.Ollama.Port)
	v.SetDefault("ollama.model", d.Ollama.Model)
	v.SetDefault("ollama.batch_size", d.Ollama.BatchSize)
	v.SetDefault("ollama.embedding_dimension", d.Ollama.EmbeddingDimension)
	v.SetDefault("chunking.target_chunk_size", d.Chunking.TargetChunkSize)
	v.SetDefault("chunking.max_chunk_size", d.Chunking.MaxChunkSize)
	v.SetDefault("chunking.min_chunk_size", d.Chunking.MinChunkSize)
	v.SetDefault("chunking.overlap_size", d.Chunking.OverlapSize)
}

func rejectUnknownKeys(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if !recognizedKeys[key] {
			return fmt.Errorf("config.toml: unrecognized key %q", key)
		}
	}
	return nil
}

// Validate enforces §6.1's bounds and cross-field constraints.
func (c Config) Validate() error {
	switch strings.ToLower(c.Ollama.Protocol) {
	case "http", "https":
	default:
		return fmt.Errorf("ollama.protocol must be http or https, got %q", c.Ollama.Protocol)
	}
	if c.Ollama.Port < 1 || c.Ollama.Port > 65535 {
		return fmt.Errorf("ollama.port must be in 1..65535, got %d", c.Ollama.Port)
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama.model must not be empty")
	}
	if c.Ollama.BatchSize < 1 || c.Ollama.BatchSize > 1000 {
		return fmt.Errorf("ollama.batch_size must be in 1..1000, got %d", c.Ollama.BatchSize)
	}
	if c.Ollama.EmbeddingDimension < 64 || c.Ollama.EmbeddingDimension > 4096 {
		return fmt.Errorf("ollama.embedding_dimension must be in 64..4096, got %d", c.Ollama.EmbeddingDimension)
	}

	ch := c.Chunking
	if ch.TargetChunkSize < 100 || ch.TargetChunkSize > 2048 {
		return fmt.Errorf("chunking.target_chunk_size must be in 100..2048, got %d", ch.TargetChunkSize)
	}
	if ch.MaxChunkSize < 200 || ch.MaxChunkSize > 4096 {
		return fmt.Errorf("chunking.max_chunk_size must be in 200..4096, got %d", ch.MaxChunkSize)
	}
	if ch.MinChunkSize < 50 || ch.MinChunkSize > 1024 {
		return fmt.Errorf("chunking.min_chunk_size must be in 50..1024, got %d", ch.MinChunkSize)
	}
	if ch.OverlapSize < 0 || ch.OverlapSize > 512 {
		return fmt.Errorf("chunking.overlap_size must be in 0..512, got %d", ch.OverlapSize)
	}
	if !(ch.MinChunkSize < ch.TargetChunkSize && ch.TargetChunkSize < ch.MaxChunkSize) {
		return fmt.Errorf("chunking sizes must satisfy min < target < max, got min=%d target=%d max=%d",
			ch.MinChunkSize, ch.TargetChunkSize, ch.MaxChunkSize)
	}
	return nil
}

// MetadataDBPath returns the metadata store's path under DataDir.
func (c Config) MetadataDBPath() string { return filepath.Join(c.DataDir, "metadata.db") }

// VectorsDir returns the vector store's directory under DataDir.
func (c Config) VectorsDir() string { return filepath.Join(c.DataDir, "vectors") }

// CacheDir returns the reserved cache directory under DataDir.
func (c Config) CacheDir() string { return filepath.Join(c.DataDir, "cache") }

// LockPath returns the indexer's single-writer lock file path.
func (c Config) LockPath() string { return filepath.Join(c.DataDir, ".indexer.lock") }
