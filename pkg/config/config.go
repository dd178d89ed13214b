package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
)

const (
	DefaultConfigFileName = "rowslice.json"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config not found")
)

type Config struct {
	Version int `json:"version"`

	// Table layout
	DataDir         string `json:"data_dir"`
	ColumnIndexSize int    `json:"column_index_size"` // Bytes of atoms per column index block
	Compression     string `json:"compression"`       // none, snappy or zstd
	ChunkLength     uint32 `json:"chunk_length"`      // Logical bytes per compressed chunk

	// Read path
	CursorBufferSize int `json:"cursor_buffer_size"`
	BlockBufferHint  int `json:"block_buffer_hint"` // Atoms buffered per block on reversed slices

	LogLevel string `json:"log_level"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		Version: CurrentConfigVersion,

		DataDir:         dataDir,
		ColumnIndexSize: 64 * 1024, // 64KB
		Compression:     stream.CodecNone.String(),
		ChunkLength:     stream.DefaultChunkLength,

		CursorBufferSize: stream.DefaultBufferSize,
		BlockBufferHint:  256,

		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory not specified", ErrInvalidConfig)
	}

	if c.ColumnIndexSize <= 0 {
		return fmt.Errorf("%w: column index size must be positive", ErrInvalidConfig)
	}

	if _, err := stream.ParseCodec(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.ChunkLength == 0 {
		return fmt.Errorf("%w: chunk length must be positive", ErrInvalidConfig)
	}

	if c.CursorBufferSize <= 0 {
		return fmt.Errorf("%w: cursor buffer size must be positive", ErrInvalidConfig)
	}

	if c.BlockBufferHint < 0 {
		return fmt.Errorf("%w: block buffer hint must not be negative", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Codec returns the configured compression codec
func (c *Config) Codec() stream.Codec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codec, err := stream.ParseCodec(c.Compression)
	if err != nil {
		return stream.CodecNone
	}
	return codec
}

// Level returns the configured log level
func (c *Config) Level() log.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// LoadConfig loads the configuration file from dir
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration file into dir
func (c *Config) Save(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFileName)
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// View calls fn with the configuration locked for reading
func (c *Config) View(fn func(*Config)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c)
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
