package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "STREETVIEWDL_"

// Config holds all configuration options for the Street View downloader
type Config struct {
	// Imagery service access
	Imagery ImageryConfig `yaml:"imagery" json:"imagery"`

	// Input extract and area of interest
	Extract ExtractConfig `yaml:"extract" json:"extract"`

	// Sample point generation
	Sampling SamplingConfig `yaml:"sampling" json:"sampling"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy shared by metadata and image requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Metadata lookup cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ImageryConfig holds Street View Static API configuration
type ImageryConfig struct {
	APIKey        string        `yaml:"api_key" json:"api_key"`
	SigningSecret string        `yaml:"signing_secret" json:"signing_secret"`
	Profile       string        `yaml:"profile" json:"profile"`
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	SearchRadius  float64       `yaml:"search_radius" json:"search_radius"`
	Source        string        `yaml:"source" json:"source"`
	ImageSize     string        `yaml:"image_size" json:"image_size"`
	FOV           int           `yaml:"fov" json:"fov"`
	Pitch         int           `yaml:"pitch" json:"pitch"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// ExtractConfig points at the road network extract and the clip boundary
type ExtractConfig struct {
	Path string `yaml:"path" json:"path"`
	AOI  string `yaml:"aoi" json:"aoi"`
	// BBox is "minLon,minLat,maxLon,maxLat", used when AOI is empty
	BBox string `yaml:"bbox" json:"bbox"`
}

// SamplingConfig holds sample point generation settings
type SamplingConfig struct {
	Spacing float64 `yaml:"spacing" json:"spacing"`
	// Mode is "fixed" (step exactly Spacing) or "even" (equal parts close to Spacing)
	Mode string `yaml:"mode" json:"mode"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Concurrency        int       `yaml:"concurrency" json:"concurrency"`
	ResolveConcurrency int       `yaml:"resolve_concurrency" json:"resolve_concurrency"`
	Headings           []float64 `yaml:"headings" json:"headings"`
	MetadataOnly       bool      `yaml:"metadata_only" json:"metadata_only"`
	OverwriteExisting  bool      `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds the retry and backoff policy
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
	Jitter         float64       `yaml:"jitter" json:"jitter"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	Directory  string `yaml:"directory" json:"directory"`
	MetadataDB string `yaml:"metadata_db" json:"metadata_db"`
	GeoJSON    string `yaml:"geojson" json:"geojson"`
}

// CacheConfig holds metadata lookup cache settings
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Path        string        `yaml:"path" json:"path"`
	ExpireAfter time.Duration `yaml:"expire_after" json:"expire_after"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Imagery: ImageryConfig{
			BaseURL:      "https://maps.googleapis.com",
			SearchRadius: 50,
			Source:       "outdoor",
			ImageSize:    "640x640",
			FOV:          90,
			Pitch:        0,
			Timeout:      30 * time.Second,
		},
		Sampling: SamplingConfig{
			Spacing: 20,
			Mode:    "fixed",
		},
		Download: DownloadConfig{
			Concurrency:        8,
			ResolveConcurrency: 16,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 6000,
			BurstSize:         50,
		},
		Retry: RetryConfig{
			MaxAttempts:    4,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
			Jitter:         0.1,
		},
		Output: OutputConfig{
			Directory:  "./streetview",
			MetadataDB: "metadata.sqlite",
		},
		Cache: CacheConfig{
			Enabled:     true,
			ExpireAfter: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "API_KEY"); v != "" {
		c.Imagery.APIKey = v
	}
	if v := os.Getenv(EnvPrefix + "SIGNING_SECRET"); v != "" {
		c.Imagery.SigningSecret = v
	}
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		c.Imagery.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "EXTRACT"); v != "" {
		c.Extract.Path = v
	}
	if v := os.Getenv(EnvPrefix + "AOI"); v != "" {
		c.Extract.AOI = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	var errs []error
	if v := os.Getenv(EnvPrefix + "SPACING"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSPACING: %w", EnvPrefix, err))
		} else {
			c.Sampling.Spacing = f
		}
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err))
		} else {
			c.Download.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_MINUTE: %w", EnvPrefix, err))
		} else {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv(EnvPrefix + "METADATA_ONLY"); v != "" {
		c.Download.MetadataOnly = strings.EqualFold(v, "true") || v == "1"
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"streetviewdl.yaml",
		".streetviewdl.yaml",
		".streetviewdl.yml",
		filepath.Join(home, ".config", "streetviewdl", "config.yaml"),
		filepath.Join(home, ".config", "streetviewdl", "config.yml"),
		filepath.Join(home, ".streetviewdl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// MaxImageSide is the largest image width or height the imagery service serves
const MaxImageSide = 640

// ParseImageSize splits a "WIDTHxHEIGHT" image size. Both sides must be in
// [1, MaxImageSide].
func ParseImageSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if ok {
		width, err = strconv.Atoi(w)
		if err == nil {
			height, err = strconv.Atoi(h)
		}
	}
	if !ok || err != nil {
		return 0, 0, fmt.Errorf("image size %q must look like 640x480", s)
	}
	if width < 1 || height < 1 || width > MaxImageSide || height > MaxImageSide {
		return 0, 0, fmt.Errorf("image size %q must be between 1x1 and %dx%d", s, MaxImageSide, MaxImageSide)
	}
	return width, height, nil
}

// Validate checks if the configuration is valid.
// Credentials are checked separately by ValidateCredentials since several
// commands (sample, clip) never talk to the imagery service.
func (c *Config) Validate() error {
	var errs []error

	if c.Imagery.BaseURL == "" {
		errs = append(errs, errors.New("imagery base URL is required"))
	}
	if c.Imagery.SearchRadius <= 0 {
		errs = append(errs, errors.New("search radius must be positive"))
	}
	if c.Imagery.Timeout <= 0 {
		errs = append(errs, errors.New("imagery timeout must be positive"))
	}
	if c.Imagery.FOV <= 0 || c.Imagery.FOV > 120 {
		errs = append(errs, errors.New("field of view must be in (0, 120]"))
	}
	if c.Imagery.Pitch < -90 || c.Imagery.Pitch > 90 {
		errs = append(errs, errors.New("pitch must be in [-90, 90]"))
	}
	if _, _, err := ParseImageSize(c.Imagery.ImageSize); err != nil {
		errs = append(errs, err)
	}

	if c.Sampling.Spacing <= 0 {
		errs = append(errs, errors.New("sample spacing must be positive"))
	}
	switch strings.ToLower(c.Sampling.Mode) {
	case "", "fixed", "even":
	default:
		errs = append(errs, fmt.Errorf("invalid sampling mode %q", c.Sampling.Mode))
	}

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("download concurrency must be positive"))
	}
	if c.Download.Concurrency > 64 {
		errs = append(errs, errors.New("download concurrency should not exceed 64"))
	}
	if c.Download.ResolveConcurrency <= 0 {
		errs = append(errs, errors.New("resolve concurrency must be positive"))
	}
	for _, h := range c.Download.Headings {
		if h < 0 || h >= 360 {
			errs = append(errs, fmt.Errorf("heading %v must be in [0, 360)", h))
		}
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("backoff jitter must be in [0, 1]"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks that the imagery service can be called
func (c *Config) ValidateCredentials() error {
	if c.Imagery.APIKey == "" || c.Imagery.APIKey == "YOUR_API_KEY" {
		return errors.New("Street View API key is required")
	}
	return nil
}

// MetadataDBPath returns the metadata database path, relative paths
// resolved against the output directory
func (c *Config) MetadataDBPath() string {
	if c.Output.MetadataDB == "" || filepath.IsAbs(c.Output.MetadataDB) {
		return c.Output.MetadataDB
	}
	return filepath.Join(c.Output.Directory, c.Output.MetadataDB)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map override the loaded values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["extract"].(string); ok && v != "" {
		c.Extract.Path = v
	}
	if v, ok := flags["aoi"].(string); ok && v != "" {
		c.Extract.AOI = v
	}
	if v, ok := flags["bbox"].(string); ok && v != "" {
		c.Extract.BBox = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["geojson"].(string); ok && v != "" {
		c.Output.GeoJSON = v
	}
	if v, ok := flags["spacing"].(float64); ok && v > 0 {
		c.Sampling.Spacing = v
	}
	if v, ok := flags["sampling-mode"].(string); ok && v != "" {
		c.Sampling.Mode = v
	}
	if v, ok := flags["search-radius"].(float64); ok && v > 0 {
		c.Imagery.SearchRadius = v
	}
	if v, ok := flags["headings"].([]float64); ok && len(v) > 0 {
		c.Download.Headings = v
	}
	if v, ok := flags["metadata-only"].(bool); ok {
		c.Download.MetadataOnly = v
	}
	if v, ok := flags["overwrite"].(bool); ok {
		c.Download.OverwriteExisting = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Download.Concurrency = v
	}
	if v, ok := flags["resolve-concurrency"].(int); ok && v > 0 {
		c.Download.ResolveConcurrency = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["initial-backoff"].(time.Duration); ok && v > 0 {
		c.Retry.InitialBackoff = v
	}
	if v, ok := flags["no-cache"].(bool); ok && v {
		c.Cache.Enabled = false
	}
	if v, ok := flags["profile"].(string); ok && v != "" {
		c.Imagery.Profile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".streetviewdl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
