// Package config provides configuration loading for the imaging viewer.
// Files are YAML or TOML chosen by extension; a missing file yields the defaults, and
// OXY_IMAGING_* environment variables override whatever the file set.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// ImagingEnabled turns every imaging component on; when false the viewer is inert.
	ImagingEnabled bool `yaml:"imaging_enabled" toml:"imaging_enabled"`
	// Theme is "light" or "dark".
	Theme string `yaml:"theme" toml:"theme"`

	Renderer RendererConfig `yaml:"renderer" toml:"renderer"`
	Volume   VolumeConfig   `yaml:"volume" toml:"volume"`
	Slice    SliceConfig    `yaml:"slice" toml:"slice"`
	Light    LightConfig    `yaml:"light" toml:"light"`
	Fetcher  FetcherConfig  `yaml:"fetcher" toml:"fetcher"`
	S3       S3Config       `yaml:"s3" toml:"s3"`
	Assets   AssetsConfig   `yaml:"assets" toml:"assets"`
	Catalog  CatalogConfig  `yaml:"catalog" toml:"catalog"`
	Workers  WorkersConfig  `yaml:"workers" toml:"workers"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// RendererConfig selects the render backend and the window size.
type RendererConfig struct {
	// Backend is "wgpu" or "headless".
	Backend string `yaml:"backend" toml:"backend"`
	Width   int    `yaml:"width" toml:"width"`
	Height  int    `yaml:"height" toml:"height"`
	// MSAA is the sample count of the WGPU backend, 1 or 4.
	MSAA    int  `yaml:"msaa" toml:"msaa"`
	VSync   bool `yaml:"vsync" toml:"vsync"`
	Profile bool `yaml:"profile" toml:"profile"`
}

// VolumeConfig tunes the volume ray-marcher.
type VolumeConfig struct {
	SampleDistance float32 `yaml:"sample_distance" toml:"sample_distance"`
	Shade          bool    `yaml:"shade" toml:"shade"`
}

// LightConfig describes the single light shading meshes and the shaded volume.
type LightConfig struct {
	// Type is "headlight" or "directional".
	Type      string     `yaml:"type" toml:"type"`
	Direction [3]float32 `yaml:"direction" toml:"direction"`
	Ambient   float32    `yaml:"ambient" toml:"ambient"`
	Diffuse   float32    `yaml:"diffuse" toml:"diffuse"`
	Specular  float32    `yaml:"specular" toml:"specular"`
	// SpecularPower is the Phong exponent.
	SpecularPower float32 `yaml:"specular_power" toml:"specular_power"`
}

// SliceConfig holds the 2D display window.
type SliceConfig struct {
	ColorWindow float32 `yaml:"color_window" toml:"color_window"`
	ColorLevel  float32 `yaml:"color_level" toml:"color_level"`
	// AutoWindowLevel derives window/level from the volume statistics instead of the fixed values.
	AutoWindowLevel bool `yaml:"auto_window_level" toml:"auto_window_level"`
}

// FetcherConfig configures the asset transport.
type FetcherConfig struct {
	// CacheSizeMB bounds the HTTP response cache; 0 disables it.
	CacheSizeMB int `yaml:"cache_size_mb" toml:"cache_size_mb"`
	// CacheTTLSeconds expires cached responses; 0 keeps them until evicted.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
	// Revalidate issues conditional requests for cached responses instead of serving them directly.
	Revalidate     bool   `yaml:"revalidate" toml:"revalidate"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent" toml:"user_agent"`
}

// S3Config configures the S3 client used for s3:// assets and case discovery.
type S3Config struct {
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	PathStyle bool   `yaml:"path_style" toml:"path_style"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
}

// AssetsConfig configures relative asset resolution.
type AssetsConfig struct {
	// BaseURL is joined with relative asset paths.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// CatalogConfig selects where cases come from.
type CatalogConfig struct {
	// Source is "static" or "s3".
	Source string `yaml:"source" toml:"source"`
	// Path is the static catalog file.
	Path string `yaml:"path" toml:"path"`
	// Concurrency bounds parallel case discovery requests.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
}

// WorkersConfig sizes the background worker pool.
type WorkersConfig struct {
	Count         int `yaml:"count" toml:"count"`
	QueueSize     int `yaml:"queue_size" toml:"queue_size"`
	IdleTimeoutMS int `yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
}

// LogConfig configures the structured logger and its optional rotating file.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_log_size"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_log_age"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables the endpoint.
	Addr string `yaml:"addr" toml:"addr"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		ImagingEnabled: true,
		Theme:          "light",
		Renderer: RendererConfig{
			Backend: "wgpu",
			Width:   1280,
			Height:  800,
			MSAA:    4,
			VSync:   true,
		},
		Volume: VolumeConfig{
			SampleDistance: 0.7,
			Shade:          true,
		},
		Slice: SliceConfig{
			ColorWindow: 1500,
			ColorLevel:  -500,
		},
		Light: LightConfig{
			Type:          "headlight",
			Direction:     [3]float32{0, 0, -1},
			Ambient:       0.3,
			Diffuse:       0.7,
			SpecularPower: 10,
		},
		Fetcher: FetcherConfig{
			CacheSizeMB:    256,
			TimeoutSeconds: 120,
			UserAgent:      "oxy-imaging",
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Catalog: CatalogConfig{
			Source:      "static",
			Path:        "cases.yaml",
			Concurrency: 4,
		},
		Workers: WorkersConfig{
			Count:         runtime.NumCPU(),
			QueueSize:     256,
			IdleTimeoutMS: 1000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 14,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from a YAML or TOML file and applies environment overrides.
// If the file doesn't exist, the defaults are used.
//
// Parameters:
//   - path: the config file path; blank means defaults plus environment
//
// Returns:
//   - *Config: the loaded configuration
//   - error: an error if the file cannot be read, parsed or validated
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path in the format implied by its extension.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = out
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Theme {
	case "light", "dark":
	default:
		return fmt.Errorf("invalid theme %q: expected light or dark", c.Theme)
	}
	switch c.Renderer.Backend {
	case "wgpu", "headless":
	default:
		return fmt.Errorf("invalid renderer backend %q: expected wgpu or headless", c.Renderer.Backend)
	}
	switch c.Catalog.Source {
	case "static", "s3":
	default:
		return fmt.Errorf("invalid catalog source %q: expected static or s3", c.Catalog.Source)
	}
	if c.Renderer.Width <= 0 || c.Renderer.Height <= 0 {
		return fmt.Errorf("invalid renderer size %dx%d", c.Renderer.Width, c.Renderer.Height)
	}
	if c.Workers.Count <= 0 || c.Workers.QueueSize <= 0 {
		return fmt.Errorf("invalid worker pool size %d/%d", c.Workers.Count, c.Workers.QueueSize)
	}
	if c.Volume.SampleDistance <= 0 {
		return fmt.Errorf("invalid volume sample distance %v", c.Volume.SampleDistance)
	}
	if c.Slice.ColorWindow <= 0 {
		return fmt.Errorf("invalid slice color window %v", c.Slice.ColorWindow)
	}
	switch c.Light.Type {
	case "headlight", "directional":
	default:
		return fmt.Errorf("invalid light type %q: expected headlight or directional", c.Light.Type)
	}
	if c.Light.Ambient < 0 || c.Light.Diffuse < 0 || c.Light.Specular < 0 {
		return fmt.Errorf("invalid light coefficients %v/%v/%v", c.Light.Ambient, c.Light.Diffuse, c.Light.Specular)
	}
	if c.Fetcher.CacheSizeMB < 0 {
		return fmt.Errorf("invalid fetch cache size %d", c.Fetcher.CacheSizeMB)
	}
	return nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
