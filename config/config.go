// Package config loads the scheduler's tunables from the environment,
// with defaults for everything. It generalizes a plain getEnv/getEnvInt-
// over-os.Getenv style config loader to the richer value set a
// visibility predicate and a tile loader need, layering spf13/viper's
// env binding on top so defaults, env vars, and (if ever added) a
// config file all resolve through one path instead of a bespoke helper
// per type.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"terrainsched/camera"
	"terrainsched/tileload"
)

// Config holds every tunable the scheduler and its CLI need.
type Config struct {
	Visibility VisibilityConfig
	TileLoad   TileLoadConfig
	Log        LogConfig
}

// VisibilityConfig mirrors camera.VisibilityConfig but in
// env-addressable form.
type VisibilityConfig struct {
	ScreenSpaceErrorThreshold float64
	MinTerrainHeight          float64
	MaxTerrainHeight          float64
	MaxZoom                   int
}

// ToCamera converts this into the camera package's config type.
func (v VisibilityConfig) ToCamera() camera.VisibilityConfig {
	return camera.VisibilityConfig{
		ScreenSpaceErrorThreshold: v.ScreenSpaceErrorThreshold,
		MinTerrainHeight:          v.MinTerrainHeight,
		MaxTerrainHeight:          v.MaxTerrainHeight,
		MaxZoom:                   uint8(v.MaxZoom),
	}
}

// TileLoadConfig describes where and how to fetch height/ortho tiles.
type TileLoadConfig struct {
	HeightBaseURL string
	OrthoBaseURL  string
	UrlPattern    string
	FileEnding    string
}

// Pattern resolves the configured UrlPattern string into a
// tileload.UrlPattern, or an error if it names none of the four known
// patterns.
func (t TileLoadConfig) Pattern() (tileload.UrlPattern, error) {
	switch t.UrlPattern {
	case "zxy":
		return tileload.ZXY, nil
	case "zyx":
		return tileload.ZYX, nil
	case "zxy_y_south":
		return tileload.ZXYYPointingSouth, nil
	case "zyx_y_south":
		return tileload.ZYXYPointingSouth, nil
	default:
		return 0, fmt.Errorf("config: unknown url pattern %q", t.UrlPattern)
	}
}

// LogConfig holds the log level read from TERRAINSCHED_LOG_LEVEL.
// cmd/terrainsched does not read it: its logger's level comes from the
// --log-level flag.
type LogConfig struct {
	Level string
}

// Load reads configuration from TERRAINSCHED_*-prefixed environment
// variables, falling back to the defaults set below.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TERRAINSCHED")
	v.AutomaticEnv()

	v.SetDefault("screen_space_error_threshold", 16.0)
	v.SetDefault("min_terrain_height", 0.0)
	v.SetDefault("max_terrain_height", 9000.0)
	v.SetDefault("max_zoom", 20)
	v.SetDefault("height_base_url", "https://alpinemaps.org/tiles/height")
	v.SetDefault("ortho_base_url", "https://alpinemaps.org/tiles/ortho")
	v.SetDefault("url_pattern", "zyx")
	v.SetDefault("file_ending", "png")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		Visibility: VisibilityConfig{
			ScreenSpaceErrorThreshold: v.GetFloat64("screen_space_error_threshold"),
			MinTerrainHeight:          v.GetFloat64("min_terrain_height"),
			MaxTerrainHeight:          v.GetFloat64("max_terrain_height"),
			MaxZoom:                   v.GetInt("max_zoom"),
		},
		TileLoad: TileLoadConfig{
			HeightBaseURL: v.GetString("height_base_url"),
			OrthoBaseURL:  v.GetString("ortho_base_url"),
			UrlPattern:    v.GetString("url_pattern"),
			FileEnding:    v.GetString("file_ending"),
		},
		Log: LogConfig{Level: v.GetString("log_level")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if c.Visibility.MaxZoom <= 0 {
		return fmt.Errorf("config: max_zoom must be positive, got %d", c.Visibility.MaxZoom)
	}
	if c.Visibility.MaxTerrainHeight < c.Visibility.MinTerrainHeight {
		return fmt.Errorf("config: max_terrain_height (%f) is below min_terrain_height (%f)",
			c.Visibility.MaxTerrainHeight, c.Visibility.MinTerrainHeight)
	}
	if c.Visibility.ScreenSpaceErrorThreshold <= 0 {
		return fmt.Errorf("config: screen_space_error_threshold must be positive, got %f", c.Visibility.ScreenSpaceErrorThreshold)
	}
	if _, err := c.TileLoad.Pattern(); err != nil {
		return err
	}
	return nil
}
