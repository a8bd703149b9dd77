// Package config provides configuration loading and management for ctslicesto3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Loader parameters
	Loader struct {
		// Extension is the file extension of the slice files
		Extension string `yaml:"extension"`

		// Workers specifies how many slices are decoded concurrently
		Workers int `yaml:"workers"`
	} `yaml:"loader"`

	// Normalization parameters
	Normalize struct {
		// Sentinel is the stored value marking pixels outside the scan
		Sentinel int `yaml:"sentinel"`
	} `yaml:"normalize"`

	// Resampling parameters
	Resample struct {
		// Spacing is the target voxel spacing in mm, ordered z, y, x
		Spacing []float64 `yaml:"spacing"`

		// Method is the interpolation method, "cubic" or "linear"
		Method string `yaml:"method"`
	} `yaml:"resample"`

	// Mesh extraction parameters
	Mesh struct {
		// Threshold is the isosurface intensity in HU
		Threshold float64 `yaml:"threshold"`

		// StepSize is the voxel sampling step of the extractor
		StepSize int `yaml:"stepSize"`

		// AllowDegenerate keeps zero-area triangles
		AllowDegenerate bool `yaml:"allowDegenerate"`
	} `yaml:"mesh"`

	// Slice viewer parameters
	Viewer struct {
		// Colormap is one of "gray", "bone" or "hot"
		Colormap string `yaml:"colormap"`

		// PanelSize is the edge length in pixels of each rendered panel
		PanelSize int `yaml:"panelSize"`
	} `yaml:"viewer"`

	// Mesh rendering parameters
	Render struct {
		SurfaceColor string  `yaml:"surfaceColor"`
		FaceColor    string  `yaml:"faceColor"`
		Background   string  `yaml:"background"`
		Width        int     `yaml:"width"`
		Height       int     `yaml:"height"`
		Elevation    float64 `yaml:"elevation"`
		Azimuth      float64 `yaml:"azimuth"`
	} `yaml:"render"`

	// Report server parameters
	Report struct {
		// Addr is the listen address of the presentation server
		Addr string `yaml:"addr"`

		// Variant is the report shown at the root path
		Variant string `yaml:"variant"`
	} `yaml:"report"`

	// Output parameters
	Output struct {
		// Dir is the directory outputs are written to
		Dir string `yaml:"dir"`

		// Format of the mesh file, "stl" or "obj"
		Format string `yaml:"format"`

		// Compress gzips the mesh file
		Compress bool `yaml:"compress"`

		// SaveSlices writes slice sequences along every axis
		SaveSlices bool `yaml:"saveSlices"`

		// SaveRender writes a shaded PNG of the mesh
		SaveRender bool `yaml:"saveRender"`

		// SaveScene writes the offline interactive HTML scene
		SaveScene bool `yaml:"saveScene"`

		// Verbose prints the run summary after a command
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default loader parameters
	cfg.Loader.Extension = ".dcm"
	cfg.Loader.Workers = runtime.NumCPU() // Use all available cores by default

	// Outside-of-scan pixels are stored as -2000 by most scanners
	cfg.Normalize.Sentinel = -2000

	// Resample to isotropic 1mm voxels
	cfg.Resample.Spacing = []float64{1, 1, 1}
	cfg.Resample.Method = "cubic"

	// -300 HU lies on the boundary between air and soft tissue
	cfg.Mesh.Threshold = -300
	cfg.Mesh.StepSize = 1
	cfg.Mesh.AllowDegenerate = true

	// Set default viewer parameters
	cfg.Viewer.Colormap = "gray"
	cfg.Viewer.PanelSize = 256

	// Set default render parameters
	cfg.Render.SurfaceColor = "#ececd4"
	cfg.Render.FaceColor = "#ffffe6"
	cfg.Render.Background = "#b3b3b3"
	cfg.Render.Width = 800
	cfg.Render.Height = 800
	cfg.Render.Elevation = 30
	cfg.Render.Azimuth = -60

	// Set default report parameters
	cfg.Report.Addr = "localhost:8501"
	cfg.Report.Variant = "final"

	// Set default output parameters
	cfg.Output.Dir = "output"
	cfg.Output.Format = "stl"
	cfg.Output.SaveSlices = false
	cfg.Output.SaveRender = true
	cfg.Output.SaveScene = true
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if len(c.Loader.Extension) < 2 || !strings.HasPrefix(c.Loader.Extension, ".") {
		return fmt.Errorf("loader.extension must look like .dcm, got %q", c.Loader.Extension)
	}
	if c.Loader.Workers < 1 {
		return fmt.Errorf("loader.workers must be at least 1, got %d", c.Loader.Workers)
	}
	if len(c.Resample.Spacing) != 3 {
		return fmt.Errorf("resample.spacing must have 3 values, got %d", len(c.Resample.Spacing))
	}
	for i, s := range c.Resample.Spacing {
		if s <= 0 {
			return fmt.Errorf("resample.spacing[%d] must be positive, got %g", i, s)
		}
	}
	switch c.Resample.Method {
	case "cubic", "linear":
	default:
		return fmt.Errorf("unknown resample.method %q", c.Resample.Method)
	}
	if c.Mesh.StepSize < 1 {
		return fmt.Errorf("mesh.stepSize must be at least 1, got %d", c.Mesh.StepSize)
	}
	switch c.Viewer.Colormap {
	case "gray", "bone", "hot":
	default:
		return fmt.Errorf("unknown viewer.colormap %q", c.Viewer.Colormap)
	}
	switch c.Output.Format {
	case "stl", "obj":
	default:
		return fmt.Errorf("unknown output.format %q", c.Output.Format)
	}
	if c.Render.Width < 1 || c.Render.Height < 1 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	for name, hex := range map[string]string{
		"render.surfaceColor": c.Render.SurfaceColor,
		"render.faceColor":    c.Render.FaceColor,
		"render.background":   c.Render.Background,
	} {
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("%s %q is not a hex colour", name, hex)
		}
	}
	if _, _, err := net.SplitHostPort(c.Report.Addr); err != nil {
		return fmt.Errorf("report.addr %q: %w", c.Report.Addr, err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
