// Package config loads the coupling bench configuration from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/frame"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
	"github.com/banshee-data/autocouple/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/coupling.defaults.json"

// CouplingConfig is the on-disk configuration. Every field is optional;
// omitted fields fall back to the defaults returned by the Get* methods.
type CouplingConfig struct {
	// Sweep ranges, lens steps
	XMin  *int `json:"x_min,omitempty"`
	XMax  *int `json:"x_max,omitempty"`
	XStep *int `json:"x_step,omitempty"`
	ZMin  *int `json:"z_min,omitempty"`
	ZMax  *int `json:"z_max,omitempty"`
	ZStep *int `json:"z_step,omitempty"`

	// Serial link
	SerialPort     *string `json:"serial_port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty"`
	ReadTimeout    *string `json:"read_timeout,omitempty"` // duration string like "1s"
	LensID         *int    `json:"lens_id,omitempty"`
	LaserID        *int    `json:"laser_id,omitempty"`
	LaserIntensity *int    `json:"laser_intensity,omitempty"`

	// Acquisition
	SettleTime   *string `json:"settle_time,omitempty"` // duration string like "200ms"
	WarmupFrames *int    `json:"warmup_frames,omitempty"`
	FrameWidth   *int    `json:"frame_width,omitempty"`
	FrameHeight  *int    `json:"frame_height,omitempty"`
	ExposureTime *int    `json:"exposure_time,omitempty"` // units of 100µs

	// Focus metric
	FocusSigma     *float64 `json:"focus_sigma,omitempty"`
	FocusThreshold *float64 `json:"focus_threshold,omitempty"`

	// Output
	Display *bool   `json:"display,omitempty"`
	PlotDir *string `json:"plot_dir,omitempty"`
	DBPath  *string `json:"db_path,omitempty"`
}

// LoadCouplingConfig loads a CouplingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadCouplingConfig(path string) (*CouplingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CouplingConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *CouplingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCouplingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *CouplingConfig) Validate() error {
	if err := c.XRange().Validate(); err != nil {
		return fmt.Errorf("x range: %w", err)
	}
	if err := c.ZRange().Validate(); err != nil {
		return fmt.Errorf("z range: %w", err)
	}

	if c.SerialPort != nil && *c.SerialPort == "" {
		return fmt.Errorf("serial_port must not be empty")
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	for name, v := range map[string]*string{"read_timeout": c.ReadTimeout, "settle_time": c.SettleTime} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	for name, v := range map[string]*int{
		"lens_id":       c.LensID,
		"laser_id":      c.LaserID,
		"warmup_frames": c.WarmupFrames,
		"frame_width":   c.FrameWidth,
		"frame_height":  c.FrameHeight,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	if c.ExposureTime != nil && *c.ExposureTime < camera.DefaultExposure {
		return fmt.Errorf("exposure_time must be at least %d, got %d", camera.DefaultExposure, *c.ExposureTime)
	}
	if c.LaserIntensity != nil {
		if v := *c.LaserIntensity; v < hardware.MinLaserIntensity || v > hardware.MaxLaserIntensity {
			return fmt.Errorf("laser_intensity must be between %d and %d, got %d",
				hardware.MinLaserIntensity, hardware.MaxLaserIntensity, v)
		}
	}
	if c.FocusSigma != nil && *c.FocusSigma < 0 {
		return fmt.Errorf("focus_sigma must be non-negative, got %f", *c.FocusSigma)
	}
	if c.FocusThreshold != nil {
		if *c.FocusThreshold <= 0 || *c.FocusThreshold >= 1 {
			return fmt.Errorf("focus_threshold must be between 0 and 1, got %f", *c.FocusThreshold)
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p != nil && *p != "" {
		if d, err := time.ParseDuration(*p); err == nil {
			return d
		}
	}
	return def
}

// XRange returns the X sweep range.
func (c *CouplingConfig) XRange() coupling.PositionRange {
	def := coupling.DefaultConfig().XRange
	return coupling.PositionRange{Min: intOr(c.XMin, def.Min), Max: intOr(c.XMax, def.Max), Step: intOr(c.XStep, def.Step)}
}

// ZRange returns the Z sweep range.
func (c *CouplingConfig) ZRange() coupling.PositionRange {
	def := coupling.DefaultConfig().ZRange
	return coupling.PositionRange{Min: intOr(c.ZMin, def.Min), Max: intOr(c.ZMax, def.Max), Step: intOr(c.ZStep, def.Step)}
}

// GetSerialPort returns the serial device path.
func (c *CouplingConfig) GetSerialPort() string {
	if c.SerialPort != nil {
		return *c.SerialPort
	}
	return coupling.DefaultSerialPort
}

// GetBaudRate returns the serial baud rate.
func (c *CouplingConfig) GetBaudRate() int {
	return intOr(c.BaudRate, serialmux.DefaultBaudRate)
}

// GetReadTimeout returns the serial read timeout.
func (c *CouplingConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, serialmux.DefaultReadTimeout)
}

// GetLensID returns the lens endpoint address.
func (c *CouplingConfig) GetLensID() int {
	return intOr(c.LensID, hardware.DefaultLensID)
}

// GetLaserID returns the laser endpoint address.
func (c *CouplingConfig) GetLaserID() int {
	return intOr(c.LaserID, hardware.DefaultLaserID)
}

// GetSettleTime returns the post-move settle delay.
func (c *CouplingConfig) GetSettleTime() time.Duration {
	return durationOr(c.SettleTime, coupling.DefaultSettle)
}

// GetWarmupFrames returns the number of frames discarded after opening the camera.
func (c *CouplingConfig) GetWarmupFrames() int {
	return intOr(c.WarmupFrames, camera.DefaultWarmupFrames)
}

// GetFrameWidth returns the expected frame width in pixels.
func (c *CouplingConfig) GetFrameWidth() int {
	return intOr(c.FrameWidth, camera.DefaultFrameWidth)
}

// GetFrameHeight returns the expected frame height in pixels.
func (c *CouplingConfig) GetFrameHeight() int {
	return intOr(c.FrameHeight, camera.DefaultFrameHeight)
}

// GetExposureTime returns the sensor exposure in camera.ExposureUnit steps.
func (c *CouplingConfig) GetExposureTime() int {
	return intOr(c.ExposureTime, camera.DefaultExposure)
}

// CameraPipeline returns the capture pipeline for the configured geometry
// and exposure.
func (c *CouplingConfig) CameraPipeline() string {
	return camera.GStreamerPipeline(c.GetFrameWidth(), c.GetFrameHeight(), c.GetExposureTime())
}

// GetFocusSigma returns the focus metric blur sigma in pixels.
func (c *CouplingConfig) GetFocusSigma() float64 {
	if c.FocusSigma != nil {
		return *c.FocusSigma
	}
	return metric.DefaultFocusSigma
}

// GetFocusThreshold returns the spot threshold as a fraction of the peak.
func (c *CouplingConfig) GetFocusThreshold() float64 {
	if c.FocusThreshold != nil {
		return *c.FocusThreshold
	}
	return metric.DefaultFocusThreshold
}

// GetDisplay reports whether sweep samples are shown.
func (c *CouplingConfig) GetDisplay() bool {
	return c.Display != nil && *c.Display
}

// GetPlotDir returns the plot output directory, empty for none.
func (c *CouplingConfig) GetPlotDir() string {
	if c.PlotDir != nil {
		return *c.PlotDir
	}
	return ""
}

// GetDBPath returns the run history database path, empty for none.
func (c *CouplingConfig) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return ""
}

// Coupling returns the controller configuration.
func (c *CouplingConfig) Coupling() coupling.Config {
	cfg := coupling.Config{
		XRange:       c.XRange(),
		ZRange:       c.ZRange(),
		SerialPort:   c.GetSerialPort(),
		Display:      c.GetDisplay(),
		Settle:       c.GetSettleTime(),
		WarmupFrames: c.GetWarmupFrames(),
	}
	if c.LaserIntensity != nil {
		v := *c.LaserIntensity
		cfg.LaserIntensity = &v
	}
	return cfg
}

// PortOptions returns the serial port settings.
func (c *CouplingConfig) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate:    c.GetBaudRate(),
		ReadTimeout: c.GetReadTimeout(),
	}
}

// FocusMetric returns the configured focus metric, red channel dropped.
func (c *CouplingConfig) FocusMetric() metric.Focus {
	return metric.Focus{
		Sigma:     c.GetFocusSigma(),
		Threshold: c.GetFocusThreshold(),
		Drop:      []int{frame.Red},
	}
}
