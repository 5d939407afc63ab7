package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/frame"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &CouplingConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	got := cfg.Coupling()
	want := coupling.DefaultConfig()
	if got.XRange != want.XRange || got.ZRange != want.ZRange {
		t.Errorf("ranges = %v %v, want %v %v", got.XRange, got.ZRange, want.XRange, want.ZRange)
	}
	if got.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("SerialPort = %q", got.SerialPort)
	}
	if got.Settle != 200*time.Millisecond {
		t.Errorf("Settle = %s, want 200ms", got.Settle)
	}
	if got.WarmupFrames != 20 {
		t.Errorf("WarmupFrames = %d, want 20", got.WarmupFrames)
	}
	if got.LaserIntensity != nil || got.Display {
		t.Errorf("unexpected laser/display: %+v", got)
	}
	if cfg.GetBaudRate() != 115200 || cfg.GetReadTimeout() != time.Second {
		t.Errorf("serial defaults = %d %s", cfg.GetBaudRate(), cfg.GetReadTimeout())
	}
	if cfg.GetFrameWidth() != 320 || cfg.GetFrameHeight() != 240 {
		t.Errorf("frame = %dx%d, want 320x240", cfg.GetFrameWidth(), cfg.GetFrameHeight())
	}
	if cfg.GetExposureTime() != 1 {
		t.Errorf("exposure = %d, want 1", cfg.GetExposureTime())
	}
	if p := cfg.CameraPipeline(); !strings.Contains(p, `exposuretimerange="100000 100000"`) ||
		!strings.Contains(p, "width=(int)320, height=(int)240") {
		t.Errorf("CameraPipeline() = %q", p)
	}
	if m := cfg.FocusMetric(); m.Sigma != 20 || m.Threshold != 0.5 || len(m.Drop) != 1 || m.Drop[0] != frame.Red {
		t.Errorf("FocusMetric() = %+v", m)
	}
}

func TestLoadCouplingConfig(t *testing.T) {
	path := writeConfig(t, "bench.json", `{
  "x_min": 100,
  "x_max": 600,
  "x_step": 25,
  "z_step": 50,
  "serial_port": "/dev/ttyACM1",
  "baud_rate": 57600,
  "read_timeout": "250ms",
  "laser_intensity": 700,
  "settle_time": "350ms",
  "warmup_frames": 5,
  "focus_sigma": 8,
  "exposure_time": 30,
  "frame_width": 640,
  "frame_height": 480,
  "display": true,
  "plot_dir": "plots",
  "db_path": "runs.db"
}`)

	cfg, err := LoadCouplingConfig(path)
	if err != nil {
		t.Fatalf("LoadCouplingConfig: %v", err)
	}

	c := cfg.Coupling()
	if c.XRange != (coupling.PositionRange{Min: 100, Max: 600, Step: 25}) {
		t.Errorf("XRange = %v", c.XRange)
	}
	if c.ZRange != (coupling.PositionRange{Min: 0, Max: 2000, Step: 50}) {
		t.Errorf("ZRange = %v", c.ZRange)
	}
	if c.SerialPort != "/dev/ttyACM1" || !c.Display || c.Settle != 350*time.Millisecond || c.WarmupFrames != 5 {
		t.Errorf("Coupling() = %+v", c)
	}
	if c.LaserIntensity == nil || *c.LaserIntensity != 700 {
		t.Errorf("LaserIntensity = %v", c.LaserIntensity)
	}
	opts := cfg.PortOptions()
	if opts.BaudRate != 57600 || opts.ReadTimeout != 250*time.Millisecond {
		t.Errorf("PortOptions() = %+v", opts)
	}
	if cfg.FocusMetric().Sigma != 8 || cfg.FocusMetric().Threshold != 0.5 {
		t.Errorf("FocusMetric() = %+v", cfg.FocusMetric())
	}
	if cfg.GetExposureTime() != 30 {
		t.Errorf("exposure = %d, want 30", cfg.GetExposureTime())
	}
	if p := cfg.CameraPipeline(); !strings.Contains(p, `exposuretimerange="3000000 3000000"`) ||
		!strings.Contains(p, "width=(int)640, height=(int)480") {
		t.Errorf("CameraPipeline() = %q", p)
	}
	if cfg.GetPlotDir() != "plots" || cfg.GetDBPath() != "runs.db" {
		t.Errorf("outputs = %q %q", cfg.GetPlotDir(), cfg.GetDBPath())
	}
}

func TestLoadCouplingConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "extension", file: "bench.yaml", body: `{}`, wantErr: ".json extension"},
		{name: "syntax", file: "bad.json", body: `{"x_min": }`, wantErr: "failed to parse"},
		{name: "empty_range", file: "r.json", body: `{"x_min": 500, "x_max": 500}`, wantErr: "x range"},
		{name: "zero_step", file: "s.json", body: `{"z_step": 0}`, wantErr: "z range"},
		{name: "duration", file: "d.json", body: `{"settle_time": "soon"}`, wantErr: "invalid settle_time"},
		{name: "negative_duration", file: "n.json", body: `{"read_timeout": "-1s"}`, wantErr: "read_timeout must be non-negative"},
		{name: "laser", file: "l.json", body: `{"laser_intensity": 2048}`, wantErr: "laser_intensity"},
		{name: "threshold", file: "t.json", body: `{"focus_threshold": 1.5}`, wantErr: "focus_threshold"},
		{name: "warmup", file: "w.json", body: `{"warmup_frames": -1}`, wantErr: "warmup_frames"},
		{name: "port", file: "p.json", body: `{"serial_port": ""}`, wantErr: "serial_port"},
		{name: "exposure", file: "e.json", body: `{"exposure_time": 0}`, wantErr: "exposure_time must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCouplingConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadCouplingConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCouplingConfigTooLarge(t *testing.T) {
	body := `{"serial_port": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadCouplingConfig(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want size error", err)
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	got := cfg.Coupling()
	want := (&CouplingConfig{}).Coupling()
	if got.XRange != want.XRange || got.ZRange != want.ZRange || got.SerialPort != want.SerialPort ||
		got.Settle != want.Settle || got.WarmupFrames != want.WarmupFrames || got.Display != want.Display {
		t.Errorf("defaults file %+v differs from built-in defaults %+v", got, want)
	}
	if cfg.PortOptions() != (&CouplingConfig{}).PortOptions() {
		t.Errorf("port options differ: %+v", cfg.PortOptions())
	}
	if cfg.GetExposureTime() != (&CouplingConfig{}).GetExposureTime() {
		t.Errorf("exposure = %d", cfg.GetExposureTime())
	}
	if cfg.GetFocusSigma() != 20 || cfg.GetFocusThreshold() != 0.5 {
		t.Errorf("focus = %g %g", cfg.GetFocusSigma(), cfg.GetFocusThreshold())
	}
}
