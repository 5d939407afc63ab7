package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/db"
	"github.com/banshee-data/autocouple/internal/frame"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
	"github.com/banshee-data/autocouple/internal/monitoring"
	"github.com/banshee-data/autocouple/internal/report"
	"github.com/banshee-data/autocouple/internal/serialmux"
	"github.com/banshee-data/autocouple/internal/sim"
	"github.com/banshee-data/autocouple/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// setFlag sets a command-line flag for the duration of the test.
func setFlag(t *testing.T, name, value string) {
	t.Helper()
	f := flag.Lookup(name)
	if f == nil {
		t.Fatalf("flag -%s not defined", name)
	}
	old := f.Value.String()
	if err := flag.Set(name, value); err != nil {
		t.Fatalf("set -%s: %v", name, err)
	}
	t.Cleanup(func() { flag.Set(name, old) })
}

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"config", ""},
		{"port", ""},
		{"dev", "false"},
		{"sim-focus-z", "1000"},
		{"sim-edge-x", "1500"},
		{"laser", "-1"},
		{"timeout", "0s"},
		{"display", "false"},
	}
	for _, tt := range tests {
		f := flag.Lookup(tt.name)
		if f == nil {
			t.Errorf("flag -%s not defined", tt.name)
			continue
		}
		if f.DefValue != tt.want {
			t.Errorf("-%s default = %q, want %q", tt.name, f.DefValue, tt.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	fc, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg := fc.Coupling()
	if cfg.XRange != coupling.DefaultConfig().XRange || cfg.SerialPort != coupling.DefaultSerialPort {
		t.Errorf("Coupling() = %+v", cfg)
	}
	if cfg.Display || cfg.LaserIntensity != nil {
		t.Errorf("unexpected display/laser: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.json")
	if err := os.WriteFile(path, []byte(`{"serial_port": "/dev/ttyS9", "z_step": 50, "settle_time": "10ms"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	setFlag(t, "config", path)
	setFlag(t, "port", "/dev/ttyUSB3")
	setFlag(t, "x", "100:400:20")
	setFlag(t, "laser", "300")
	setFlag(t, "plot-dir", "out")

	fc, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg := fc.Coupling()
	if cfg.SerialPort != "/dev/ttyUSB3" {
		t.Errorf("SerialPort = %q, want flag value", cfg.SerialPort)
	}
	if cfg.XRange != (coupling.PositionRange{Min: 100, Max: 400, Step: 20}) {
		t.Errorf("XRange = %v", cfg.XRange)
	}
	if cfg.ZRange != (coupling.PositionRange{Min: 0, Max: 2000, Step: 50}) {
		t.Errorf("ZRange = %v, want file step", cfg.ZRange)
	}
	if cfg.Settle != 10*time.Millisecond {
		t.Errorf("Settle = %s", cfg.Settle)
	}
	if cfg.LaserIntensity == nil || *cfg.LaserIntensity != 300 {
		t.Errorf("LaserIntensity = %v", cfg.LaserIntensity)
	}
	if !cfg.Display || fc.GetPlotDir() != "out" {
		t.Errorf("plot-dir should enable display: %v %q", cfg.Display, fc.GetPlotDir())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("bad_range", func(t *testing.T) {
		setFlag(t, "z", "0:100")
		if _, err := loadConfig(); err == nil {
			t.Error("expected range error")
		}
	})
	t.Run("bad_laser", func(t *testing.T) {
		setFlag(t, "laser", "5000")
		if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "laser_intensity") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("missing_file", func(t *testing.T) {
		setFlag(t, "config", filepath.Join(t.TempDir(), "nope.json"))
		if _, err := loadConfig(); err == nil {
			t.Error("expected load error")
		}
	})
}

func TestNewOpenerSelectsCamera(t *testing.T) {
	fc, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}

	o, ok := newOpener(fc).(*hardware.SerialOpener)
	if !ok {
		t.Fatalf("opener = %T, want *hardware.SerialOpener", newOpener(fc))
	}
	if o.OpenCamera == nil {
		t.Fatal("no camera opener for the CSI camera")
	}
	if _, ok := o.Factory.(*serialmux.RealSerialPortFactory); !ok {
		t.Errorf("factory = %T, want real serial ports", o.Factory)
	}

	dir := t.TempDir()
	setFlag(t, "frames-dir", dir)
	o = newOpener(fc).(*hardware.SerialOpener)
	// An empty directory proves the playback camera was chosen: the CSI
	// pipeline would fail with a capture error instead.
	if _, err := o.OpenCamera(); err == nil || !strings.Contains(err.Error(), "no image files") {
		t.Errorf("OpenCamera() error = %v, want playback error", err)
	}
}

func TestDevModeAppliesExposure(t *testing.T) {
	setFlag(t, "dev", "true")
	fc, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	exposure := 3
	fc.ExposureTime = &exposure

	o := newOpener(fc).(*hardware.SerialOpener)
	cam, err := o.OpenCamera()
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	if sc, ok := cam.(*sim.Camera); !ok {
		t.Errorf("camera = %T, want *sim.Camera", cam)
	} else if f, err := sc.Read(); err != nil || f.At(0, 0, frame.Red) != 255 {
		t.Errorf("glare at exposure 3 = %v (err %v), want saturated", f, err)
	}
}

func TestDevRunRecordsAndPlots(t *testing.T) {
	setFlag(t, "dev", "true")
	setFlag(t, "sim-focus-z", "600")
	setFlag(t, "sim-edge-x", "200")
	setFlag(t, "x", "0:400:50")
	setFlag(t, "z", "0:1000:100")

	fc, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	w, h := 48, 36
	fc.FrameWidth, fc.FrameHeight = &w, &h
	warm := 1
	fc.WarmupFrames = &warm
	on := true
	fc.Display = &on

	opener := newOpener(fc)
	rec := report.NewRecorder()
	ctl := coupling.NewController(opener,
		coupling.WithClock(timeutil.NewMockClock(time.Unix(0, 0))),
		coupling.WithObserver(rec),
		coupling.WithFocusMetric(metric.Focus{Sigma: 3, Threshold: 0.5, Drop: []int{frame.Red}}),
	)

	cfg := fc.Coupling()
	res, err := ctl.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ZFocus != 600 || res.XEdge != 150 {
		t.Errorf("result Z=%d X=%d, want Z=600 X=150", res.ZFocus, res.XEdge)
	}

	dir := t.TempDir()
	dbFile := filepath.Join(dir, "runs.db")
	if err := saveRun(context.Background(), dbFile, cfg, res, nil); err != nil {
		t.Fatalf("saveRun: %v", err)
	}
	store, err := db.NewDB(dbFile)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != db.StatusComplete || runs[0].ZFocus == nil || *runs[0].ZFocus != 600 {
		t.Errorf("stored runs = %+v", runs)
	}

	rec.SetResult(res)
	plots := filepath.Join(dir, "plots")
	if err := writePlots(rec, plots); err != nil {
		t.Fatalf("writePlots: %v", err)
	}
	for _, name := range []string{"coupling_z.png", "coupling_x.png", "coupling.html"} {
		if _, err := os.Stat(filepath.Join(plots, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}
