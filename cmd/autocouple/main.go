package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/config"
	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/db"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/monitoring"
	"github.com/banshee-data/autocouple/internal/report"
	"github.com/banshee-data/autocouple/internal/serialmux"
	"github.com/banshee-data/autocouple/internal/sim"
	"github.com/banshee-data/autocouple/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a coupling JSON config (built-in defaults if empty)")
	port        = flag.String("port", "", "Serial port of the lens/laser controller (overrides config; ignored in dev mode)")
	xRange      = flag.String("x", "", "X sweep range min:max:step (overrides config)")
	zRange      = flag.String("z", "", "Z sweep range min:max:step (overrides config)")
	devMode     = flag.Bool("dev", false, "Run against the simulated bench")
	simFocusZ   = flag.Int("sim-focus-z", 1000, "Dev mode: Z position of best focus")
	simEdgeX    = flag.Int("sim-edge-x", 1500, "Dev mode: X position of the chip edge")
	framesDir   = flag.String("frames-dir", "", "Serve camera frames from image files in this directory instead of the CSI camera")
	display     = flag.Bool("display", false, "Plot every sweep sample (into -plot-dir, default ./plots)")
	plotDir     = flag.String("plot-dir", "", "Write PNG and HTML plots of the sweeps here (implies -display)")
	dbPath      = flag.String("db", "", "Record the run in this SQLite database")
	laser       = flag.Int("laser", -1, "Laser intensity 0..1024 applied before the sweeps (-1 leaves it unchanged)")
	timeout     = flag.Duration("timeout", 0, "Abort the run after this long (0 disables)")
	quiet       = flag.Bool("quiet", false, "Suppress per-sample diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const defaultPlotDir = "plots"

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.CouplingConfig, error) {
	fc := &config.CouplingConfig{}
	if *configPath != "" {
		var err error
		if fc, err = config.LoadCouplingConfig(*configPath); err != nil {
			return nil, err
		}
	}

	if *port != "" {
		fc.SerialPort = port
	}
	for _, o := range []struct {
		arg           string
		min, max, stp **int
	}{
		{*xRange, &fc.XMin, &fc.XMax, &fc.XStep},
		{*zRange, &fc.ZMin, &fc.ZMax, &fc.ZStep},
	} {
		if o.arg == "" {
			continue
		}
		r, err := coupling.ParsePositionRange(o.arg)
		if err != nil {
			return nil, err
		}
		*o.min, *o.max, *o.stp = &r.Min, &r.Max, &r.Step
	}
	if *display || *plotDir != "" {
		on := true
		fc.Display = &on
	}
	if *plotDir != "" {
		fc.PlotDir = plotDir
	}
	if *dbPath != "" {
		fc.DBPath = dbPath
	}
	if *laser >= 0 {
		fc.LaserIntensity = laser
	}

	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return fc, nil
}

// newOpener wires the hardware for the selected mode. Dev mode reaches the
// simulated bench through the same serial command path as real hardware.
func newOpener(fc *config.CouplingConfig) hardware.Opener {
	if *devMode {
		bench := sim.NewBench(*simFocusZ, *simEdgeX)
		bench.LensID, bench.LaserID = fc.GetLensID(), fc.GetLaserID()
		bench.Width, bench.Height = fc.GetFrameWidth(), fc.GetFrameHeight()
		bench.Exposure = fc.GetExposureTime()
		opener := bench.Opener()
		opener.Options = fc.PortOptions()
		if *framesDir != "" {
			opener.OpenCamera = playbackCamera(fc)
		}
		return opener
	}

	openCamera := captureCamera(fc)
	if *framesDir != "" {
		openCamera = playbackCamera(fc)
	}
	return &hardware.SerialOpener{
		Factory:    serialmux.NewRealSerialPortFactory(),
		Options:    fc.PortOptions(),
		LensID:     fc.GetLensID(),
		LaserID:    fc.GetLaserID(),
		OpenCamera: openCamera,
	}
}

func captureCamera(fc *config.CouplingConfig) hardware.CameraOpener {
	return func() (camera.Camera, error) {
		return camera.OpenCapture(fc.CameraPipeline(), fc.GetFrameWidth(), fc.GetFrameHeight())
	}
}

func playbackCamera(fc *config.CouplingConfig) hardware.CameraOpener {
	return func() (camera.Camera, error) {
		return camera.OpenPlayback(*framesDir, fc.GetFrameWidth(), fc.GetFrameHeight())
	}
}

// saveRun persists the run and reports where it went.
func saveRun(ctx context.Context, path string, cfg coupling.Config, res coupling.Result, runErr error) error {
	store, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := db.NewCouplingRun(cfg, res, runErr)
	if err != nil {
		return err
	}
	if err := store.InsertRun(ctx, run); err != nil {
		return err
	}
	log.Printf("recorded run %s (%s) in %s", run.RunID, run.Status, path)
	return nil
}

func writePlots(rec *report.Recorder, dir string) error {
	paths, err := rec.WritePNG(dir)
	if err != nil {
		return err
	}
	htmlPath := filepath.Join(dir, "coupling.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", htmlPath, err)
	}
	if err := rec.WriteHTML(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	for _, p := range append(paths, htmlPath) {
		log.Printf("wrote %s", p)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *quiet {
		monitoring.SetLogger(nil)
	}
	fc, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	opener := newOpener(fc)

	rec := report.NewRecorder()
	ctl := coupling.NewController(opener,
		coupling.WithObserver(rec),
		coupling.WithFocusMetric(fc.FocusMetric()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx := ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	cfg := fc.Coupling()
	log.Printf("%s: X %s, Z %s on %s", version.String(), cfg.XRange, cfg.ZRange, cfg.SerialPort)
	res, runErr := ctl.Run(runCtx, cfg)

	if path := fc.GetDBPath(); path != "" {
		if err := saveRun(context.Background(), path, cfg, res, runErr); err != nil {
			log.Printf("failed to record run: %v", err)
		}
	}
	dir := fc.GetPlotDir()
	if dir == "" && fc.GetDisplay() {
		dir = defaultPlotDir
	}
	if dir != "" {
		rec.SetResult(res)
		if err := writePlots(rec, dir); err != nil {
			log.Printf("failed to write plots: %v", err)
		}
	}

	if runErr != nil {
		log.Fatalf("coupling failed after %s: %v", res.Elapsed, runErr)
	}
	log.Printf("coupled: Z=%d X=%d in %s", res.ZFocus, res.XEdge, res.Elapsed)
}
