// Command hark is a hands-free voice assistant: it listens on a microphone,
// cuts the input into utterances, transcribes them, asks a language model
// for a reply and speaks the answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hark/internal/app"
	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/pkg/audio/portaudio"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// flags holds the parsed command line.
type flags struct {
	set         *pflag.FlagSet
	configPath  string
	listDevices bool
	continuous  bool
	device      string
	output      string
	logLevel    string
	diagnose    bool
	diagnoseFor time.Duration
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{set: pflag.NewFlagSet("hark", pflag.ContinueOnError)}
	f.set.SetOutput(stderr)
	f.set.StringVarP(&f.configPath, "config", "c", "hark.yaml", "path to the YAML configuration file")
	f.set.BoolVar(&f.listDevices, "list-devices", false, "print the available audio devices and exit")
	f.set.BoolVar(&f.continuous, "continuous", false, "keep listening after each reply instead of waiting for the turn keyword")
	f.set.StringVarP(&f.device, "device", "d", "", "input device name or index (overrides audio.device)")
	f.set.StringVar(&f.output, "output-device", "", "output device name or index for speech playback (overrides audio.output_device)")
	f.set.BoolVar(&f.diagnose, "diagnose", false, "check devices and components, measure the input level and exit")
	f.set.DurationVar(&f.diagnoseFor, "diagnose-for", 3*time.Second, "how long --diagnose records the input")
	f.set.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides server.log_level)")
	if err := f.set.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply copies explicitly set flags over cfg.
func (f *flags) apply(cfg *config.Config) {
	if f.set.Changed("continuous") {
		cfg.App.Continuous = f.continuous
	}
	if f.set.Changed("device") {
		cfg.Audio.Device = f.device
	}
	if f.set.Changed("output-device") {
		cfg.Audio.OutputDevice = f.output
	}
	if f.set.Changed("log-level") {
		cfg.Server.LogLevel = config.LogLevel(f.logLevel)
	}
}

func run(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fl, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if fl.listDevices {
		if err := printDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "hark: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can change it.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	rl := &reloader{level: level, pinLevel: fl.set.Changed("log-level")}
	cfg, watcher, err := loadConfig(fl.configPath, fl.set.Changed("config"), rl.onChange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		return 1
	}
	fl.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		return 1
	}
	level.Set(cfg.Server.LogLevel.SlogLevel())

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if fl.diagnose {
		if err := runDiagnostics(ctx, os.Stdout, cfg, reg, fl.diagnoseFor); err != nil {
			fmt.Fprintf(os.Stderr, "hark: %v\n", err)
			return 1
		}
		return 0
	}

	slog.Info("hark starting",
		"version", version,
		"config", fl.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(telemetry.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, checks, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	providers.Player = portaudio.NewPlayer(cfg.Audio.OutputDevice)

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise assistant", "err", err)
		return 1
	}
	rl.app = application
	checks = append([]health.Checker{health.CaptureChecker(application.Listener())}, checks...)

	printStartupSummary(os.Stdout, cfg, watcher != nil)

	// ── Run ───────────────────────────────────────────────────────────────────
	// The assistant decides when the process ends, so its return cancels the
	// status server and the watcher.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		return application.Run(gctx)
	})
	if cfg.Server.ListenAddr != "" {
		srv := newStatusServer(cfg.Server.ListenAddr, telemetry.Handler(), metrics, checks...)
		g.Go(func() error { return serveStatus(gctx, srv) })
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file and returns a watcher for it. When the
// default path is missing the built-in defaults are used and no watcher is
// returned; a missing file that was named explicitly is an error.
//
// The returned config is a copy, so flag overrides do not leak into the
// watcher's change detection.
func loadConfig(path string, explicit bool, onChange func(old, new *config.Config)) (*config.Config, *config.Watcher, error) {
	w, err := config.NewWatcher(path, onChange)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			slog.Info("no config file, using defaults", "path", path)
			return config.Default(), nil, nil
		}
		return nil, nil, err
	}
	cfg := *w.Current()
	return &cfg, w, nil
}

// reloader applies the hot-reloadable parts of a changed config file.
type reloader struct {
	level *slog.LevelVar
	// pinLevel is set when --log-level was given; the flag wins over the file.
	pinLevel bool
	app      *app.App
}

func (r *reloader) onChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && !r.pinLevel {
		r.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged && r.app != nil {
		if !r.app.SetVADParams(d.NewVAD) {
			slog.Warn("vad parameters changed but the listener cannot be retuned; restart to apply")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that only apply after a restart", "sections", d.RestartRequired)
	}
}
