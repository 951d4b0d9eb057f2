// Command vmp renders animated SVG files to GIF, MP4, or WebM.
//
// Usage:
//
//	vmp -in spinner.svg -out spinner.gif       # one-shot export
//	vmp -serve                                 # HTTP API + job ledger
//	vmp -mcp                                   # MCP tools over stdio
//	vmp -watch ./animations                    # re-export on file change
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/iEdric/VectorMotionPro/exporter"
	"github.com/iEdric/VectorMotionPro/render"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

type options struct {
	configPath string
	inPath     string
	outPath    string
	serve      bool
	listen     string
	mcpStdio   bool
	watchDir   string

	format      string
	fps         float64
	duration    float64
	scale       float64
	quality     float64
	transparent bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to vmp.yaml config file")
	flag.StringVar(&opts.inPath, "in", "", "input SVG file for one-shot export")
	flag.StringVar(&opts.outPath, "out", "", "output file; extension picks the format unless -format is set")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP API")
	flag.StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config)")
	flag.BoolVar(&opts.mcpStdio, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&opts.watchDir, "watch", "", "watch a directory and re-export changed .svg files")
	flag.StringVar(&opts.format, "format", "", "output format: gif, mp4, webm")
	flag.Float64Var(&opts.fps, "fps", 0, "frames per second (0 = default)")
	flag.Float64Var(&opts.duration, "duration", 0, "capture window in seconds (0 = from analysis)")
	flag.Float64Var(&opts.scale, "scale", 0, "output scale factor (0 = 1)")
	flag.Float64Var(&opts.quality, "quality", -1, "encoding quality in [0,1]; 0 is minimum bitrate (-1 = default)")
	flag.BoolVar(&opts.transparent, "transparent", false, "preserve alpha where the container allows it")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("vmp: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	mgr := render.NewManager(render.Config{
		RemoteURL: cfg.Browser.Remote,
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer mgr.Close()

	var expOpts []exporter.Option
	expOpts = append(expOpts, exporter.WithLogger(logger))
	if cfg.FFmpeg.FetchURL != "" {
		expOpts = append(expOpts, exporter.WithFFmpegFetchURL(cfg.FFmpeg.FetchURL))
	}
	if cfg.Hints.BaseURL != "" {
		expOpts = append(expOpts, exporter.WithHintClient(
			svgmeta.NewHintClient(cfg.Hints.BaseURL, svgmeta.WithLogger(logger))))
	}
	exp := exporter.New(mgr, expOpts...)

	switch {
	case opts.inPath != "":
		return runOnce(ctx, logger, exp, cfg, opts)
	case opts.watchDir != "":
		return runWatch(ctx, logger, exp, cfg, opts)
	case opts.serve || opts.mcpStdio:
		return runServe(ctx, logger, exp, cfg, opts)
	}

	fmt.Fprintln(os.Stderr, "usage: vmp -in <file> -out <file> | -serve | -mcp | -watch <dir>")
	os.Exit(1)
	return nil
}

func loadConfig(path string) (*exporter.Config, error) {
	if path == "" {
		return exporter.DefaultConfig(), nil
	}
	return exporter.LoadConfigFile(path)
}

// settingsFor merges config defaults with command-line overrides. The
// output path extension decides the format when -format is not given.
func settingsFor(cfg *exporter.Config, opts options, outPath string) (exporter.Settings, error) {
	s := cfg.Defaults
	if opts.fps != 0 {
		s.FPS = opts.fps
	}
	if opts.duration != 0 {
		s.Duration = opts.duration
	}
	if opts.scale != 0 {
		s.Scale = opts.scale
	}
	if opts.quality >= 0 {
		s.Quality = exporter.QualityOf(opts.quality)
	}
	if opts.transparent {
		s.Transparent = true
	}

	name := opts.format
	if name == "" && outPath != "" {
		name = strings.TrimPrefix(filepath.Ext(outPath), ".")
	}
	if name != "" {
		f, err := exporter.ParseFormat(name)
		if err != nil {
			return exporter.Settings{}, err
		}
		s.Format = f
	}
	return s, nil
}

func runOnce(ctx context.Context, logger *slog.Logger, exp *exporter.Exporter, cfg *exporter.Config, opts options) error {
	if opts.outPath == "" {
		return fmt.Errorf("vmp: -out is required with -in")
	}

	data, err := os.ReadFile(opts.inPath)
	if err != nil {
		return fmt.Errorf("vmp: read input: %w", err)
	}

	settings, err := settingsFor(cfg, opts, opts.outPath)
	if err != nil {
		return err
	}

	res, err := exp.Export(ctx, exporter.Sanitize(string(data)), settings, func(pct int) {
		logger.Info("vmp: progress", "pct", pct)
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.outPath, res.Bytes, 0o644); err != nil {
		return fmt.Errorf("vmp: write output: %w", err)
	}
	logger.Info("vmp: wrote", "path", opts.outPath, "bytes", len(res.Bytes), "mime", res.MIME)
	return nil
}

func runServe(ctx context.Context, logger *slog.Logger, exp *exporter.Exporter, cfg *exporter.Config, opts options) error {
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	jobs, err := exporter.OpenJobStore(cfg.Jobs.DBPath, logger)
	if err != nil {
		return err
	}
	defer jobs.Close()

	svc := exporter.NewService(exp, jobs, logger)

	if opts.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "vectormotion",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(srv)

		if !opts.serve {
			return srv.Run(ctx, &mcp.StdioTransport{})
		}
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("vmp: mcp", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	svc.RegisterHTTP(r)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("vmp: listening", "addr", cfg.Listen)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	case err := <-errc:
		return err
	}
}

// runWatch re-exports every .svg file in a directory when it changes.
// Output lands next to the source with the configured format's extension.
func runWatch(ctx context.Context, logger *slog.Logger, exp *exporter.Exporter, cfg *exporter.Config, opts options) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("vmp: watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(opts.watchDir); err != nil {
		return fmt.Errorf("vmp: watch %s: %w", opts.watchDir, err)
	}
	logger.Info("vmp: watching", "dir", opts.watchDir)

	// Editors fire several events per save; debounce per path.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watcher.Errors:
			logger.Warn("vmp: watch error", "error", err)
		case ev := <-watcher.Events:
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".svg") {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			for path, stamp := range pending {
				if time.Since(stamp) < 250*time.Millisecond {
					continue
				}
				delete(pending, path)
				if err := exportWatched(ctx, logger, exp, cfg, opts, path); err != nil {
					logger.Error("vmp: export failed", "path", path, "error", err)
				}
			}
		}
	}
}

func exportWatched(ctx context.Context, logger *slog.Logger, exp *exporter.Exporter, cfg *exporter.Config, opts options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	settings, err := settingsFor(cfg, opts, "")
	if err != nil {
		return err
	}

	res, err := exp.Export(ctx, exporter.Sanitize(string(data)), settings, nil)
	if err != nil {
		return err
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(settings.Format)
	if err := os.WriteFile(out, res.Bytes, 0o644); err != nil {
		return err
	}
	logger.Info("vmp: wrote", "path", out, "bytes", len(res.Bytes))
	return nil
}
