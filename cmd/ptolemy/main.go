package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ptolemy-maps/ptolemy/pkg/cache"
	"github.com/ptolemy-maps/ptolemy/pkg/fetch"
	"github.com/ptolemy-maps/ptolemy/pkg/mapper"
	"github.com/ptolemy-maps/ptolemy/pkg/mbtiles"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

type App struct {
	logger *slog.Logger

	serverKey   string
	zoom        int
	bbox        string
	center      string
	radius      float64
	out         string
	cacheDir    string
	serversFile string
	workers     int
	interval    time.Duration
	retries     int
	timeout     time.Duration
	userAgent   string
	mbtilesOut  string
	indicators  bool
}

func (app *App) Run(ctx context.Context) error {
	registry := model.DefaultRegistry()

	if app.serversFile != "" {
		var err error
		if registry, err = model.LoadRegistry(app.serversFile); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
	}

	server, err := registry.Get(app.serverKey)

	if err != nil {
		return err
	}

	if err := server.CheckZoom(app.zoom); err != nil {
		return err
	}

	box, err := app.requestBox()

	if err != nil {
		return err
	}

	grid, err := mapper.GridForBox(box, app.zoom)

	if err != nil {
		return err
	}

	if app.cacheDir == "" {
		if app.cacheDir, err = cache.DefaultRoot(); err != nil {
			return fmt.Errorf("cache dir: %w", err)
		}
	}

	app.logger.Info("fetching",
		"server", server.GetKey(),
		"zoom", app.zoom,
		"tiles", grid.Count(),
		"size", fmt.Sprintf("%dx%d", grid.Width()*server.GetTileSize(), grid.Height()*server.GetTileSize()),
		"cache", app.cacheDir)

	if server.Attribution != "" {
		app.logger.Info(server.Attribution)
	}

	fetcher := fetch.New(server, cache.New(app.cacheDir, app.logger), app.logger, fetch.Options{
		UserAgent:       app.userAgent,
		Retries:         app.retries,
		Timeout:         app.timeout,
		RequestInterval: app.interval,
	})

	bar := progressbar.Default(int64(grid.Count()), "tiles")

	orch := fetch.NewOrchestrator(fetcher, app.logger, app.workers, app.indicators, func(done, total int) {
		_ = bar.Set(done)
	})

	res, err := orch.Run(ctx, grid)

	_ = bar.Close()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("cancelled, no output written")
		}

		return err
	}

	if err := writePng(app.out, res); err != nil {
		return err
	}

	if app.mbtilesOut != "" {
		if err := app.exportMbtiles(server, res); err != nil {
			return err
		}
	}

	app.logger.Info("done",
		"out", app.out,
		"fetched", res.Fetched(),
		"warnings", len(res.Warnings))

	return nil
}

func (app *App) requestBox() (mapper.BoundingBox, error) {
	switch {
	case app.bbox != "" && app.center != "":
		return mapper.BoundingBox{}, fmt.Errorf("use either -bbox or -center, not both")
	case app.bbox != "":
		return parseBBox(app.bbox)
	case app.center != "":
		lat, lon, err := parseLatLon(app.center)

		if err != nil {
			return mapper.BoundingBox{}, err
		}

		if app.radius <= 0 {
			return mapper.BoundingBox{}, fmt.Errorf("-center needs a positive -radius in degrees")
		}

		return mapper.BoxAround(lat, lon, app.radius), nil
	default:
		return mapper.BoundingBox{}, fmt.Errorf("no region: provide -bbox or -center with -radius")
	}
}

func (app *App) exportMbtiles(server *model.Server, res *fetch.RunResult) error {
	w, err := mbtiles.Create(app.mbtilesOut, server.GetName(), server.GetExt())

	if err != nil {
		return err
	}

	for _, r := range res.Results {
		if r.Data == nil {
			// placeholders are a stitch-side fill, not map data
			continue
		}

		if err := w.PutTile(r.Tile, r.Data); err != nil {
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}

	app.logger.Info("mbtiles written", "file", app.mbtilesOut, "tiles", w.Count())

	return nil
}

func writePng(path string, res *fetch.RunResult) error {
	f, err := os.Create(path)

	if err != nil {
		return err
	}

	if err := png.Encode(f, res.Composite); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// parseBBox reads "north,west,south,east" in degrees.
func parseBBox(s string) (mapper.BoundingBox, error) {
	parts, err := floats(s, 4)

	if err != nil {
		return mapper.BoundingBox{}, fmt.Errorf("invalid -bbox %q: %w", s, err)
	}

	return mapper.BoundingBox{North: parts[0], West: parts[1], South: parts[2], East: parts[3]}, nil
}

func parseLatLon(s string) (float64, float64, error) {
	parts, err := floats(s, 2)

	if err != nil {
		return 0, 0, fmt.Errorf("invalid -center %q: %w", s, err)
	}

	return parts[0], parts[1], nil
}

func floats(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")

	if len(fields) != n {
		return nil, fmt.Errorf("want %d comma-separated values", n)
	}

	res := make([]float64, n)

	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)

		if err != nil {
			return nil, err
		}

		res[i] = v
	}

	return res, nil
}

func main() {
	app := &App{}

	flag.StringVar(&app.serverKey, "server", "osm", "tile server name")
	flag.IntVar(&app.zoom, "zoom", 12, "zoom level")
	flag.StringVar(&app.bbox, "bbox", "", "bounding box as north,west,south,east (degrees)")
	flag.StringVar(&app.center, "center", "", "center as lat,lon (degrees), used with -radius")
	flag.Float64Var(&app.radius, "radius", 0, "half-width of the box around -center, in degrees")
	flag.StringVar(&app.out, "out", "map.png", "output image file")
	flag.StringVar(&app.cacheDir, "cache", "", "tile cache directory (default: user cache dir)")
	flag.StringVar(&app.serversFile, "servers", "", "yaml server registry (default: built-in servers)")
	flag.IntVar(&app.workers, "concurrency", fetch.DefaultWorkers, "concurrent tile fetches")
	flag.DurationVar(&app.interval, "rate", 100*time.Millisecond, "minimum interval between requests")
	flag.IntVar(&app.retries, "retries", 3, "fetch attempts per tile")
	flag.DurationVar(&app.timeout, "timeout", 10*time.Second, "http timeout")
	flag.StringVar(&app.userAgent, "user-agent", "", "http user agent")
	flag.StringVar(&app.mbtilesOut, "mbtiles", "", "also export fetched tiles to an mbtiles file")
	flag.BoolVar(&app.indicators, "grid", false, "draw tile outlines on the output")
	var debug = flag.Bool("debug", false, "")

	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	app.logger = slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		app.logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}
