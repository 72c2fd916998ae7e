package fetch

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ptolemy-maps/ptolemy/pkg/mapper"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
	"github.com/ptolemy-maps/ptolemy/pkg/stitch"
)

const DefaultWorkers = 4

// Warning records one degraded tile. Warnings never fail the run.
type Warning struct {
	Tile model.Tile
	Err  error
}

// Progress reports completed vs total tiles, from worker goroutines.
type Progress func(done, total int)

type RunResult struct {
	Composite *image.RGBA
	Results   []Result
	Warnings  []Warning
}

// Fetched counts tiles that actually came over the network.
func (r *RunResult) Fetched() int {
	n := 0

	for _, res := range r.Results {
		if res.Outcome == Fetched {
			n++
		}
	}

	return n
}

// Orchestrator fans the grid out over a bounded worker pool and hands the
// complete tile set to the stitcher.
type Orchestrator struct {
	fetcher    *Fetcher
	logger     *slog.Logger
	workers    int
	indicators bool
	progress   Progress
}

func NewOrchestrator(f *Fetcher, logger *slog.Logger, workers int, indicators bool, progress Progress) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Orchestrator{
		fetcher:    f,
		logger:     logger.With("logger", "orchestrator"),
		workers:    workers,
		indicators: indicators,
		progress:   progress,
	}
}

// Run fetches every tile of the grid and stitches the composite. Tile
// placement is independent of completion order: each result lands in its
// fixed slot. On cancellation no composite is produced.
func (o *Orchestrator) Run(ctx context.Context, grid mapper.Grid) (*RunResult, error) {
	tiles := grid.Tiles()
	total := len(tiles)
	results := make([]Result, total)

	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, t := range tiles {
		if gctx.Err() != nil {
			break
		}

		i, t := i, t

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = o.fetcher.Fetch(gctx, t)

			if o.progress != nil {
				o.progress(int(done.Add(1)), total)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := make(map[model.Tile]image.Image, total)

	var warnings []Warning

	for _, r := range results {
		images[r.Tile] = r.Image

		if r.Outcome == Placeholder {
			o.logger.Warn("tile degraded to placeholder", "tile", r.Tile.String(), "error", r.Err)
			warnings = append(warnings, Warning{Tile: r.Tile, Err: r.Err})
		}
	}

	composite, err := stitch.Stitch(grid, images, o.fetcher.Server().GetTileSize(), stitch.Options{Indicators: o.indicators})

	if err != nil {
		return nil, err
	}

	return &RunResult{Composite: composite, Results: results, Warnings: warnings}, nil
}
