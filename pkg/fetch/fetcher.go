// Package fetch retrieves tiles, cache first, and drives the per-request
// worker pool.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ptolemy-maps/ptolemy/pkg/cache"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

const DefaultUserAgent = "ptolemy/1.0 (+https://github.com/ptolemy-maps/ptolemy)"

// SeaColor fills placeholder tiles for failed fetches.
var SeaColor = color.NRGBA{R: 0x9e, G: 0xc7, B: 0xe3, A: 0xff}

type Outcome int

const (
	Cached Outcome = iota
	Fetched
	Placeholder
)

func (o Outcome) String() string {
	switch o {
	case Cached:
		return "cached"
	case Fetched:
		return "fetched"
	default:
		return "placeholder"
	}
}

// Result is the tagged outcome of one tile fetch. Image is never nil: failed
// tiles carry the placeholder so the grid stays complete. Data holds the raw
// encoded bytes and is nil for placeholders.
type Result struct {
	Tile    model.Tile
	Outcome Outcome
	Image   image.Image
	Data    []byte
	Err     error
}

type Options struct {
	UserAgent       string
	Retries         int
	Backoff         time.Duration
	Timeout         time.Duration
	RequestInterval time.Duration
	Fill            color.Color
}

type Fetcher struct {
	server  *model.Server
	cache   *cache.DiskCache
	cl      *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	userAgent string
	retries   int
	backoff   time.Duration
	fill      color.Color

	phOnce sync.Once
	ph     image.Image
}

func New(server *model.Server, c *cache.DiskCache, logger *slog.Logger, opts Options) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	if opts.Retries <= 0 {
		opts.Retries = 3
	}

	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	if opts.Fill == nil {
		opts.Fill = SeaColor
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RequestInterval), 1)
	}

	return &Fetcher{
		server: server,
		cache:  c,
		cl: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: opts.Timeout,
			},
		},
		limiter:   limiter,
		logger:    logger.With("logger", "fetch", "server", server.GetKey()),
		userAgent: opts.UserAgent,
		retries:   opts.Retries,
		backoff:   opts.Backoff,
		fill:      opts.Fill,
	}
}

func (f *Fetcher) Server() *model.Server {
	return f.server
}

// Fetch returns a complete Result for the tile. Per-tile failures never
// surface as errors here: they become placeholders, with the reason in Err.
func (f *Fetcher) Fetch(ctx context.Context, t model.Tile) Result {
	data, outcome, err := f.FetchBytes(ctx, t)

	if err != nil {
		return f.placeholderResult(t, err)
	}

	img, _, derr := image.Decode(bytes.NewReader(data))

	if derr != nil && outcome == Cached {
		// stale or truncated cache entry, go back to the network
		f.logger.Debug("cached tile is undecodable, refetching", "tile", t.String(), "error", derr)

		data, err = f.download(ctx, t)
		outcome = Fetched

		if err == nil {
			img, _, derr = image.Decode(bytes.NewReader(data))

			if derr == nil {
				if perr := f.cache.Put(f.server, t, data); perr != nil {
					f.logger.Warn("cache write failed", "tile", t.String(), "error", perr)
				}
			}
		} else {
			derr = err
		}
	}

	if derr != nil {
		return f.placeholderResult(t, fmt.Errorf("decode: %w", derr))
	}

	return Result{Tile: t, Outcome: outcome, Image: img, Data: data}
}

// FetchBytes returns the raw encoded tile, consulting the cache first. Used
// directly by the tileserver and the mbtiles export, which need bytes, not
// pixels.
func (f *Fetcher) FetchBytes(ctx context.Context, t model.Tile) ([]byte, Outcome, error) {
	if !t.Valid() {
		return nil, Placeholder, fmt.Errorf("invalid tile %s", t)
	}

	if data, ok := f.cache.Get(f.server, t); ok {
		f.logger.Debug("hit", "tile", t.String())
		return data, Cached, nil
	}

	f.logger.Debug("miss", "tile", t.String())

	data, err := f.download(ctx, t)

	if err != nil {
		return nil, Placeholder, err
	}

	if err := f.cache.Put(f.server, t, data); err != nil {
		// non-fatal: the tile is still good in memory
		f.logger.Warn("cache write failed", "tile", t.String(), "error", err)
	}

	return data, Fetched, nil
}

func (f *Fetcher) download(ctx context.Context, t model.Tile) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff << (attempt - 1)):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, retryable, err := f.doRequest(ctx, f.server.GetUrl(t))

		if err == nil {
			return data, nil
		}

		lastErr = err

		if !retryable {
			break
		}

		f.logger.Debug("retrying", "tile", t.String(), "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, url string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.cl.Do(req)

	if err != nil {
		return nil, ctx.Err() == nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, fmt.Errorf("%s: %s", url, resp.Status)
	}

	data, err = io.ReadAll(resp.Body)

	if err != nil {
		return nil, true, err
	}

	return data, false, nil
}

func (f *Fetcher) placeholderResult(t model.Tile, reason error) Result {
	f.phOnce.Do(func() {
		size := f.server.GetTileSize()
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		draw.Draw(img, img.Bounds(), image.NewUniform(f.fill), image.Point{}, draw.Src)
		f.ph = img
	})

	return Result{Tile: t, Outcome: Placeholder, Image: f.ph, Err: reason}
}
