package fetch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ptolemy-maps/ptolemy/pkg/cache"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

const testTileSize = 8

func tilePng(t *testing.T, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, testTileSize, testTileSize))

	for y := 0; y < testTileSize; y++ {
		for x := 0; x < testTileSize; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer

	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func mockServer(url string) *model.Server {
	return &model.Server{
		Key:      "mock",
		Name:     "Mock",
		Url:      url + "/{z}/{x}/{y}.png",
		MaxZoom:  19,
		TileType: "png",
		TileSize: testTileSize,
	}
}

func testOptions() Options {
	return Options{Retries: 3, Backoff: time.Millisecond, Timeout: time.Second}
}

func TestFetchThenCacheHit(t *testing.T) {
	var requests atomic.Int64

	data := tilePng(t, color.NRGBA{G: 0xff, A: 0xff})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(data)
	}))
	defer ts.Close()

	srv := mockServer(ts.URL)
	f := New(srv, cache.New(t.TempDir(), nil), nil, testOptions())

	tile := model.Tile{X: 1, Y: 2, Z: 3}

	res := f.Fetch(context.Background(), tile)

	if res.Outcome != Fetched {
		t.Fatalf("first fetch: got %v, want fetched (err %v)", res.Outcome, res.Err)
	}

	if res.Image == nil || res.Image.Bounds().Dx() != testTileSize {
		t.Fatalf("bad image: %v", res.Image)
	}

	res = f.Fetch(context.Background(), tile)

	if res.Outcome != Cached {
		t.Fatalf("second fetch: got %v, want cached", res.Outcome)
	}

	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var requests atomic.Int64

	data := tilePng(t, color.NRGBA{B: 0xff, A: 0xff})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_, _ = w.Write(data)
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())

	res := f.Fetch(context.Background(), model.Tile{X: 0, Y: 0, Z: 1})

	if res.Outcome != Fetched {
		t.Fatalf("got %v (err %v), want fetched after retries", res.Outcome, res.Err)
	}

	if n := requests.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestFetchNotFoundIsPlaceholder(t *testing.T) {
	var requests atomic.Int64

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())

	res := f.Fetch(context.Background(), model.Tile{X: 0, Y: 0, Z: 1})

	if res.Outcome != Placeholder {
		t.Fatalf("got %v, want placeholder", res.Outcome)
	}

	if res.Err == nil {
		t.Error("placeholder result must carry the failure reason")
	}

	// 404 is not retryable
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}

	b := res.Image.Bounds()

	if b.Dx() != testTileSize || b.Dy() != testTileSize {
		t.Fatalf("placeholder size %dx%d, want %dx%d", b.Dx(), b.Dy(), testTileSize, testTileSize)
	}

	want := color.NRGBAModel.Convert(SeaColor)

	if got := color.NRGBAModel.Convert(res.Image.At(3, 3)); got != want {
		t.Errorf("placeholder fill: got %v, want %v", got, want)
	}
}

func TestFetchUndecodableBodyIsPlaceholder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())

	res := f.Fetch(context.Background(), model.Tile{X: 0, Y: 0, Z: 1})

	if res.Outcome != Placeholder || res.Err == nil {
		t.Fatalf("got %v (err %v), want placeholder with reason", res.Outcome, res.Err)
	}
}

func TestFetchCorruptCacheEntryRefetches(t *testing.T) {
	data := tilePng(t, color.NRGBA{R: 0xff, A: 0xff})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer ts.Close()

	srv := mockServer(ts.URL)
	c := cache.New(t.TempDir(), nil)
	tile := model.Tile{X: 4, Y: 4, Z: 5}

	if err := c.Put(srv, tile, []byte("truncated junk")); err != nil {
		t.Fatal(err)
	}

	f := New(srv, c, nil, testOptions())

	res := f.Fetch(context.Background(), tile)

	if res.Outcome != Fetched {
		t.Fatalf("got %v (err %v), want fetched", res.Outcome, res.Err)
	}

	if res.Image == nil {
		t.Fatal("no image after refetch")
	}
}
