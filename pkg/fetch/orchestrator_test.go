package fetch

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ptolemy-maps/ptolemy/pkg/cache"
	"github.com/ptolemy-maps/ptolemy/pkg/mapper"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

func testGrid() mapper.Grid {
	return mapper.Grid{Zoom: 3, MinX: 2, MinY: 1, MaxX: 4, MaxY: 2}
}

func TestRunStitchesFullGrid(t *testing.T) {
	data := tilePng(t, color.NRGBA{G: 0x80, A: 0xff})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())

	var lastDone atomic.Int64

	orch := NewOrchestrator(f, nil, 3, false, func(done, total int) {
		if total != 6 {
			t.Errorf("progress total %d, want 6", total)
		}

		lastDone.Store(int64(done))
	})

	grid := testGrid()

	res, err := orch.Run(context.Background(), grid)

	if err != nil {
		t.Fatal(err)
	}

	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	b := res.Composite.Bounds()
	wantW, wantH := grid.Width()*testTileSize, grid.Height()*testTileSize

	if b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("composite %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}

	if res.Fetched() != grid.Count() {
		t.Errorf("fetched %d, want %d", res.Fetched(), grid.Count())
	}

	if lastDone.Load() != int64(grid.Count()) {
		t.Errorf("final progress %d, want %d", lastDone.Load(), grid.Count())
	}
}

func TestRunSingleFailureBecomesWarning(t *testing.T) {
	data := tilePng(t, color.NRGBA{G: 0x80, A: 0xff})
	failing := model.Tile{X: 3, Y: 2, Z: 3}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/3/3/2.png" {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write(data)
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())
	orch := NewOrchestrator(f, nil, 2, false, nil)

	grid := testGrid()

	res, err := orch.Run(context.Background(), grid)

	if err != nil {
		t.Fatal(err)
	}

	if len(res.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %v", len(res.Warnings), res.Warnings)
	}

	if res.Warnings[0].Tile != failing {
		t.Errorf("warning for %v, want %v", res.Warnings[0].Tile, failing)
	}

	b := res.Composite.Bounds()

	if b.Dx() != grid.Width()*testTileSize || b.Dy() != grid.Height()*testTileSize {
		t.Errorf("composite dimensions wrong despite placeholder: %v", b)
	}

	// the failed cell carries the sea fill
	col, row := grid.Cell(failing)
	got := color.NRGBAModel.Convert(res.Composite.At(col*testTileSize+3, row*testTileSize+3))

	if got != color.NRGBAModel.Convert(SeaColor) {
		t.Errorf("failed cell color %v, want sea fill", got)
	}
}

func TestRunCancelled(t *testing.T) {
	data := tilePng(t, color.NRGBA{A: 0xff})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer ts.Close()

	f := New(mockServer(ts.URL), cache.New(t.TempDir(), nil), nil, testOptions())
	orch := NewOrchestrator(f, nil, 2, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := orch.Run(ctx, testGrid())

	if err == nil {
		t.Fatal("cancelled run must report an error")
	}

	if res != nil {
		t.Error("cancelled run must not produce a composite")
	}
}
