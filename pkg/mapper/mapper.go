// Package mapper does the slippy-map math: converting lat/lon to tile
// indices and back, and covering a bounding box with a tile grid.
package mapper

import (
	"errors"
	"fmt"
	"math"

	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

// MaxLat is the Mercator latitude limit.
const MaxLat = 85.05112877980659

var (
	ErrOutOfRange        = errors.New("coordinate out of range")
	ErrInvalidRegion     = errors.New("invalid region")
	ErrUnsupportedRegion = errors.New("unsupported region")
)

func radians(a float64) float64 {
	return a / 180 * math.Pi
}

func deg(a float64) float64 {
	return a / math.Pi * 180
}

// LatLonToTile returns the tile containing the point at the given zoom.
func LatLonToTile(lat, lon float64, zoom int) (model.Tile, error) {
	if zoom < 0 {
		return model.Tile{}, fmt.Errorf("%w: zoom %d", ErrOutOfRange, zoom)
	}

	if math.Abs(lat) >= MaxLat {
		return model.Tile{}, fmt.Errorf("%w: latitude %f", ErrOutOfRange, lat)
	}

	n := 1 << zoom

	x := int(math.Floor((lon + 180) / 360 * float64(n)))
	y := int(math.Floor((1 - math.Log(math.Tan(radians(lat))+1/math.Cos(radians(lat)))/math.Pi) / 2 * float64(n)))

	// points on the east/north edges land in the last tile
	return model.Tile{X: clamp(x, 0, n-1), Y: clamp(y, 0, n-1), Z: zoom}, nil
}

// TileToLatLon returns the north-west corner of the tile.
func TileToLatLon(t model.Tile) (lat, lon float64) {
	n := float64(int(1) << t.Z)

	lon = float64(t.X)/n*360 - 180
	lat = deg(math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y)/n))))

	return lat, lon
}

// TileCenter returns the center of the tile, via the half-step at zoom+1.
func TileCenter(t model.Tile) (lat, lon float64) {
	return TileToLatLon(model.Tile{X: t.X*2 + 1, Y: t.Y*2 + 1, Z: t.Z + 1})
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
