package mapper

import (
	"fmt"
	"math"

	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

// BoundingBox is a geographic rectangle in degrees. It must not wrap the
// antimeridian: West <= East always.
type BoundingBox struct {
	North float64
	South float64
	East  float64
	West  float64
}

func (b BoundingBox) Check() error {
	if b.North <= b.South {
		return fmt.Errorf("%w: north %f <= south %f", ErrInvalidRegion, b.North, b.South)
	}

	if b.West > b.East {
		return fmt.Errorf("%w: box crosses the antimeridian (west %f > east %f)", ErrUnsupportedRegion, b.West, b.East)
	}

	if math.Abs(b.North) >= MaxLat || math.Abs(b.South) >= MaxLat {
		return fmt.Errorf("%w: latitude beyond %f", ErrOutOfRange, MaxLat)
	}

	return nil
}

// BoxAround builds a box of radius degrees around a center point, clamped to
// the Mercator latitude limit.
func BoxAround(lat, lon, radius float64) BoundingBox {
	return BoundingBox{
		North: math.Min(lat+radius, MaxLat-1e-9),
		South: math.Max(lat-radius, -MaxLat+1e-9),
		East:  lon + radius,
		West:  lon - radius,
	}
}

// Grid is the inclusive tile rectangle covering a request. Row-major:
// y grows north to south, x west to east.
type Grid struct {
	Zoom int
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// GridForBox covers the box with tiles at the given zoom. A box smaller than
// one tile still yields a 1x1 grid.
func GridForBox(box BoundingBox, zoom int) (Grid, error) {
	if err := box.Check(); err != nil {
		return Grid{}, err
	}

	nw, err := LatLonToTile(box.North, box.West, zoom)

	if err != nil {
		return Grid{}, err
	}

	se, err := LatLonToTile(box.South, box.East, zoom)

	if err != nil {
		return Grid{}, err
	}

	return Grid{
		Zoom: zoom,
		MinX: min(nw.X, se.X),
		MinY: min(nw.Y, se.Y),
		MaxX: max(nw.X, se.X),
		MaxY: max(nw.Y, se.Y),
	}, nil
}

func (g Grid) Width() int {
	return g.MaxX - g.MinX + 1
}

func (g Grid) Height() int {
	return g.MaxY - g.MinY + 1
}

func (g Grid) Count() int {
	return g.Width() * g.Height()
}

func (g Grid) Contains(t model.Tile) bool {
	return t.Z == g.Zoom && t.X >= g.MinX && t.X <= g.MaxX && t.Y >= g.MinY && t.Y <= g.MaxY
}

// Cell returns the column and row of the tile within the grid.
func (g Grid) Cell(t model.Tile) (col, row int) {
	return t.X - g.MinX, t.Y - g.MinY
}

// Tiles enumerates the grid row-major, north to south, west to east.
func (g Grid) Tiles() []model.Tile {
	tiles := make([]model.Tile, 0, g.Count())

	for y := g.MinY; y <= g.MaxY; y++ {
		for x := g.MinX; x <= g.MaxX; x++ {
			tiles = append(tiles, model.Tile{X: x, Y: y, Z: g.Zoom})
		}
	}

	return tiles
}

// Extent returns the geographic rectangle the grid actually covers.
func (g Grid) Extent() BoundingBox {
	north, west := TileToLatLon(model.Tile{X: g.MinX, Y: g.MinY, Z: g.Zoom})
	south, east := TileToLatLon(model.Tile{X: g.MaxX + 1, Y: g.MaxY + 1, Z: g.Zoom})

	return BoundingBox{North: north, South: south, East: east, West: west}
}
