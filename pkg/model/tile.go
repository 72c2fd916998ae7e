package model

import "fmt"

type Tile struct {
	X int
	Y int
	Z int
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether the tile indices fit the 2^z x 2^z grid.
func (t Tile) Valid() bool {
	if t.Z < 0 {
		return false
	}

	n := 1 << t.Z

	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// FlipY converts between XYZ and TMS row numbering.
func (t Tile) FlipY() Tile {
	return Tile{X: t.X, Y: 1<<t.Z - t.Y - 1, Z: t.Z}
}
