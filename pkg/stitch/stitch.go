// Package stitch assembles a tile grid into one composite image.
package stitch

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/ptolemy-maps/ptolemy/pkg/mapper"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

var ErrIncompleteGrid = errors.New("incomplete grid")

var indicatorColor = color.NRGBA{R: 0xff, A: 0xff}

type Options struct {
	// Indicators draws a red outline around every cell, for finding the
	// coordinates you want.
	Indicators bool
}

// Stitch copies every tile image into its fixed offset of a
// (gridW*size, gridH*size) canvas. Output is deterministic: same grid and
// images give byte-identical pixels. Every cell must be present — the
// fetcher's placeholder policy guarantees that, so a missing cell means an
// invariant broke upstream.
func Stitch(grid mapper.Grid, images map[model.Tile]image.Image, size int, opts Options) (*image.RGBA, error) {
	if size <= 0 {
		size = model.DefaultTileSize
	}

	composite := image.NewRGBA(image.Rect(0, 0, grid.Width()*size, grid.Height()*size))

	for _, t := range grid.Tiles() {
		img, ok := images[t]

		if !ok || img == nil {
			return nil, fmt.Errorf("%w: no image for %s", ErrIncompleteGrid, t)
		}

		col, row := grid.Cell(t)
		dst := image.Rect(col*size, row*size, (col+1)*size, (row+1)*size)

		if b := img.Bounds(); b.Dx() == size && b.Dy() == size {
			stddraw.Draw(composite, dst, img, b.Min, stddraw.Src)
		} else {
			// servers occasionally hand back odd-sized tiles; rescale
			xdraw.ApproxBiLinear.Scale(composite, dst, img, b, xdraw.Src, nil)
		}
	}

	if opts.Indicators {
		drawIndicators(composite, grid, size)
	}

	return composite, nil
}

func drawIndicators(img *image.RGBA, grid mapper.Grid, size int) {
	for row := 0; row < grid.Height(); row++ {
		for col := 0; col < grid.Width(); col++ {
			outlineRect(img, image.Rect(col*size, row*size, (col+1)*size, (row+1)*size))
		}
	}
}

func outlineRect(img *image.RGBA, r image.Rectangle) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, indicatorColor)
		img.Set(x, r.Max.Y-1, indicatorColor)
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, indicatorColor)
		img.Set(r.Max.X-1, y, indicatorColor)
	}
}
