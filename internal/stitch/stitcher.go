// Package stitch composes captured tiles into one image.
package stitch

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Stitch draws tiles row by row into an image of finalSize. Each tile is
// placed right of its predecessor; each row starts below the previous one,
// advanced by the height of that row's first tile.
//
// The tiles must cover finalSize exactly; anything else is ErrTileMismatch
// rather than a composite with gaps or clipped edges.
func Stitch(tiles [][]tile.CapturedTile, finalSize tile.Size) (*image.RGBA, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("stitch: no rows: %w", tile.ErrEmptyInput)
	}
	if !finalSize.Valid() {
		return nil, fmt.Errorf("stitch: size %s: %w", finalSize, tile.ErrInvalidDimensions)
	}

	size := finalSize.Pixels()
	if err := checkCoverage(tiles, size); err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))

	offsetY := 0
	for _, row := range tiles {
		offsetX := 0
		for _, t := range row {
			b := t.Image.Bounds()
			draw.Copy(out, image.Pt(offsetX, offsetY), t.Image, b, draw.Src, nil)
			offsetX += b.Dx()
		}
		offsetY += row[0].Image.Bounds().Dy()
	}

	return out, nil
}

// checkCoverage verifies that every row spans the full width, that rows are
// uniform in height, and that the rows stack to the full height.
func checkCoverage(tiles [][]tile.CapturedTile, size image.Point) error {
	height := 0
	for r, row := range tiles {
		if len(row) == 0 {
			return fmt.Errorf("stitch: row %d is empty: %w", r, tile.ErrEmptyInput)
		}

		width := 0
		rowHeight := -1
		for c, t := range row {
			if t.Image == nil {
				return fmt.Errorf("stitch: tile (%d,%d) has no image: %w", r, c, tile.ErrEmptyInput)
			}
			b := t.Image.Bounds()
			if rowHeight >= 0 && b.Dy() != rowHeight {
				return fmt.Errorf("stitch: tile (%d,%d) is %dpx high, row is %dpx: %w", r, c, b.Dy(), rowHeight, tile.ErrTileMismatch)
			}
			rowHeight = b.Dy()
			width += b.Dx()
		}

		if width != size.X {
			return fmt.Errorf("stitch: row %d spans %dpx, want %dpx: %w", r, width, size.X, tile.ErrTileMismatch)
		}
		height += rowHeight
	}

	if height != size.Y {
		return fmt.Errorf("stitch: rows span %dpx, want %dpx: %w", height, size.Y, tile.ErrTileMismatch)
	}
	return nil
}
