package tile

import (
	"fmt"
	"math"
)

// remainderEpsilon absorbs float noise in math.Mod for fractional sizes.
const remainderEpsilon = 1e-9

// Plan partitions content into viewport-sized tiles.
//
// Full tiles are laid out at multiples of the viewport size. When the content
// is not an exact multiple, one extra partial column and/or row is added. The
// partial tile's capture offset is pulled back to content-viewport so the
// scrolled viewport never overhangs the content, and its SourceRect keeps the
// right/bottom-aligned remainder of the raster.
func Plan(viewport, content Size) (*Grid, error) {
	if !viewport.Valid() {
		return nil, fmt.Errorf("viewport %s: %w", viewport, ErrInvalidDimensions)
	}
	if !content.Valid() {
		return nil, fmt.Errorf("content %s: %w", content, ErrInvalidDimensions)
	}

	cols := axisPlan(viewport.Width, content.Width)
	rows := axisPlan(viewport.Height, content.Height)

	tiles := make([][]Tile, len(rows))
	for r, ys := range rows {
		row := make([]Tile, len(cols))
		for c, xs := range cols {
			row[c] = Tile{
				Row:           r,
				Col:           c,
				CaptureOffset: Point{X: xs.offset, Y: ys.offset},
				SourceRect: Rect{
					X:      xs.origin,
					Y:      ys.origin,
					Width:  xs.length,
					Height: ys.length,
				},
			}
		}
		tiles[r] = row
	}

	return &Grid{Viewport: viewport, Content: content, Tiles: tiles}, nil
}

// slice is one step along a single axis.
type slice struct {
	offset float64 // scroll offset
	origin float64 // crop origin inside the viewport
	length float64 // kept length
}

// axisPlan computes the slices along one axis.
func axisPlan(view, content float64) []slice {
	partial := math.Mod(content, view)
	if partial < view*remainderEpsilon || view-partial < view*remainderEpsilon {
		partial = 0
	}
	full := int(math.Round((content - partial) / view))

	count := full
	if partial > 0 {
		count++
	}

	out := make([]slice, 0, count)
	offset := 0.0
	for i := 0; i < count; i++ {
		if i == full {
			// Pull the last viewport back inside the content. When the content
			// is smaller than the viewport there is nothing to scroll.
			start := offset
			offset = math.Max(content-view, 0)
			out = append(out, slice{offset: offset, origin: start - offset, length: partial})
			break
		}
		out = append(out, slice{offset: offset, origin: 0, length: view})
		offset += view
	}
	return out
}
