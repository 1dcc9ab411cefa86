package tile

import (
	"fmt"
	"image"
	"math"
)

// Size is a width/height pair describing a viewport or a content area.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are finite and strictly positive.
func (s Size) Valid() bool {
	return positive(s.Width) && positive(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Pixels returns the size rounded to whole pixels.
func (s Size) Pixels() image.Point {
	return image.Pt(int(math.Round(s.Width)), int(math.Round(s.Height)))
}

// Round returns the size rounded to whole pixels.
func (s Size) Round() Size {
	return Size{Width: math.Round(s.Width), Height: math.Round(s.Height)}
}

// Point is a scroll offset in content coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Rect is a rectangle in viewport-local coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size returns the rectangle's dimensions.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Pixels converts the rectangle to an image.Rectangle, one point per pixel.
func (r Rect) Pixels() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// Tile is one cell of the capture grid.
type Tile struct {
	Row int `json:"row"`
	Col int `json:"col"`

	// CaptureOffset is where the viewport must scroll so this tile is visible.
	CaptureOffset Point `json:"capture_offset"`

	// SourceRect is the part of the rasterized viewport kept for this tile.
	SourceRect Rect `json:"source_rect"`
}

// PixelRect returns the part of a whole-pixel viewport raster taken at
// CaptureOffset that the tile keeps. Edges are rounded in content coordinates,
// so adjacent tiles share them and the kept spans add up to the rounded
// content size even when the content ends on a fraction of a pixel.
func (t Tile) PixelRect() image.Rectangle {
	x0, x1 := pixelSpan(t.CaptureOffset.X, t.SourceRect.X, t.SourceRect.Width)
	y0, y1 := pixelSpan(t.CaptureOffset.Y, t.SourceRect.Y, t.SourceRect.Height)
	return image.Rect(x0, y0, x1, y1)
}

func pixelSpan(offset, origin, length float64) (int, int) {
	base := math.Round(offset)
	start := math.Round(offset + origin)
	end := math.Round(offset + origin + length)
	return int(start - base), int(end - base)
}

// Partial reports whether the tile keeps less than a full viewport.
func (t Tile) Partial(viewport Size) bool {
	return t.SourceRect.Width < viewport.Width || t.SourceRect.Height < viewport.Height
}

// Grid is the planned set of tiles, row-major.
type Grid struct {
	Viewport Size     `json:"viewport"`
	Content  Size     `json:"content"`
	Tiles    [][]Tile `json:"tiles"`
}

// Rows returns the number of grid rows.
func (g *Grid) Rows() int {
	return len(g.Tiles)
}

// Cols returns the number of grid columns.
func (g *Grid) Cols() int {
	if len(g.Tiles) == 0 {
		return 0
	}
	return len(g.Tiles[0])
}

// Len returns the total number of tiles.
func (g *Grid) Len() int {
	return g.Rows() * g.Cols()
}

// Each calls fn for every tile in row-major order and stops at the first error.
func (g *Grid) Each(fn func(Tile) error) error {
	for _, row := range g.Tiles {
		for _, t := range row {
			if err := fn(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// CapturedTile is a rasterized tile, already cropped to its SourceRect.
type CapturedTile struct {
	Tile
	Image image.Image
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
