package canvas

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

// Demo grid layout
const (
	DefaultCell = 50
	DefaultGap  = 5
)

// GridScene is a grid of coloured square cells on a white background, each
// cell tinted by its index.
type GridScene struct {
	Width  int
	Height int
	Cell   int
	Gap    int
}

// NewGridScene returns a demo grid of the given content size.
func NewGridScene(width, height int) *GridScene {
	return &GridScene{Width: width, Height: height, Cell: DefaultCell, Gap: DefaultGap}
}

// Size returns the content size.
func (g *GridScene) Size() image.Point {
	return image.Pt(g.Width, g.Height)
}

// Columns returns how many cells start on each row.
func (g *GridScene) Columns() int {
	return (g.Width - g.Gap + g.pitch() - 1) / g.pitch()
}

// CellRect returns the content rectangle of the cell at (row, col).
func (g *GridScene) CellRect(row, col int) image.Rectangle {
	x := g.Gap + col*g.pitch()
	y := g.Gap + row*g.pitch()
	return image.Rect(x, y, x+g.Cell, y+g.Cell)
}

// CellColor returns the colour of the cell at index i.
func (g *GridScene) CellColor(i int) color.Color {
	hue := float64((i * 47) % 360)
	return colorful.Hsv(hue, 0.55, 0.9).Clamped()
}

// Paint draws the cells intersecting r.
func (g *GridScene) Paint(dst *image.RGBA, r image.Rectangle) {
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	p := g.pitch()
	cols := g.Columns()
	firstRow := max((r.Min.Y-g.Gap)/p, 0)
	firstCol := max((r.Min.X-g.Gap)/p, 0)

	for row := firstRow; ; row++ {
		if g.Gap+row*p >= min(r.Max.Y, g.Height) {
			break
		}
		for col := firstCol; col < cols; col++ {
			if g.Gap+col*p >= r.Max.X {
				break
			}
			cell := g.CellRect(row, col).Intersect(image.Rect(0, 0, g.Width, g.Height)).Intersect(r)
			if cell.Empty() {
				continue
			}
			fill := &image.Uniform{C: g.CellColor(row*cols + col)}
			draw.Draw(dst, cell.Sub(r.Min).Add(dst.Bounds().Min), fill, image.Point{}, draw.Src)
		}
	}
}

func (g *GridScene) pitch() int {
	return g.Cell + g.Gap
}
