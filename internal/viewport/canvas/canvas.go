// Package canvas provides an in-memory scroll view. It paints a Scene into
// viewport-sized rasters at the current scroll offset, which makes it usable
// as both capture.Viewport and capture.Renderer without any UI toolkit.
package canvas

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Scene is scrollable content.
type Scene interface {
	// Size returns the full content size in pixels.
	Size() image.Point
	// Paint draws the content region r (content coordinates) into dst at
	// dst's origin. r has the same size as dst.
	Paint(dst *image.RGBA, r image.Rectangle)
}

// Canvas is a scroll view over a Scene.
type Canvas struct {
	mu     sync.Mutex
	scene  Scene
	bounds image.Point
	offset tile.Point
}

// New creates a canvas showing scene through a viewport of the given size.
func New(scene Scene, width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas: viewport %dx%d: %w", width, height, tile.ErrInvalidDimensions)
	}
	if s := scene.Size(); s.X <= 0 || s.Y <= 0 {
		return nil, fmt.Errorf("canvas: content %v: %w", s, tile.ErrInvalidDimensions)
	}
	return &Canvas{scene: scene, bounds: image.Pt(width, height)}, nil
}

// Bounds returns the viewport size.
func (c *Canvas) Bounds(ctx context.Context) (tile.Size, error) {
	return tile.Size{Width: float64(c.bounds.X), Height: float64(c.bounds.Y)}, nil
}

// ContentSize returns the scene size.
func (c *Canvas) ContentSize(ctx context.Context) (tile.Size, error) {
	s := c.scene.Size()
	return tile.Size{Width: float64(s.X), Height: float64(s.Y)}, nil
}

// ContentOffset returns the scroll offset.
func (c *Canvas) ContentOffset(ctx context.Context) (tile.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, nil
}

// SetContentOffset scrolls, clamping into the scrollable range the way a
// platform scroll view does.
func (c *Canvas) SetContentOffset(ctx context.Context, p tile.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.scene.Size()
	maxX := math.Max(float64(s.X-c.bounds.X), 0)
	maxY := math.Max(float64(s.Y-c.bounds.Y), 0)

	c.mu.Lock()
	c.offset = tile.Point{
		X: math.Min(math.Max(p.X, 0), maxX),
		Y: math.Min(math.Max(p.Y, 0), maxY),
	}
	c.mu.Unlock()
	return nil
}

// Rasterize paints the visible rectangle at the current offset. The canvas
// always redraws fully, so completeRedraw is ignored.
func (c *Canvas) Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	off := c.offset
	c.mu.Unlock()

	r := visible.Pixels()
	if r.Empty() {
		return nil, fmt.Errorf("canvas: empty rect %v: %w", r, tile.ErrInvalidDimensions)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	c.scene.Paint(dst, r.Add(image.Pt(int(math.Round(off.X)), int(math.Round(off.Y)))))
	return dst, nil
}

// Render paints the whole content in one pass.
func (c *Canvas) Render() *image.RGBA {
	s := c.scene.Size()
	dst := image.NewRGBA(image.Rect(0, 0, s.X, s.Y))
	c.scene.Paint(dst, dst.Bounds())
	return dst
}
