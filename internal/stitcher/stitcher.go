// Package stitcher is the top-level capture pipeline: read the viewport
// geometry, plan the tile grid, capture every tile, stitch the composite.
package stitcher

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kiesman99/scrollstitch/internal/capture"
	"github.com/kiesman99/scrollstitch/internal/stitch"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Result contains the stitched composite and how it was produced.
type Result struct {
	Image    *image.RGBA
	Width    int
	Height   int
	Viewport tile.Size
	Content  tile.Size
	Rows     int
	Cols     int
	Elapsed  time.Duration
}

// DefaultMaxPixels caps the composite at 10000x10000 pixels.
const DefaultMaxPixels = 10000 * 10000

// Options configures a Stitcher.
type Options struct {
	// Settle is the delay between scrolling and rasterizing a tile. Zero
	// means no delay; negative keeps capture.DefaultSettle.
	Settle   time.Duration
	Attempts int
	Logger   *log.Logger

	// MaxPixels limits the content area in pixels. Zero means
	// DefaultMaxPixels.
	MaxPixels int

	// Progress is called after each captured tile.
	Progress func(done, total int)
}

// Stitcher performs scroll captures.
type Stitcher struct {
	capturer  *capture.Capturer
	logger    *log.Logger
	maxPixels int
}

// New creates a new stitcher instance
func New(opts Options) *Stitcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	return &Stitcher{
		capturer: capture.New(
			capture.WithLogger(logger),
			capture.WithSettle(opts.Settle),
			capture.WithAttempts(opts.Attempts),
			capture.WithProgress(opts.Progress),
		),
		logger:    logger,
		maxPixels: maxPixels,
	}
}

// Plan reads the viewport geometry and returns the tile grid without
// scrolling anything. Rasters are whole pixels, so the viewport is planned at
// its rounded size. Content larger than MaxPixels is ErrInvalidDimensions.
func (s *Stitcher) Plan(ctx context.Context, vp capture.Viewport) (*tile.Grid, error) {
	bounds, err := vp.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("read viewport bounds: %w", err)
	}
	content, err := vp.ContentSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("read content size: %w", err)
	}

	if content.Valid() {
		px := content.Round()
		if px.Width*px.Height > float64(s.maxPixels) {
			return nil, fmt.Errorf("content %s exceeds %d pixels: %w", content, s.maxPixels, tile.ErrInvalidDimensions)
		}
	}

	return tile.Plan(bounds.Round(), content)
}

// Capture captures the full content of vp. Invalid geometry fails before the
// viewport is touched; capture failures leave the viewport at its original
// offset and return no image.
func (s *Stitcher) Capture(ctx context.Context, vp capture.Viewport, r capture.Renderer) (*Result, error) {
	start := time.Now()

	grid, err := s.Plan(ctx, vp)
	if err != nil {
		return nil, err
	}

	s.logger.Info("capturing",
		"viewport", grid.Viewport, "content", grid.Content,
		"rows", grid.Rows(), "cols", grid.Cols())

	tiles, err := s.capturer.Capture(ctx, grid, vp, r)
	if err != nil {
		return nil, err
	}

	img, err := stitch.Stitch(tiles, grid.Content)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Image:    img,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Viewport: grid.Viewport,
		Content:  grid.Content,
		Rows:     grid.Rows(),
		Cols:     grid.Cols(),
		Elapsed:  time.Since(start),
	}

	s.logger.Info("captured",
		"size", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"tiles", res.Rows*res.Cols,
		"elapsed", res.Elapsed.Round(time.Millisecond))

	return res, nil
}

// CaptureAsync runs Capture in its own goroutine and calls done exactly once
// with its outcome.
func (s *Stitcher) CaptureAsync(ctx context.Context, vp capture.Viewport, r capture.Renderer, done func(*Result, error)) {
	go func() {
		done(s.Capture(ctx, vp, r))
	}()
}

// Snapshot rasterizes only what vp currently shows.
func (s *Stitcher) Snapshot(ctx context.Context, vp capture.Viewport, r capture.Renderer) (image.Image, error) {
	bounds, err := vp.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("read viewport bounds: %w", err)
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("viewport %s: %w", bounds, tile.ErrInvalidDimensions)
	}

	img, err := r.Rasterize(ctx, tile.Rect{Width: bounds.Width, Height: bounds.Height}, true)
	if err != nil {
		return nil, &tile.CaptureError{Attempts: 1, Err: err}
	}
	if img == nil {
		return nil, &tile.CaptureError{Attempts: 1, Err: fmt.Errorf("renderer returned no image")}
	}
	return img, nil
}
