// Package capture drives a single shared viewport through a planned tile grid
// and collects one cropped raster per tile.
//
// Tiles are captured strictly one after another: scroll, settle, rasterize,
// validate, crop, restore. The viewport offset saved before the first tile is
// restored on every exit path, including cancellation.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Defaults
const (
	DefaultSettle         = time.Millisecond
	DefaultAttempts       = 3
	DefaultRestoreTimeout = 5 * time.Second
)

// offsetTolerance is how far, in points, the viewport may land from the
// requested offset before the raster is rejected.
const offsetTolerance = 0.5

var errNoData = errors.New("renderer returned no image")

// ErrUncomparableViewport is returned for viewport values that cannot be told
// apart from each other, such as structs holding slices. Pass a pointer.
var ErrUncomparableViewport = errors.New("capture: viewport value is not comparable")

// Option configures a Capturer.
type Option func(*Capturer)

// WithSettle sets the delay between scrolling and rasterizing a tile.
func WithSettle(d time.Duration) Option {
	return func(c *Capturer) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// WithAttempts sets how many times a tile is rasterized before giving up.
func WithAttempts(n int) Option {
	return func(c *Capturer) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRestoreTimeout bounds the final offset restore, which runs even after
// the capture context is cancelled.
func WithRestoreTimeout(d time.Duration) Option {
	return func(c *Capturer) {
		if d > 0 {
			c.restoreTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgress registers a callback invoked after each tile completes.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Capturer) {
		c.progress = fn
	}
}

// Capturer captures tile grids through a viewport.
type Capturer struct {
	settle         time.Duration
	attempts       int
	restoreTimeout time.Duration
	logger         *log.Logger
	progress       func(done, total int)

	mu     sync.Mutex
	active map[Viewport]struct{}
}

// New creates a Capturer.
func New(opts ...Option) *Capturer {
	c := &Capturer{
		settle:         DefaultSettle,
		attempts:       DefaultAttempts,
		restoreTimeout: DefaultRestoreTimeout,
		logger:         log.Default(),
		active:         make(map[Viewport]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture walks grid in row-major order and returns the captured tiles in the
// same shape. No partial result is returned on error.
func (c *Capturer) Capture(ctx context.Context, grid *tile.Grid, vp Viewport, r Renderer) (tiles [][]tile.CapturedTile, err error) {
	if grid == nil || grid.Len() == 0 {
		return nil, fmt.Errorf("capture: %w", tile.ErrEmptyInput)
	}
	if err := c.acquire(vp); err != nil {
		return nil, err
	}
	defer c.release(vp)

	origin, err := vp.ContentOffset(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: read offset: %w", err)
	}

	defer func() {
		if rerr := c.restore(ctx, vp, origin); rerr != nil {
			c.logger.Error("capture: restore offset failed", "offset", origin, "err", rerr)
			if err == nil {
				tiles, err = nil, fmt.Errorf("capture: restore offset: %w", rerr)
			}
		}
	}()

	total := grid.Len()
	out := make([][]tile.CapturedTile, grid.Rows())
	for i, row := range grid.Tiles {
		out[i] = make([]tile.CapturedTile, 0, len(row))
		for _, t := range row {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			ct, err := c.captureTile(ctx, grid.Viewport, vp, r, t)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
			out[i] = append(out[i], ct)

			if c.progress != nil {
				c.progress(t.Row*grid.Cols()+t.Col+1, total)
			}
		}
	}

	return out, nil
}

// captureTile scrolls to t, rasterizes it, and scrolls back.
func (c *Capturer) captureTile(ctx context.Context, view tile.Size, vp Viewport, r Renderer, t tile.Tile) (tile.CapturedTile, error) {
	saved, err := vp.ContentOffset(ctx)
	if err != nil {
		return tile.CapturedTile{}, fmt.Errorf("capture: read offset: %w", err)
	}

	img, attempts, err := c.rasterize(ctx, view, vp, r, t)

	if rerr := vp.SetContentOffset(ctx, saved); rerr != nil && err == nil {
		err = fmt.Errorf("capture: restore offset: %w", rerr)
	}
	if err != nil {
		return tile.CapturedTile{}, err
	}

	if t.Partial(view) {
		img, err = tile.Crop(img, t.PixelRect())
		if err != nil {
			return tile.CapturedTile{}, &tile.CaptureError{Row: t.Row, Col: t.Col, Attempts: attempts, Err: err}
		}
	}

	c.logger.Debug("capture: tile done",
		"row", t.Row, "col", t.Col, "offset", t.CaptureOffset, "attempts", attempts)

	return tile.CapturedTile{Tile: t, Image: img}, nil
}

// rasterize scrolls to the tile and returns the first raster that passes
// validation.
func (c *Capturer) rasterize(ctx context.Context, view tile.Size, vp Viewport, r Renderer, t tile.Tile) (image.Image, int, error) {
	visible := tile.Rect{Width: view.Width, Height: view.Height}
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		img, err := c.attempt(ctx, view, visible, vp, r, t)
		if err == nil {
			return img, attempt, nil
		}
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		lastErr = err
		c.logger.Debug("capture: tile rejected",
			"row", t.Row, "col", t.Col, "attempt", attempt, "err", err)
	}

	return nil, c.attempts, &tile.CaptureError{Row: t.Row, Col: t.Col, Attempts: c.attempts, Err: lastErr}
}

func (c *Capturer) attempt(ctx context.Context, view tile.Size, visible tile.Rect, vp Viewport, r Renderer, t tile.Tile) (image.Image, error) {
	if err := vp.SetContentOffset(ctx, t.CaptureOffset); err != nil {
		return nil, fmt.Errorf("set offset: %w", err)
	}
	if err := c.wait(ctx, vp, r); err != nil {
		return nil, err
	}

	img, err := r.Rasterize(ctx, visible, true)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errNoData
	}
	if got, want := img.Bounds().Size(), view.Pixels(); got != want {
		return nil, fmt.Errorf("raster is %v, want %v", got, want)
	}

	at, err := vp.ContentOffset(ctx)
	if err != nil {
		return nil, fmt.Errorf("read offset: %w", err)
	}
	if math.Abs(at.X-t.CaptureOffset.X) > offsetTolerance || math.Abs(at.Y-t.CaptureOffset.Y) > offsetTolerance {
		return nil, fmt.Errorf("viewport at %v, want %v", at, t.CaptureOffset)
	}

	return img, nil
}

// wait suspends for the settle delay, then for a repaint signal if the
// viewport or renderer provides one.
func (c *Capturer) wait(ctx context.Context, vp Viewport, r Renderer) error {
	if c.settle > 0 {
		timer := time.NewTimer(c.settle)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if rp, ok := r.(Repainter); ok {
		return rp.WaitRepaint(ctx)
	}
	if rp, ok := vp.(Repainter); ok {
		return rp.WaitRepaint(ctx)
	}
	return nil
}

// restore puts the viewport back at origin using a context that survives
// cancellation of ctx.
func (c *Capturer) restore(ctx context.Context, vp Viewport, origin tile.Point) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.restoreTimeout)
	defer cancel()
	return vp.SetContentOffset(rctx, origin)
}

// acquire marks vp as being captured. The viewport is the map key, so its
// dynamic value must be comparable all the way down.
func (c *Capturer) acquire(vp Viewport) error {
	if !reflect.ValueOf(vp).Comparable() {
		return fmt.Errorf("%w: %T", ErrUncomparableViewport, vp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.active[vp]; busy {
		return tile.ErrCaptureInProgress
	}
	c.active[vp] = struct{}{}
	return nil
}

func (c *Capturer) release(vp Viewport) {
	c.mu.Lock()
	delete(c.active, vp)
	c.mu.Unlock()
}
