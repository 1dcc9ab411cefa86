package capture

import (
	"context"
	"image"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Viewport is the scrollable view being captured. It is shared mutable state:
// only one capture may drive it at a time. Values that are not comparable,
// such as structs holding slices, are rejected with ErrUncomparableViewport;
// pointer types always work.
type Viewport interface {
	// Bounds returns the size of the visible window.
	Bounds(ctx context.Context) (tile.Size, error)
	// ContentSize returns the size of the full scrollable content.
	ContentSize(ctx context.Context) (tile.Size, error)
	// ContentOffset returns the current scroll position.
	ContentOffset(ctx context.Context) (tile.Point, error)
	// SetContentOffset scrolls without animation. The visual update may lag.
	SetContentOffset(ctx context.Context, offset tile.Point) error
}

// Renderer rasterizes what the viewport currently shows.
type Renderer interface {
	// Rasterize returns a viewport-sized image of visible. completeRedraw asks
	// the renderer to draw content that was off screen before the last scroll.
	Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error)
}

// Repainter is implemented by viewports or renderers that can signal that the
// next redraw has completed.
type Repainter interface {
	WaitRepaint(ctx context.Context) error
}
