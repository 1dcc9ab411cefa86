package capture

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// fakeView is a scroll view over a fixed content image.
type fakeView struct {
	mu      sync.Mutex
	content *image.RGBA
	bounds  tile.Size
	offset  tile.Point
	sets    []tile.Point
	calls   int

	// rasterHook runs before each Rasterize call; returning skip=true makes
	// the call return a nil image.
	rasterHook func(call int, at tile.Point) (skip bool)
	repaints   int
}

func newFakeView(contentW, contentH, viewW, viewH int) *fakeView {
	content := image.NewRGBA(image.Rect(0, 0, contentW, contentH))
	for y := 0; y < contentH; y++ {
		for x := 0; x < contentW; x++ {
			content.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xFF})
		}
	}
	return &fakeView{
		content: content,
		bounds:  tile.Size{Width: float64(viewW), Height: float64(viewH)},
	}
}

func (v *fakeView) Bounds(ctx context.Context) (tile.Size, error) {
	return v.bounds, nil
}

func (v *fakeView) ContentSize(ctx context.Context) (tile.Size, error) {
	b := v.content.Bounds()
	return tile.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, nil
}

func (v *fakeView) ContentOffset(ctx context.Context) (tile.Point, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset, nil
}

func (v *fakeView) SetContentOffset(ctx context.Context, p tile.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = p
	v.sets = append(v.sets, p)
	return nil
}

func (v *fakeView) Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error) {
	v.mu.Lock()
	v.calls++
	call, at, hook := v.calls, v.offset, v.rasterHook
	v.mu.Unlock()

	if hook != nil && hook(call, at) {
		return nil, nil
	}

	r := image.Rect(0, 0, int(visible.Width), int(visible.Height)).Add(image.Pt(int(at.X), int(at.Y)))
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.SetRGBA(x, y, v.content.RGBAAt(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out, nil
}

func (v *fakeView) offsetNow() tile.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// repaintingView adds a repaint signal to fakeView.
type repaintingView struct {
	*fakeView
}

func (v repaintingView) WaitRepaint(ctx context.Context) error {
	v.mu.Lock()
	v.repaints++
	v.mu.Unlock()
	return ctx.Err()
}
