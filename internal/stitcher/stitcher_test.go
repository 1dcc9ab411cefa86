package stitcher

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kiesman99/scrollstitch/internal/viewport/canvas"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

func quietStitcher() *Stitcher {
	return New(Options{Settle: time.Microsecond, Logger: log.New(io.Discard)})
}

func newCanvas(t *testing.T, contentW, contentH, viewW, viewH int) *canvas.Canvas {
	t.Helper()
	c, err := canvas.New(canvas.NewGridScene(contentW, contentH), viewW, viewH)
	if err != nil {
		t.Fatalf("canvas.New() error = %v", err)
	}
	return c
}

func samePixels(t *testing.T, got, want *image.RGBA) {
	t.Helper()
	if got.Bounds().Size() != want.Bounds().Size() {
		t.Fatalf("size = %v, want %v", got.Bounds().Size(), want.Bounds().Size())
	}
	b := want.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g, w := got.RGBAAt(x, y), want.RGBAAt(x, y); g != w {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestStitcher_CaptureMatchesRender(t *testing.T) {
	tests := []struct {
		name     string
		contentW int
		contentH int
		viewW    int
		viewH    int
		wantRows int
		wantCols int
	}{
		{"partial last column", 250, 100, 100, 100, 1, 3},
		{"exact multiple", 200, 200, 100, 100, 2, 2},
		{"single tile", 100, 100, 100, 100, 1, 1},
		{"partial both axes", 230, 170, 100, 80, 3, 3},
		{"tall page", 120, 1000, 120, 300, 4, 1},
		{"content smaller than viewport", 60, 40, 100, 100, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCanvas(t, tt.contentW, tt.contentH, tt.viewW, tt.viewH)

			res, err := quietStitcher().Capture(context.Background(), c, c)
			if err != nil {
				t.Fatalf("Capture() error = %v", err)
			}
			if res.Rows != tt.wantRows || res.Cols != tt.wantCols {
				t.Errorf("grid = %dx%d, want %dx%d", res.Rows, res.Cols, tt.wantRows, tt.wantCols)
			}
			if res.Width != tt.contentW || res.Height != tt.contentH {
				t.Errorf("result size = %dx%d, want %dx%d", res.Width, res.Height, tt.contentW, tt.contentH)
			}
			samePixels(t, res.Image, c.Render())
		})
	}
}

func TestStitcher_CaptureRestoresOffset(t *testing.T) {
	c := newCanvas(t, 400, 400, 100, 100)
	ctx := context.Background()
	start := tile.Point{X: 40, Y: 70}
	if err := c.SetContentOffset(ctx, start); err != nil {
		t.Fatalf("SetContentOffset() error = %v", err)
	}

	if _, err := quietStitcher().Capture(ctx, c, c); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	got, _ := c.ContentOffset(ctx)
	if got != start {
		t.Errorf("offset after capture = %v, want %v", got, start)
	}
}

type zeroViewport struct {
	*canvas.Canvas
	scrolled bool
}

func (z *zeroViewport) Bounds(ctx context.Context) (tile.Size, error) {
	return tile.Size{Width: 0, Height: 100}, nil
}

func (z *zeroViewport) SetContentOffset(ctx context.Context, p tile.Point) error {
	z.scrolled = true
	return z.Canvas.SetContentOffset(ctx, p)
}

func TestStitcher_InvalidDimensionsBeforeScroll(t *testing.T) {
	vp := &zeroViewport{Canvas: newCanvas(t, 200, 200, 100, 100)}

	_, err := quietStitcher().Capture(context.Background(), vp, vp)
	if !errors.Is(err, tile.ErrInvalidDimensions) {
		t.Fatalf("Capture() error = %v, want ErrInvalidDimensions", err)
	}
	if vp.scrolled {
		t.Error("viewport was scrolled despite invalid dimensions")
	}
}

func TestStitcher_Plan(t *testing.T) {
	c := newCanvas(t, 250, 100, 100, 100)

	grid, err := quietStitcher().Plan(context.Background(), c)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if grid.Rows() != 1 || grid.Cols() != 3 {
		t.Errorf("grid = %dx%d, want 1x3", grid.Rows(), grid.Cols())
	}
	if got := grid.Tiles[0][2].SourceRect.Width; got != 50 {
		t.Errorf("last column width = %v, want 50", got)
	}
}

func TestStitcher_CaptureAsync(t *testing.T) {
	c := newCanvas(t, 250, 180, 100, 100)

	calls := make(chan struct{}, 2)
	var got *Result
	var gotErr error
	quietStitcher().CaptureAsync(context.Background(), c, c, func(res *Result, err error) {
		got, gotErr = res, err
		calls <- struct{}{}
	})

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("done was never called")
	}
	if gotErr != nil {
		t.Fatalf("CaptureAsync() error = %v", gotErr)
	}
	samePixels(t, got.Image, c.Render())

	select {
	case <-calls:
		t.Error("done called more than once")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStitcher_CaptureCancelled(t *testing.T) {
	c := newCanvas(t, 300, 300, 100, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := quietStitcher().Capture(ctx, c, c)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Capture() error = %v, want Canceled", err)
	}
	if res != nil {
		t.Error("cancelled capture returned a result")
	}
}

func TestStitcher_Snapshot(t *testing.T) {
	c := newCanvas(t, 300, 300, 100, 80)
	ctx := context.Background()
	if err := c.SetContentOffset(ctx, tile.Point{X: 60, Y: 110}); err != nil {
		t.Fatalf("SetContentOffset() error = %v", err)
	}

	img, err := quietStitcher().Snapshot(ctx, c, c)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if img.Bounds().Size() != image.Pt(100, 80) {
		t.Fatalf("snapshot size = %v, want 100x80", img.Bounds().Size())
	}

	full := c.Render()
	rgba := img.(*image.RGBA)
	for _, p := range []image.Point{{0, 0}, {50, 40}, {99, 79}} {
		if got, want := rgba.RGBAAt(p.X, p.Y), full.RGBAAt(60+p.X, 110+p.Y); got != want {
			t.Errorf("snapshot pixel %v = %v, want %v", p, got, want)
		}
	}

	off, _ := c.ContentOffset(ctx)
	if off != (tile.Point{X: 60, Y: 110}) {
		t.Errorf("Snapshot moved the viewport to %v", off)
	}
}

// fractionalViewport reports a content size that ends on a fraction of a
// pixel. The scene behind it is painted at the rounded size.
type fractionalViewport struct {
	*canvas.Canvas
	content tile.Size
}

func (f *fractionalViewport) ContentSize(ctx context.Context) (tile.Size, error) {
	return f.content, nil
}

func TestStitcher_CaptureFractionalContent(t *testing.T) {
	tests := []struct {
		name    string
		content tile.Size
		want    image.Point
	}{
		{"half pixel width", tile.Size{Width: 250.5, Height: 100}, image.Pt(251, 100)},
		{"rounds down", tile.Size{Width: 250.4, Height: 100}, image.Pt(250, 100)},
		{"rounds up", tile.Size{Width: 250.8, Height: 100}, image.Pt(251, 100)},
		{"half pixel both axes", tile.Size{Width: 250.5, Height: 180.5}, image.Pt(251, 181)},
		{"smaller than viewport", tile.Size{Width: 60.5, Height: 40.5}, image.Pt(61, 41)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := &fractionalViewport{
				Canvas:  newCanvas(t, tt.want.X, tt.want.Y, 100, 100),
				content: tt.content,
			}

			res, err := quietStitcher().Capture(context.Background(), vp, vp)
			if err != nil {
				t.Fatalf("Capture() error = %v", err)
			}
			if got := res.Image.Bounds().Size(); got != tt.want {
				t.Fatalf("result size = %v, want %v", got, tt.want)
			}
			samePixels(t, res.Image, vp.Render())
		})
	}
}

// scrollTracker records whether the viewport was ever scrolled.
type scrollTracker struct {
	*canvas.Canvas
	scrolled bool
}

func (s *scrollTracker) SetContentOffset(ctx context.Context, p tile.Point) error {
	s.scrolled = true
	return s.Canvas.SetContentOffset(ctx, p)
}

func TestStitcher_RejectsOversizedContent(t *testing.T) {
	vp := &scrollTracker{Canvas: newCanvas(t, 400, 400, 100, 100)}

	st := New(Options{Settle: time.Microsecond, Logger: log.New(io.Discard), MaxPixels: 400*400 - 1})
	_, err := st.Capture(context.Background(), vp, vp)
	if !errors.Is(err, tile.ErrInvalidDimensions) {
		t.Fatalf("Capture() error = %v, want ErrInvalidDimensions", err)
	}
	if vp.scrolled {
		t.Error("viewport was scrolled despite oversized content")
	}

	st = New(Options{Settle: time.Microsecond, Logger: log.New(io.Discard), MaxPixels: 400 * 400})
	if _, err := st.Capture(context.Background(), vp, vp); err != nil {
		t.Fatalf("Capture() at the limit error = %v", err)
	}
}

func TestStitcher_DefaultMaxPixels(t *testing.T) {
	vp := &fractionalViewport{
		Canvas:  newCanvas(t, 100, 100, 100, 100),
		content: tile.Size{Width: 1280, Height: 1_000_000},
	}

	_, err := quietStitcher().Plan(context.Background(), vp)
	if !errors.Is(err, tile.ErrInvalidDimensions) {
		t.Fatalf("Plan() error = %v, want ErrInvalidDimensions", err)
	}
}

func TestStitcher_ZeroSettle(t *testing.T) {
	// 1600 single-pixel tiles take well over a second at the 1ms default.
	c := newCanvas(t, 40, 40, 1, 1)
	st := New(Options{Settle: 0, Logger: log.New(io.Discard)})

	res, err := st.Capture(context.Background(), c, c)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if res.Elapsed >= 800*time.Millisecond {
		t.Errorf("Capture() took %v with zero settle", res.Elapsed)
	}
}
