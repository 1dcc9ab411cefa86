package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

func quietCapturer(opts ...Option) *Capturer {
	base := []Option{WithSettle(0), WithLogger(log.New(io.Discard))}
	return New(append(base, opts...)...)
}

func plan(t *testing.T, v *fakeView) *tile.Grid {
	t.Helper()
	bounds, _ := v.Bounds(context.Background())
	content, _ := v.ContentSize(context.Background())
	grid, err := tile.Plan(bounds, content)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	return grid
}

func TestCapture_PartialColumn(t *testing.T) {
	v := newFakeView(250, 100, 100, 100)
	grid := plan(t, v)

	tiles, err := quietCapturer().Capture(context.Background(), grid, v, v)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if len(tiles) != 1 || len(tiles[0]) != 3 {
		t.Fatalf("shape = %d rows, want 1x3", len(tiles))
	}

	wantWidths := []int{100, 100, 50}
	contentX := []int{0, 100, 200}
	for c, ct := range tiles[0] {
		if ct.Row != 0 || ct.Col != c {
			t.Errorf("tile %d has position (%d,%d)", c, ct.Row, ct.Col)
		}
		b := ct.Image.Bounds()
		if b.Dx() != wantWidths[c] || b.Dy() != 100 {
			t.Errorf("tile %d size = %v, want %dx100", c, b.Size(), wantWidths[c])
		}
		// The tile's first column must be the content column it covers.
		got := ct.Image.(*image.RGBA).RGBAAt(b.Min.X, b.Min.Y+10)
		want := v.content.RGBAAt(contentX[c], 10)
		if got != want {
			t.Errorf("tile %d pixel = %v, want %v", c, got, want)
		}
	}
}

func TestCapture_SequentialScrollAndRestore(t *testing.T) {
	v := newFakeView(200, 200, 100, 100)
	v.offset = tile.Point{X: 30, Y: 40}
	grid := plan(t, v)

	if _, err := quietCapturer().Capture(context.Background(), grid, v, v); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	saved := tile.Point{X: 30, Y: 40}
	want := []tile.Point{
		{X: 0, Y: 0}, saved,
		{X: 100, Y: 0}, saved,
		{X: 0, Y: 100}, saved,
		{X: 100, Y: 100}, saved,
		saved, // final restore
	}
	if len(v.sets) != len(want) {
		t.Fatalf("SetContentOffset calls = %v, want %v", v.sets, want)
	}
	for i := range want {
		if v.sets[i] != want[i] {
			t.Errorf("set %d = %v, want %v", i, v.sets[i], want[i])
		}
	}
	if v.offsetNow() != saved {
		t.Errorf("final offset = %v, want %v", v.offsetNow(), saved)
	}
}

func TestCapture_NoDataFails(t *testing.T) {
	v := newFakeView(200, 200, 100, 100)
	v.offset = tile.Point{X: 5, Y: 5}
	v.rasterHook = func(call int, at tile.Point) bool {
		return at == tile.Point{X: 100, Y: 0}
	}
	grid := plan(t, v)

	tiles, err := quietCapturer(WithAttempts(2)).Capture(context.Background(), grid, v, v)
	if !errors.Is(err, tile.ErrCaptureFailed) {
		t.Fatalf("Capture() error = %v, want ErrCaptureFailed", err)
	}
	if tiles != nil {
		t.Error("Capture() returned tiles on failure")
	}

	var ce *tile.CaptureError
	if !errors.As(err, &ce) {
		t.Fatalf("error is not a CaptureError: %T", err)
	}
	if ce.Row != 0 || ce.Col != 1 || ce.Attempts != 2 {
		t.Errorf("CaptureError = %+v, want tile (0,1) after 2 attempts", ce)
	}
	if !errors.Is(err, errNoData) {
		t.Errorf("cause = %v, want errNoData", ce.Err)
	}
	if v.offsetNow() != (tile.Point{X: 5, Y: 5}) {
		t.Errorf("offset after failure = %v, want restored", v.offsetNow())
	}
}

func TestCapture_FirstTileNoData(t *testing.T) {
	v := newFakeView(100, 100, 100, 100)
	v.rasterHook = func(int, tile.Point) bool { return true }
	grid := plan(t, v)

	_, err := quietCapturer(WithAttempts(1)).Capture(context.Background(), grid, v, v)
	if !errors.Is(err, tile.ErrCaptureFailed) {
		t.Fatalf("Capture() error = %v, want ErrCaptureFailed", err)
	}
}

func TestCapture_RetryRecovers(t *testing.T) {
	v := newFakeView(200, 100, 100, 100)
	v.rasterHook = func(call int, at tile.Point) bool { return call == 1 }
	grid := plan(t, v)

	tiles, err := quietCapturer().Capture(context.Background(), grid, v, v)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(tiles[0]) != 2 {
		t.Fatalf("got %d tiles, want 2", len(tiles[0]))
	}
	if v.calls != 3 {
		t.Errorf("Rasterize calls = %d, want 3", v.calls)
	}
}

// wrongSize renders a raster that is not viewport sized.
type wrongSize struct{}

func (wrongSize) Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

func TestCapture_RejectsWrongRasterSize(t *testing.T) {
	v := newFakeView(100, 100, 100, 100)
	grid := plan(t, v)

	_, err := quietCapturer(WithAttempts(1)).Capture(context.Background(), grid, v, wrongSize{})
	if !errors.Is(err, tile.ErrCaptureFailed) {
		t.Fatalf("Capture() error = %v, want ErrCaptureFailed", err)
	}
}

func TestCapture_CancelRestoresOffset(t *testing.T) {
	v := newFakeView(200, 200, 100, 100)
	before := tile.Point{X: 12, Y: 34}
	v.offset = before

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while tile (0,1) is being rasterized.
	v.rasterHook = func(call int, at tile.Point) bool {
		if at == (tile.Point{X: 100, Y: 0}) {
			cancel()
		}
		return false
	}
	grid := plan(t, v)

	tiles, err := quietCapturer().Capture(ctx, grid, v, v)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Capture() error = %v, want context.Canceled", err)
	}
	if tiles != nil {
		t.Error("Capture() returned tiles after cancellation")
	}
	if v.offsetNow() != before {
		t.Errorf("offset = %v, want %v", v.offsetNow(), before)
	}
	if v.calls != 2 {
		t.Errorf("Rasterize calls = %d, want 2", v.calls)
	}
}

func TestCapture_SettleHonoursCancellation(t *testing.T) {
	v := newFakeView(100, 100, 100, 100)
	grid := plan(t, v)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(WithSettle(time.Hour), WithLogger(log.New(io.Discard))).Capture(ctx, grid, v, v)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Capture() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("settle delay ignored the context")
	}
	if v.offsetNow() != (tile.Point{}) {
		t.Errorf("offset = %v, want origin", v.offsetNow())
	}
}

func TestCapture_WaitsForRepaint(t *testing.T) {
	v := repaintingView{newFakeView(300, 100, 100, 100)}
	grid := plan(t, v.fakeView)

	if _, err := quietCapturer().Capture(context.Background(), grid, v, v); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if v.repaints != 3 {
		t.Errorf("repaints = %d, want 3", v.repaints)
	}
}

// blockingRenderer blocks the first Rasterize until release is closed.
type blockingRenderer struct {
	*fakeView
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRenderer) Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.fakeView.Rasterize(ctx, visible, completeRedraw)
}

func TestCapture_InProgress(t *testing.T) {
	v := newFakeView(100, 100, 100, 100)
	grid := plan(t, v)
	r := &blockingRenderer{fakeView: v, entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := quietCapturer()

	done := make(chan error, 1)
	go func() {
		_, err := c.Capture(context.Background(), grid, v, r)
		done <- err
	}()

	<-r.entered
	if _, err := c.Capture(context.Background(), grid, v, v); !errors.Is(err, tile.ErrCaptureInProgress) {
		t.Errorf("concurrent Capture() error = %v, want ErrCaptureInProgress", err)
	}

	// A different viewport is not blocked.
	other := newFakeView(100, 100, 100, 100)
	if _, err := c.Capture(context.Background(), grid, other, other); err != nil {
		t.Errorf("Capture() on other viewport error = %v", err)
	}

	close(r.release)
	if err := <-done; err != nil {
		t.Fatalf("first Capture() error = %v", err)
	}

	// The viewport is free again.
	if _, err := c.Capture(context.Background(), grid, v, v); err != nil {
		t.Errorf("Capture() after release error = %v", err)
	}
}

// taggedView is a value-type viewport that cannot be used as a map key.
type taggedView struct {
	*fakeView
	tags []string
}

// labelledView has a comparable type but may hold an uncomparable value.
type labelledView struct {
	*fakeView
	label any
}

func TestCapture_UncomparableViewport(t *testing.T) {
	tests := []struct {
		name string
		view func(v *fakeView) Viewport
	}{
		{"slice field", func(v *fakeView) Viewport { return taggedView{fakeView: v, tags: []string{"a"}} }},
		{"slice in interface field", func(v *fakeView) Viewport { return labelledView{fakeView: v, label: []int{1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFakeView(200, 100, 100, 100)
			grid := plan(t, v)

			_, err := quietCapturer().Capture(context.Background(), grid, tt.view(v), v)
			if !errors.Is(err, ErrUncomparableViewport) {
				t.Fatalf("Capture() error = %v, want ErrUncomparableViewport", err)
			}
			if len(v.sets) != 0 {
				t.Errorf("viewport scrolled %d times, want 0", len(v.sets))
			}
		})
	}

	// Comparable values work, including a value type.
	v := newFakeView(200, 100, 100, 100)
	if _, err := quietCapturer().Capture(context.Background(), plan(t, v), labelledView{fakeView: v, label: "main"}, v); err != nil {
		t.Errorf("Capture() with comparable value error = %v", err)
	}
}

func TestCapture_EmptyGrid(t *testing.T) {
	v := newFakeView(100, 100, 100, 100)
	_, err := quietCapturer().Capture(context.Background(), &tile.Grid{}, v, v)
	if !errors.Is(err, tile.ErrEmptyInput) {
		t.Errorf("Capture() error = %v, want ErrEmptyInput", err)
	}
}

func TestCapture_Progress(t *testing.T) {
	v := newFakeView(200, 200, 100, 100)
	grid := plan(t, v)

	var seen []int
	c := quietCapturer(WithProgress(func(done, total int) {
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
		seen = append(seen, done)
	}))
	if _, err := c.Capture(context.Background(), grid, v, v); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(seen) != 4 || seen[0] != 1 || seen[3] != 4 {
		t.Errorf("progress = %v, want [1 2 3 4]", seen)
	}
}
