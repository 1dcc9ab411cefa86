package browser

import (
	"context"
	"fmt"
	"image"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Hides scrollbars so the screenshot equals the client area, and disables
// smooth scrolling so scrollTo lands immediately.
const prepareJS = `() => {
	const style = document.createElement('style');
	style.textContent = 'html::-webkit-scrollbar, body::-webkit-scrollbar { display: none; }' +
		' html, body { scrollbar-width: none; scroll-behavior: auto !important; }';
	document.head.appendChild(style);
}`

const metricsJS = `() => {
	const el = document.scrollingElement || document.documentElement;
	return {
		width: el.clientWidth,
		height: el.clientHeight,
		scrollWidth: el.scrollWidth,
		scrollHeight: el.scrollHeight,
		x: window.scrollX,
		y: window.scrollY,
	};
}`

const scrollJS = `(x, y) => window.scrollTo({ left: x, top: y, behavior: 'instant' })`

// Page is a loaded tab usable as capture.Viewport, capture.Renderer and
// capture.Repainter.
type Page struct {
	page   *rod.Page
	url    string
	format proto.PageCaptureScreenshotFormat
	logger *log.Logger
}

type metrics struct {
	Width        float64
	Height       float64
	ScrollWidth  float64
	ScrollHeight float64
	X            float64
	Y            float64
}

func (p *Page) prepare(ctx context.Context) error {
	if _, err := p.page.Context(ctx).Eval(prepareJS); err != nil {
		return fmt.Errorf("browser: prepare page: %w", err)
	}
	return nil
}

func (p *Page) metrics(ctx context.Context) (metrics, error) {
	res, err := p.page.Context(ctx).Eval(metricsJS)
	if err != nil {
		return metrics{}, fmt.Errorf("browser: read metrics: %w", err)
	}
	v := res.Value
	return metrics{
		Width:        v.Get("width").Num(),
		Height:       v.Get("height").Num(),
		ScrollWidth:  v.Get("scrollWidth").Num(),
		ScrollHeight: v.Get("scrollHeight").Num(),
		X:            v.Get("x").Num(),
		Y:            v.Get("y").Num(),
	}, nil
}

// URL returns the loaded page URL.
func (p *Page) URL() string {
	return p.url
}

// Bounds returns the client area size.
func (p *Page) Bounds(ctx context.Context) (tile.Size, error) {
	m, err := p.metrics(ctx)
	if err != nil {
		return tile.Size{}, err
	}
	return tile.Size{Width: m.Width, Height: m.Height}, nil
}

// ContentSize returns the document's scrollable size.
func (p *Page) ContentSize(ctx context.Context) (tile.Size, error) {
	m, err := p.metrics(ctx)
	if err != nil {
		return tile.Size{}, err
	}
	return tile.Size{Width: m.ScrollWidth, Height: m.ScrollHeight}, nil
}

// ContentOffset returns the window scroll position.
func (p *Page) ContentOffset(ctx context.Context) (tile.Point, error) {
	m, err := p.metrics(ctx)
	if err != nil {
		return tile.Point{}, err
	}
	return tile.Point{X: m.X, Y: m.Y}, nil
}

// SetContentOffset scrolls the window without animation.
func (p *Page) SetContentOffset(ctx context.Context, offset tile.Point) error {
	if _, err := p.page.Context(ctx).Eval(scrollJS, offset.X, offset.Y); err != nil {
		return fmt.Errorf("browser: scroll to %v: %w", offset, err)
	}
	return nil
}

// WaitRepaint blocks until the page has painted a new frame.
func (p *Page) WaitRepaint(ctx context.Context) error {
	return p.page.Context(ctx).WaitRepaint()
}

// Rasterize screenshots the viewport and returns the visible rectangle.
// Screenshots always come from a fresh frame, which satisfies completeRedraw.
func (p *Page) Rasterize(ctx context.Context, visible tile.Rect, completeRedraw bool) (image.Image, error) {
	data, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:      p.format,
		FromSurface: true,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	img, err := tile.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("browser: decode screenshot: %w", err)
	}

	r := visible.Pixels()
	if img.Bounds().Size() == r.Size() && r.Min == (image.Point{}) {
		return img, nil
	}
	p.logger.Debug("browser: cropping screenshot", "raster", img.Bounds().Size(), "visible", r)
	return tile.Crop(img, r)
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}
