// Package browser drives a headless Chrome tab as a scrollable viewport:
// the page's scroll position is the content offset, the document's scroll
// size is the content size, and CDP screenshots are the rasterizer.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	RemoteURL string

	// Width and Height set the viewport size of every page. Default: 1280x800.
	Width  int
	Height int

	// Stealth hides common automation fingerprints.
	Stealth bool

	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	// Format is the screenshot encoding: png (default), jpeg or webp.
	Format string

	Logger *log.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Format == "" {
		c.Format = "png"
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// screenshotFormat maps a format name to its CDP value.
func screenshotFormat(name string) (proto.PageCaptureScreenshotFormat, error) {
	switch name {
	case "png":
		return proto.PageCaptureScreenshotFormatPng, nil
	case "jpeg", "jpg":
		return proto.PageCaptureScreenshotFormatJpeg, nil
	case "webp":
		return proto.PageCaptureScreenshotFormatWebp, nil
	}
	return "", fmt.Errorf("browser: unknown screenshot format %q", name)
}

// Manager owns the Chrome process (or remote connection) and opens pages.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to RemoteURL.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	if _, err := screenshotFormat(m.cfg.Format); err != nil {
		return err
	}

	logger := m.cfg.Logger
	wsURL := m.cfg.RemoteURL

	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("hide-scrollbars")

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		logger.Debug("browser: launched local chrome", "url", wsURL)
	} else {
		logger.Debug("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return nil
}

// Open creates a tab, sizes its viewport, and loads pageURL. A zero width or
// height falls back to the configured size.
func (m *Manager) Open(ctx context.Context, pageURL string, width, height int) (*Page, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if width <= 0 {
		width = m.cfg.Width
	}
	if height <= 0 {
		height = m.cfg.Height
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "err", err)
	}

	format, _ := screenshotFormat(m.cfg.Format)
	p := &Page{page: page, url: pageURL, format: format, logger: m.cfg.Logger}
	if err := p.prepare(ctx); err != nil {
		page.Close()
		return nil, err
	}
	return p, nil
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "err", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
