package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kiesman99/scrollstitch/internal/api"
	"github.com/kiesman99/scrollstitch/internal/cache"
	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Request limits
const (
	maxViewportSide = 8192
	maxSettleMs     = 10000
	maxAttempts     = 10
)

// cachedCapture is the cache entry for one encoded composite.
type cachedCapture struct {
	Grid string `json:"grid"`
	Data []byte `json:"data"`
}

// CreateCapture implements the page capture endpoint
func (s *Server) CreateCapture(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID()
	w.Header().Set("X-Request-ID", requestID)

	var req api.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", requestID, nil)
		return
	}

	if fields := validateCaptureRequest(&req); len(fields) > 0 {
		s.writeValidationErrorResponse(w, fields, requestID)
		return
	}

	if s.cfg.Browser == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "BROWSER_UNAVAILABLE",
			"Page capture is not enabled on this server", requestID, nil)
		return
	}

	opts, _ := encodeOptions(req.Output)
	ctx := r.Context()
	logger := s.logger.With("request_id", requestID)

	key := cache.Key("capture", req)
	if data, hit, err := s.cfg.Cache.Get(ctx, key); err != nil {
		logger.Warn("server: cache get", "err", err)
	} else if hit {
		var entry cachedCapture
		if err := json.Unmarshal(data, &entry); err == nil {
			w.Header().Set("X-Tile-Grid", entry.Grid)
			w.Header().Set("X-Cache", "HIT")
			s.writeImage(w, opts.Format.ContentType(), entry.Data)
			return
		}
		logger.Warn("server: dropping corrupt cache entry", "key", key)
		_ = s.cfg.Cache.Delete(ctx, key)
	}

	var width, height int
	if req.Viewport != nil {
		width, height = req.Viewport.Width, req.Viewport.Height
	}

	page, err := s.cfg.Browser.Open(ctx, req.Url, width, height)
	if err != nil {
		s.handleCaptureError(w, fmt.Errorf("%w: %w", errPageLoad, err), requestID)
		return
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("server: close page", "err", err)
		}
	}()

	st := stitcher.New(stitcher.Options{
		Settle:    s.settle(req.SettleMs),
		Attempts:  s.attempts(req.Attempts),
		Logger:    logger,
		MaxPixels: s.cfg.MaxPixels,
	})

	res, err := st.Capture(ctx, page, page)
	if err != nil {
		s.handleCaptureError(w, err, requestID)
		return
	}

	data, err := tile.EncodeBytes(res.Image, opts)
	if err != nil {
		s.handleCaptureError(w, err, requestID)
		return
	}

	grid := fmt.Sprintf("%dx%d", res.Rows, res.Cols)
	if entry, err := json.Marshal(cachedCapture{Grid: grid, Data: data}); err == nil {
		if err := s.cfg.Cache.Set(ctx, key, entry, s.cfg.CacheTTL); err != nil {
			logger.Warn("server: cache set", "err", err)
		}
	}

	w.Header().Set("X-Tile-Grid", grid)
	w.Header().Set("X-Cache", "MISS")
	s.writeImage(w, opts.Format.ContentType(), data)
}

func (s *Server) settle(ms *int) time.Duration {
	if ms != nil {
		return time.Duration(*ms) * time.Millisecond
	}
	return s.cfg.Settle
}

func (s *Server) attempts(n *int) int {
	if n != nil {
		return *n
	}
	return s.cfg.Attempts
}

// validateCaptureRequest returns one entry per invalid field.
func validateCaptureRequest(req *api.CaptureRequest) []fieldError {
	var fields []fieldError

	if req.Url == "" {
		fields = append(fields, fieldError{"url", "url is required"})
	} else if u, err := url.Parse(req.Url); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fields = append(fields, fieldError{"url", "url must be an absolute http or https URL"})
	}

	if vp := req.Viewport; vp != nil {
		if vp.Width < 1 || vp.Width > maxViewportSide {
			fields = append(fields, fieldError{"viewport.width", fmt.Sprintf("width must be between 1 and %d", maxViewportSide)})
		}
		if vp.Height < 1 || vp.Height > maxViewportSide {
			fields = append(fields, fieldError{"viewport.height", fmt.Sprintf("height must be between 1 and %d", maxViewportSide)})
		}
	}

	if req.SettleMs != nil && (*req.SettleMs < 0 || *req.SettleMs > maxSettleMs) {
		fields = append(fields, fieldError{"settle_ms", fmt.Sprintf("settle_ms must be between 0 and %d", maxSettleMs)})
	}
	if req.Attempts != nil && (*req.Attempts < 1 || *req.Attempts > maxAttempts) {
		fields = append(fields, fieldError{"attempts", fmt.Sprintf("attempts must be between 1 and %d", maxAttempts)})
	}

	if _, err := encodeOptions(req.Output); err != nil {
		fields = append(fields, fieldError{"output", err.Error()})
	}

	return fields
}

// encodeOptions converts API output options to codec options.
func encodeOptions(out *api.OutputOptions) (tile.EncodeOptions, error) {
	opts := tile.EncodeOptions{Format: tile.FormatPNG}
	if out == nil {
		return opts, nil
	}

	if out.Format != nil {
		f, err := imageFormat(*out.Format)
		if err != nil {
			return opts, err
		}
		opts.Format = f
	}
	if out.Quality != nil {
		if *out.Quality < 1 || *out.Quality > 100 {
			return opts, fmt.Errorf("quality must be between 1 and 100")
		}
		opts.Quality = *out.Quality
	}
	if out.MaxWidth != nil {
		if *out.MaxWidth < 0 {
			return opts, fmt.Errorf("max_width must not be negative")
		}
		opts.MaxWidth = *out.MaxWidth
	}
	return opts, nil
}

func imageFormat(f api.ImageFormat) (tile.Format, error) {
	switch f {
	case api.Png:
		return tile.FormatPNG, nil
	case api.Jpeg:
		return tile.FormatJPEG, nil
	case api.Tiff:
		return tile.FormatTIFF, nil
	}
	return "", fmt.Errorf("unsupported format: %s", f)
}
