package server

import (
	"fmt"
	"net/http"

	"github.com/kiesman99/scrollstitch/internal/api"
	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/internal/viewport/canvas"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// Demo defaults and limits
const (
	defaultDemoContent  = 1000
	defaultDemoViewport = 300
	maxDemoContent      = 10000
)

// GetDemo captures the built-in grid canvas through the full pipeline.
func (s *Server) GetDemo(w http.ResponseWriter, r *http.Request, params api.GetDemoParams) {
	requestID := newRequestID()
	w.Header().Set("X-Request-ID", requestID)

	width := intOr(params.Width, defaultDemoContent)
	height := intOr(params.Height, defaultDemoContent)
	vw := intOr(params.ViewportWidth, defaultDemoViewport)
	vh := intOr(params.ViewportHeight, defaultDemoViewport)

	var fields []fieldError
	for _, p := range []struct {
		name  string
		value int
		max   int
	}{
		{"width", width, maxDemoContent},
		{"height", height, maxDemoContent},
		{"viewport_width", vw, maxViewportSide},
		{"viewport_height", vh, maxViewportSide},
	} {
		if p.value < 1 || p.value > p.max {
			fields = append(fields, fieldError{p.name, fmt.Sprintf("%s must be between 1 and %d", p.name, p.max)})
		}
	}

	format := tile.FormatPNG
	if params.Format != nil {
		f, err := imageFormat(*params.Format)
		if err != nil {
			fields = append(fields, fieldError{"format", err.Error()})
		}
		format = f
	}

	if len(fields) > 0 {
		s.writeValidationErrorResponse(w, fields, requestID)
		return
	}

	c, err := canvas.New(canvas.NewGridScene(width, height), vw, vh)
	if err != nil {
		s.handleCaptureError(w, err, requestID)
		return
	}

	st := stitcher.New(stitcher.Options{
		Settle:   s.cfg.Settle,
		Attempts: s.cfg.Attempts,
		Logger:   s.logger.With("request_id", requestID),
	})

	res, err := st.Capture(r.Context(), c, c)
	if err != nil {
		s.handleCaptureError(w, err, requestID)
		return
	}

	data, err := tile.EncodeBytes(res.Image, tile.EncodeOptions{Format: format})
	if err != nil {
		s.handleCaptureError(w, err, requestID)
		return
	}

	w.Header().Set("X-Tile-Grid", fmt.Sprintf("%dx%d", res.Rows, res.Cols))
	s.writeImage(w, format.ContentType(), data)
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
