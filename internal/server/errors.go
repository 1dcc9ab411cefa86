package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/kiesman99/scrollstitch/internal/api"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// statusClientClosedRequest is the non-standard status for a request whose
// client went away before the response was ready.
const statusClientClosedRequest = 499

// errPageLoad marks failures to open or navigate the requested page.
var errPageLoad = errors.New("page load failed")

type fieldError struct {
	Field   string
	Message string
}

// handleCaptureError maps pipeline errors to HTTP responses.
func (s *Server) handleCaptureError(w http.ResponseWriter, err error, requestID string) {
	var captureErr *tile.CaptureError

	switch {
	case errors.As(err, &captureErr):
		s.writeJSON(w, http.StatusBadGateway, api.CaptureErrorResponse{
			Error:     api.CAPTUREFAILED,
			Message:   captureErr.Error(),
			RequestId: &requestID,
			Row:       captureErr.Row,
			Col:       captureErr.Col,
			Attempts:  captureErr.Attempts,
		})

	case errors.Is(err, tile.ErrInvalidDimensions):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "INVALID_DIMENSIONS",
			err.Error(), requestID, nil)

	case errors.Is(err, tile.ErrCaptureInProgress):
		s.writeErrorResponse(w, http.StatusConflict, "CAPTURE_IN_PROGRESS",
			"A capture of this viewport is already running", requestID, nil)

	case errors.Is(err, errPageLoad):
		s.writeErrorResponse(w, http.StatusBadGateway, "PAGE_LOAD_FAILED",
			err.Error(), requestID, nil)

	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "CAPTURE_TIMEOUT",
			"Capture timed out", requestID, nil)

	case errors.Is(err, context.Canceled):
		s.logger.Debug("server: capture cancelled", "request_id", requestID, "err", err)
		s.writeErrorResponse(w, statusClientClosedRequest, "CAPTURE_CANCELLED",
			"Capture cancelled", requestID, nil)

	default:
		s.logger.Error("server: capture failed", "request_id", requestID, "err", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID, nil)
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message, requestID string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: &requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a 400 listing every invalid field.
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, fields []fieldError, requestID string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   "Request validation failed",
		RequestId: &requestID,
	}
	for _, f := range fields {
		response.ValidationErrors = append(response.ValidationErrors, struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			Field:   f.Field,
			Message: f.Message,
		})
	}
	if len(fields) == 1 {
		response.Message = fields[0].Message
	}
	s.writeJSON(w, http.StatusBadRequest, response)
}
