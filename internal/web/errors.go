package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request id (server-side)
//   - Mapped via core.MapError to a Portuguese message with an action
//   - Rendered as JSON for API clients, or as the panel page for the form
//
// The status code comes from statusFor, so handlers only pass the error.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/JonMunkholm/nfe-panel/internal/logging"
	"github.com/JonMunkholm/nfe-panel/internal/web/templates"
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an ingest error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrDuplicateInvoice):
		return http.StatusConflict
	case errors.Is(err, core.ErrMalformedDocument),
		errors.Is(err, core.ErrInvalidDocumentStructure),
		errors.Is(err, core.ErrValueFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyFile), errors.Is(err, core.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// logRequestError logs the technical error with request context.
func logRequestError(r *http.Request, err error, status int, code string) {
	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("request error", args...)
		return
	}
	logger.Warn("request error", args...)
}

// respondError handles error responses for API and non-page routes.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	logRequestError(r, err, statusCode, userMsg.Code)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	http.Error(w, core.FormatUserError(err), statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderPanelError re-renders the panel with the error line. The page is a
// normal 200 response so the browser shows it in place.
func (s *Server) renderPanelError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	logRequestError(r, err, statusFor(err), userMsg.Code)

	s.renderPanel(w, r, &userMsg)
}

func (s *Server) renderPanel(w http.ResponseWriter, r *http.Request, userMsg *core.UserMessage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	params := templates.PanelParams{
		Entries: s.service.Entries(),
		Stats:   s.service.Stats(),
		Error:   userMsg,
	}
	if err := templates.Panel(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render panel", "error", err)
	}
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
