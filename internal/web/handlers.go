package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/JonMunkholm/nfe-panel/internal/export"
	"github.com/JonMunkholm/nfe-panel/internal/logging"
)

// multipartOverhead is added to the file size limit to leave room for the
// multipart boundaries and headers around the file part.
const multipartOverhead = 64 * 1024

// handleIndex renders the panel.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPanel(w, r, nil)
}

// handleFormUpload ingests a file posted by the drop zone form. Success
// redirects back to the panel; failure re-renders it with the message.
func (s *Server) handleFormUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ingestRequest(w, r); err != nil {
		s.renderPanelError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleAPIUpload ingests a file and answers with the stamped record.
func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.ingestRequest(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ingestRequest reads the "file" part of a multipart request and hands it to
// the service along with the client's address and user agent.
func (s *Server) ingestRequest(w http.ResponseWriter, r *http.Request) (core.IngestResult, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.IngestResult{}, formFileError(err, maxSize)
	}
	defer file.Close()

	ctx := core.ContextWithRequestMeta(r.Context(), core.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	logging.FromContext(ctx).Debug("upload received", "file", header.Filename, "size", header.Size)

	return s.service.Ingest(ctx, header.Filename, file)
}

// formFileError classifies a failure to get the file part.
func formFileError(err error, maxSize int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
	}
	return fmt.Errorf("%w: %v", core.ErrNoFile, err)
}

// EntriesResponse is the body of GET /api/entries.
type EntriesResponse struct {
	Entries []core.Record    `json:"entries"`
	Stats   core.LedgerStats `json:"stats"`
}

// handleEntries returns the ledger snapshot, newest first.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EntriesResponse{
		Entries: s.service.Entries(),
		Stats:   s.service.Stats(),
	})
}

// handleExportXLSX downloads the ledger as a spreadsheet.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "nfe-entradas.xlsx", export.ContentTypeXLSX, export.WriteXLSX)
}

// handleExportCSV downloads the ledger as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "nfe-entradas.csv", export.ContentTypeCSV, export.WriteCSV)
}

// serveExport renders into a buffer first so a failure can still produce an
// error response.
func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, fileName, contentType string,
	write func(io.Writer, []core.Record) error) {
	var buf bytes.Buffer
	if err := write(&buf, s.service.Entries()); err != nil {
		respondError(w, r, fmt.Errorf("export %s: %w", fileName, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "file", fileName, "error", err)
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Entries int                      `json:"entries"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth reports liveness and current load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Entries: s.service.Stats().Count,
		Uploads: s.service.UploadLimiterStatus(),
	})
}
