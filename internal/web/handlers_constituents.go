package web

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/constituents/internal/core"
	"github.com/JonMunkholm/constituents/internal/csvio"
	"github.com/JonMunkholm/constituents/internal/logging"
)

// csvContentTypes are the upload content types accepted as CSV. Browsers on
// Windows often label .csv files as Excel.
var csvContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
}

// batchUploadResponse is the body of a successful batch upload.
type batchUploadResponse struct {
	Message string `json:"message"`
	core.BatchUploadResult
}

// handleListConstituents returns one page of records.
func (s *Server) handleListConstituents(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "pageSize", s.cfg.Store.DefaultPageSize)

	result, err := s.store.List(page, pageSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleAddConstituent upserts a single record by email.
func (s *Server) handleAddConstituent(w http.ResponseWriter, r *http.Request) {
	var c core.Candidate
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body")
		return
	}

	rec, err := s.store.Upsert(c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, rec)
}

// handleDownloadCSV exports records created between startDate and endDate,
// both whole days inclusive.
func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	startParam := r.URL.Query().Get("startDate")
	endParam := r.URL.Query().Get("endDate")
	if startParam == "" || endParam == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "startDate and endDate are required")
		return
	}

	start, err := core.ParseDate(startParam, time.UTC)
	if err != nil {
		respondError(w, r, err)
		return
	}
	end, err := core.ParseDate(endParam, time.UTC)
	if err != nil {
		respondError(w, r, err)
		return
	}

	data, err := s.store.ExportByDateRange(r.Context(), start, end)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="constituents.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.FromContext(r.Context()).Warn("csv download interrupted", "error", err)
	}
}

// handleBatchUpload ingests a multipart CSV file (field "file") or a JSON
// array of candidates. Row failures are reported in the body, not as errors.
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	maxSize := s.cfg.Upload.MaxFileSize
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		result core.BatchUploadResult
		err    error
	)
	switch mediaType {
	case "multipart/form-data":
		rows, ok := s.readUploadedCSV(w, r, maxSize)
		if !ok {
			return
		}
		result, err = s.pipeline.ProcessRows(ctx, rows)

	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		body, readErr := io.ReadAll(r.Body)
		if readErr != nil {
			rejectBody(w, readErr)
			return
		}
		result, err = s.pipeline.ProcessJSON(ctx, body)

	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, "No file uploaded")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn("batch upload stopped",
			"processed", result.TotalProcessed,
			"successful", result.Successful,
			"failed", result.Failed,
		)
		respondError(w, r, err)
		return
	}

	writeJSON(w, batchUploadResponse{
		Message:           "File processed successfully",
		BatchUploadResult: result,
	})
}

// readUploadedCSV extracts and tokenizes the "file" part of a multipart form.
// It writes the error response itself and reports false on failure.
func (s *Server) readUploadedCSV(w http.ResponseWriter, r *http.Request, maxSize int64) ([]map[string]string, bool) {
	// Allow some room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+64<<10)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		rejectBody(w, err)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "No file uploaded")
		return nil, false
	}
	defer file.Close()

	if header.Size > maxSize {
		writeError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, "File too large")
		return nil, false
	}
	if !isCSV(header.Filename, header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, codeNotCSV, "Only CSV files are allowed")
		return nil, false
	}

	rows, err := csvio.ReadRows(file)
	if err != nil {
		logging.FromContext(r.Context()).Info("csv rejected", "file", header.Filename, "error", err)
		msg := "Could not parse CSV file"
		if errors.Is(err, csvio.ErrEmptyFile) {
			msg = "CSV file is empty"
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, msg)
		return nil, false
	}
	return rows, true
}

// rejectBody answers a request whose body could not be read.
func rejectBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, "File too large")
		return
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid upload")
}

func isCSV(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && csvContentTypes[mediaType]
}
