package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to a stable code and safe message
//  4. The code picks the HTTP status; the technical error is logged with the
//     request ID for correlation
//  5. Client receives {"error": message, "code": code}

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/constituents/internal/core"
	"github.com/JonMunkholm/constituents/internal/logging"
)

// Web-layer codes for failures that never reach the core.
const (
	codeBadRequest   core.Code = "BAD_REQUEST"
	codeUnauthorized core.Code = "UNAUTHORIZED"
	codeUserExists   core.Code = "USER_EXISTS"
	codeFileTooLarge core.Code = "FILE_TOO_LARGE"
	codeNotCSV       core.Code = "INVALID_FILE_TYPE"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  core.Code `json:"code"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code core.Code) int {
	switch code {
	case core.CodeMissingEmail,
		core.CodeInvalidPage,
		core.CodeInvalidPageSize,
		core.CodeInvalidDateRange,
		core.CodeInvalidDateFormat,
		core.CodeInvalidInput:
		return http.StatusBadRequest
	case core.CodeNoDataFound:
		return http.StatusNotFound
	case core.CodeTooManyUploads:
		return http.StatusTooManyRequests
	case core.CodeRequestTimeout:
		return http.StatusGatewayTimeout
	case core.CodeRequestCancelled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err to a client-safe response. Expected outcomes are
// logged at info, faults at error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusFor(msg.Code)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	writeJSONStatus(w, status, ErrorResponse{Error: msg.Message, Code: msg.Code})
}

// writeError writes an error produced by the web layer itself.
func writeError(w http.ResponseWriter, status int, code core.Code, message string) {
	writeJSONStatus(w, status, ErrorResponse{Error: message, Code: code})
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
