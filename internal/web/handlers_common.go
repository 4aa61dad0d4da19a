// Package web provides HTTP handlers for the constituent API.
// This file contains shared utilities used across handlers.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// maxJSONBody caps JSON request bodies other than batch uploads.
const maxJSONBody = 1 << 20

// parseIntParam parses an integer query parameter. Missing or non-numeric
// values yield defaultVal; numeric values are returned as-is so the core can
// reject out-of-range ones.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// decodeJSON reads a JSON body of at most maxJSONBody bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"records": s.store.Count(),
		"batches": s.limiter.Status(),
	})
}
