package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/deskpilot/internal/resultcache"
)

// Cache entry formats accepted by ?format=.
const (
	formatJSON = "json"
	formatHTML = "html"
	formatCSV  = "csv"
)

// handleGetCache returns the whole result cache in its wire shape. The
// dirty flag is left alone.
func (s *Server) handleGetCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, json.RawMessage(s.cache.SerializeAndResetChanged(false)))
}

// handleGetCacheEntry returns one entry as JSON, an HTML table (the target
// of spreadsheet web queries) or CSV.
func (s *Server) handleGetCacheEntry(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	key := chi.URLParam(r, "key")

	entry := s.cache.GetCacheEntry(group, key)
	if entry == nil {
		writeNotFound(w, "cache entry not found")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatJSON
	}

	var (
		buf         bytes.Buffer
		err         error
		contentType string
	)
	switch format {
	case formatJSON:
		writeJSON(w, http.StatusOK, entry)
		return
	case formatHTML:
		contentType = "text/html; charset=utf-8"
		err = resultcache.RenderHTML(&buf, group+" / "+key, entry)
	case formatCSV:
		contentType = "text/csv; charset=utf-8"
		w.Header().Set("Content-Disposition", `attachment; filename="`+key+`.csv"`)
		err = resultcache.WriteCSV(&buf, entry)
	default:
		writeBadRequest(w, "format must be one of json, html, csv")
		return
	}

	if err != nil {
		s.logger.Error("rendering cache entry failed", "group", group, "key", key, "format", format, "error", err)
		writeInternalError(w, "failed to render cache entry")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(buf.Bytes())
}
