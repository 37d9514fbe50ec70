package api

import (
	"net/http"

	"github.com/nerrad567/deskpilot/internal/browser"
)

// handleListBrowsers lists the live pooled browser processes and whether
// released browsers are kept for the next run.
func (s *Server) handleListBrowsers(w http.ResponseWriter, _ *http.Request) {
	stats := []browser.HandleStats{}
	reuse := false
	if s.browsers != nil {
		stats = append(stats, s.browsers.Stats()...)
		reuse = s.browsers.Reuse()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"browsers": stats,
		"count":    len(stats),
		"reuse":    reuse,
	})
}

// handleListScripts lists the script names found in the script directories.
func (s *Server) handleListScripts(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if s.scripts != nil {
		found, err := s.scripts.List()
		if err != nil {
			s.logger.Error("listing scripts failed", "error", err)
			writeInternalError(w, "listing scripts failed")
			return
		}
		names = append(names, found...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scripts": names,
		"count":   len(names),
	})
}
