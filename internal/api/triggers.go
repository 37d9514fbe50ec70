package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/deskpilot/internal/result"
)

// handlePlayActions plays the named action script and returns its Result.
func (s *Server) handlePlayActions(w http.ResponseWriter, r *http.Request) {
	s.play(w, r, "actions", s.runner.PlayActions)
}

// handlePlaySteps plays the named browser step script and returns its Result.
func (s *Server) handlePlaySteps(w http.ResponseWriter, r *http.Request) {
	s.play(w, r, "steps", s.runner.PlaySteps)
}

// play runs fn synchronously. A successful run answers 200 and a failed
// one 422, both with the serialised Result as body.
func (s *Server) play(w http.ResponseWriter, r *http.Request, kind string,
	fn func(ctx context.Context, name string) result.Result) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeBadRequest(w, "script name is required")
		return
	}

	s.logger.Info("http trigger", "kind", kind, "name", name, "request_id", middleware.GetReqID(r.Context()))

	res := result.Guard(kind+" "+name, func() result.Result {
		return fn(s.runCtx, name)
	})

	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}
