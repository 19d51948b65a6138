package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"smartrouter/internal/core"
	"smartrouter/internal/routererr"
	"smartrouter/internal/scheduler"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "Internal"
	if k, ok := routererr.KindOf(err); ok {
		kind = string(k)
		switch k {
		case routererr.KindEmptyText, routererr.KindTooShort, routererr.KindTooLong,
			routererr.KindLowQuality, routererr.KindBannedPattern:
			status = http.StatusBadRequest
		case routererr.KindVectorNotFound:
			status = http.StatusNotFound
		case routererr.KindDistillQuota, routererr.KindEmbedQuota, routererr.KindBudget:
			status = http.StatusTooManyRequests
		case routererr.KindDistillTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": kind, "message": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ready, err := s.idx.IsReady(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	folderIDs, err := s.idx.GetAllFolderIDs(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := s.sched.GetSystemHealth()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vectorIndexReady": ready,
		"folderCount":      len(folderIDs),
		"schedules":        health,
		"startedAt":        s.startedAt,
	})
}

type routeRequest struct {
	BatchID  string `json:"batch_id"`
	Index    int    `json:"index"`
	RawText  string `json:"raw_text"`
	Source   string `json:"source"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidJSON", "message": err.Error()})
		return
	}

	cand, err := s.validator.Create(req.BatchID, req.Index, req.RawText, core.Source(req.Source))
	if err != nil {
		writeError(w, err)
		return
	}

	decision, err := s.router.Route(r.Context(), cand)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidateId": cand.CandidateID,
		"decision":    decision,
	})
}

func (s *Server) handleDueReviews(w http.ResponseWriter, r *http.Request) {
	opts := scheduler.DueReviewsOptions{}
	due, err := s.sched.GetDueReviews(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"due": due, "count": len(due)})
}

type answerRequest struct {
	Quality int `json:"quality"`
}

func (s *Server) handleAnswerReview(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "conceptId")
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidJSON", "message": err.Error()})
		return
	}
	sched, err := s.sched.ProcessReview(conceptID, core.ReviewQuality(req.Quality))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	ids, err := s.idx.GetAllFolderIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"folderIds": ids, "count": len(ids)})
}
