package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/likes"
	"github.com/promptlane/promptlib/internal/project"
)

type LikeHandler struct {
	svc *likes.Service
}

func NewLikeHandler(svc *likes.Service) *LikeHandler {
	return &LikeHandler{svc: svc}
}

func (h *LikeHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := project.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	promptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	added, err := h.svc.Like(r.Context(), promptID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := h.svc.Count(r.Context(), promptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": true, "changed": added, "count": count})
}

func (h *LikeHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID, ok := project.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	promptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	removed, err := h.svc.Unlike(r.Context(), promptID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := h.svc.Count(r.Context(), promptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": false, "changed": removed, "count": count})
}

func (h *LikeHandler) Count(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	count, err := h.svc.Count(r.Context(), promptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"count": count}
	if userID, ok := project.UserIDFromContext(r.Context()); ok {
		liked, err := h.svc.Liked(r.Context(), promptID, userID)
		if err == nil {
			resp["liked"] = liked
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
