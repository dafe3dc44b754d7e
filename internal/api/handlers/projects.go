package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/store"
)

type ProjectHandler struct {
	store store.Accessor
}

func NewProjectHandler(st store.Accessor) *ProjectHandler {
	return &ProjectHandler{store: st}
}

// Create provisions the isolated storage for a new project. The id comes
// from the platform's project registry, not from this service.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID uuid.UUID `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "project_id required")
		return
	}

	if err := h.store.CreateProject(r.Context(), req.ProjectID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "project already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"project_id": req.ProjectID.String()})
}
