package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/audit"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/publish"
)

type PublishHandler struct {
	engine *publish.Engine
	audit  *audit.Service
}

func NewPublishHandler(engine *publish.Engine, auditSvc *audit.Service) *PublishHandler {
	return &PublishHandler{engine: engine, audit: auditSvc}
}

func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version ID")
		return
	}

	res := h.engine.Publish(r.Context(), projectID, versionID)
	if res.OK {
		h.record(r, audit.LogEntry{
			ProjectID:    projectID,
			UserID:       &userID,
			Action:       audit.ActionPromptPublish,
			ResourceType: "prompt_version",
			ResourceID:   &versionID,
		})
	}
	writeResult(w, res)
}

func (h *PublishHandler) Review(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version ID")
		return
	}

	var req struct {
		Status        models.VersionStatus `json:"status"`
		RejectDetails string               `json:"reject_details,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.engine.ApproveOrReject(r.Context(), versionID, req.Status, req.RejectDetails)
	if res.OK {
		action := audit.ActionPromptApprove
		if req.Status == models.StatusRejected {
			action = audit.ActionPromptReject
		}
		h.record(r, audit.LogEntry{
			ProjectID:    projectID,
			UserID:       &userID,
			Action:       action,
			ResourceType: "prompt_version",
			ResourceID:   &versionID,
			Details:      map[string]interface{}{"reject_details": req.RejectDetails},
		})
	}
	writeResult(w, res)
}

func (h *PublishHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version ID")
		return
	}

	res := h.engine.Unpublish(r.Context(), userID, versionID)
	if res.OK {
		h.record(r, audit.LogEntry{
			ProjectID:    projectID,
			UserID:       &userID,
			Action:       audit.ActionPromptUnpublish,
			ResourceType: "prompt_version",
			ResourceID:   &versionID,
		})
	}
	writeResult(w, res)
}

func (h *PublishHandler) record(r *http.Request, entry audit.LogEntry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		slog.Error("write audit log", "action", entry.Action, "error", err)
	}
}

func writeResult(w http.ResponseWriter, res publish.Result) {
	if !res.OK {
		writeJSON(w, res.ErrorCode, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
