package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/audit"
	"github.com/promptlane/promptlib/internal/collections"
	"github.com/promptlane/promptlib/internal/prompts"
)

type CollectionHandler struct {
	svc        *collections.Service
	publishing *collections.Publishing
	audit      *audit.Service
}

func NewCollectionHandler(svc *collections.Service, publishing *collections.Publishing, auditSvc *audit.Service) *CollectionHandler {
	return &CollectionHandler{svc: svc, publishing: publishing, audit: auditSvc}
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req collections.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	c, err := h.svc.Create(r.Context(), projectID, userID, req)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	limit, offset := pageParams(r)

	list, err := h.svc.List(r.Context(), projectID, limit, offset)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": list, "count": len(list)})
}

func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	c, err := h.svc.Get(r.Context(), projectID, id)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CollectionHandler) UpdateMembers(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	var req collections.UpdateMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.UpdateMembers(r.Context(), projectID, id, req)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	if err := h.svc.Delete(r.Context(), projectID, id); err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionHandler) Prune(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	if err := h.svc.RequestPrune(r.Context(), projectID, id); err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "prune requested"})
}

func (h *CollectionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	res := h.publishing.Publish(r.Context(), projectID, id)
	if res.OK {
		h.record(r, audit.LogEntry{
			ProjectID:    projectID,
			UserID:       &userID,
			Action:       audit.ActionCollectionShare,
			ResourceType: "collection",
			ResourceID:   &id,
		})
	}
	writePublishResult(w, res)
}

func (h *CollectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	writePublishResult(w, h.publishing.Reject(r.Context(), userID, projectID, id))
}

func (h *CollectionHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection ID")
		return
	}

	res := h.publishing.Unpublish(r.Context(), userID, projectID, id)
	if res.OK {
		h.record(r, audit.LogEntry{
			ProjectID:    projectID,
			UserID:       &userID,
			Action:       audit.ActionCollectionUnshare,
			ResourceType: "collection",
			ResourceID:   &id,
		})
	}
	writePublishResult(w, res)
}

func (h *CollectionHandler) record(r *http.Request, entry audit.LogEntry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		slog.Error("write audit log", "action", entry.Action, "error", err)
	}
}

func writePublishResult(w http.ResponseWriter, res collections.PublishResult) {
	if !res.OK {
		writeJSON(w, res.ErrorCode, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
