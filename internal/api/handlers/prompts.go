package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/project"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/store"
)

type PromptHandler struct {
	svc *prompts.Service
}

func NewPromptHandler(svc *prompts.Service) *PromptHandler {
	return &PromptHandler{svc: svc}
}

// requestIdentity pulls the acting project and user out of the request
// context. The auth middleware guarantees both are set on protected routes.
func requestIdentity(r *http.Request) (projectID, userID uuid.UUID, ok bool) {
	projectID, pok := project.ProjectIDFromContext(r.Context())
	userID, uok := project.UserIDFromContext(r.Context())
	return projectID, userID, pok && uok
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	return limit, offset
}

func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req prompts.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p, err := h.svc.Create(r.Context(), projectID, userID, req)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": list, "count": len(list)})
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	p, versions, err := h.svc.Get(r.Context(), projectID, id)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompt": p, "versions": versions})
}

func (h *PromptHandler) UpdateLatest(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	var req prompts.UpdateLatestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.svc.UpdateLatest(r.Context(), projectID, id, req)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *PromptHandler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.svc.SaveVersion(r.Context(), projectID, id, req.Name)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *PromptHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version ID")
		return
	}

	if err := h.svc.DeleteVersion(r.Context(), projectID, id, versionID); err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	if err := h.svc.Delete(r.Context(), projectID, id); err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) Render(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	var req prompts.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Render(r.Context(), projectID, id, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromptHandler) Export(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	data, err := h.svc.Export(r.Context(), projectID, id)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *PromptHandler) Import(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var data prompts.PromptData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if data.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p, err := h.svc.Import(r.Context(), projectID, userID, data)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PromptHandler) Tags(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	kind := store.EntityKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = store.KindAll
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	tags, err := h.svc.Tags(r.Context(), projectID, kind)
	if err != nil {
		writeError(w, prompts.StatusCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags, "count": len(tags)})
}
