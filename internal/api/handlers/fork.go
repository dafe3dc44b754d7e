package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/promptlane/promptlib/internal/audit"
	"github.com/promptlane/promptlib/internal/fork"
)

type ForkHandler struct {
	engine *fork.Engine
	audit  *audit.Service
}

func NewForkHandler(engine *fork.Engine, auditSvc *audit.Service) *ForkHandler {
	return &ForkHandler{engine: engine, audit: auditSvc}
}

// Fork copies a batch of prompts into the acting project. Partial success
// maps to 207 so callers inspect per-item outcomes.
func (h *ForkHandler) Fork(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := requestIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req struct {
		Items []fork.Item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}

	res := h.engine.ForkPrompts(r.Context(), projectID, userID, req.Items)

	if h.audit != nil {
		for _, p := range res.Result {
			promptID := p.ID
			err := h.audit.Log(r.Context(), audit.LogEntry{
				ProjectID:    projectID,
				UserID:       &userID,
				Action:       audit.ActionPromptFork,
				ResourceType: "prompt",
				ResourceID:   &promptID,
			})
			if err != nil {
				slog.Error("write audit log", "action", audit.ActionPromptFork, "error", err)
			}
		}
	}

	status := http.StatusOK
	switch res.Status {
	case fork.StatusPartial:
		status = http.StatusMultiStatus
	case fork.StatusFailed:
		status = http.StatusBadRequest
		if len(res.Errors) == 1 {
			status = res.Errors[0].ErrorCode
		}
	}
	writeJSON(w, status, res)
}
