package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/api/handlers"
	"github.com/promptlane/promptlib/internal/audit"
	"github.com/promptlane/promptlib/internal/collections"
	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/project"
	"github.com/promptlane/promptlib/internal/store/memory"
)

// auditRecorder satisfies audit.DB and captures every insert.
type auditRecorder struct {
	actions []string
}

func (a *auditRecorder) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if len(args) > 2 {
		if action, ok := args[2].(string); ok {
			a.actions = append(a.actions, action)
		}
	}
	return pgconn.CommandTag{}, nil
}

func (a *auditRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type handlerWorld struct {
	mux       *chi.Mux
	svc       *collections.Service
	recorder  *auditRecorder
	projectID uuid.UUID
	userID    uuid.UUID
}

func newHandlerWorld(t *testing.T) *handlerWorld {
	t.Helper()
	ctx := context.Background()

	mem := memory.New()
	projectID := uuid.New()
	publicID := uuid.New()
	require.NoError(t, mem.CreateProject(ctx, projectID))
	require.NoError(t, mem.CreateProject(ctx, publicID))

	dispatcher := events.NewSyncDispatcher()
	recorder := &auditRecorder{}
	h := handlers.NewCollectionHandler(
		collections.NewService(mem, dispatcher),
		collections.NewPublishing(mem, dispatcher, publicID),
		audit.NewService(recorder),
	)

	mux := chi.NewRouter()
	mux.Post("/collections/{id}/publish", h.Publish)
	mux.Delete("/collections/{id}/publish", h.Unpublish)

	return &handlerWorld{
		mux:       mux,
		svc:       collections.NewService(mem, dispatcher),
		recorder:  recorder,
		projectID: projectID,
		userID:    uuid.New(),
	}
}

func (w *handlerWorld) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	ctx := project.WithProjectID(req.Context(), w.projectID)
	ctx = project.WithUserID(ctx, w.userID)
	rec := httptest.NewRecorder()
	w.mux.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestCollectionPublishWritesAuditTrail(t *testing.T) {
	w := newHandlerWorld(t)
	ctx := context.Background()

	c, err := w.svc.Create(ctx, w.projectID, w.userID, collections.CreateRequest{Name: "starters"})
	require.NoError(t, err)

	rec := w.do(t, http.MethodPost, "/collections/"+c.ID.String()+"/publish")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{audit.ActionCollectionShare}, w.recorder.actions)

	rec = w.do(t, http.MethodDelete, "/collections/"+c.ID.String()+"/publish")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{audit.ActionCollectionShare, audit.ActionCollectionUnshare}, w.recorder.actions)
}

func TestCollectionPublishFailureLeavesNoAuditRow(t *testing.T) {
	w := newHandlerWorld(t)

	rec := w.do(t, http.MethodPost, "/collections/"+uuid.NewString()+"/publish")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, w.recorder.actions)
}
