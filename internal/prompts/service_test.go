package prompts_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/store"
	"github.com/promptlane/promptlib/internal/store/memory"
)

type serviceWorld struct {
	mem        *memory.Accessor
	svc        *prompts.Service
	dispatcher *events.SyncDispatcher
	projectID  uuid.UUID
}

func newService(t *testing.T) *serviceWorld {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	projectID := uuid.New()
	require.NoError(t, mem.CreateProject(ctx, projectID))
	dispatcher := events.NewSyncDispatcher()
	return &serviceWorld{
		mem:        mem,
		svc:        prompts.NewService(mem, dispatcher),
		dispatcher: dispatcher,
		projectID:  projectID,
	}
}

func TestServiceSaveVersionSnapshotsLatest(t *testing.T) {
	w := newService(t)
	ctx := context.Background()
	authorID := uuid.New()

	p, err := w.svc.Create(ctx, w.projectID, authorID, prompts.CreateRequest{
		Name:    "greeting",
		Version: prompts.VersionData{AuthorID: authorID, Context: "hi {{name}}"},
	})
	require.NoError(t, err)

	v, err := w.svc.SaveVersion(ctx, w.projectID, p.ID, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Name)
	assert.Equal(t, "hi {{name}}", v.Context)

	// Same name again collides with the snapshot.
	_, err = w.svc.SaveVersion(ctx, w.projectID, p.ID, "v1")
	require.ErrorIs(t, err, store.ErrConflict)

	// Reserved name is refused outright.
	_, err = w.svc.SaveVersion(ctx, w.projectID, p.ID, models.LatestVersionName)
	require.Error(t, err)
}

func TestServiceUpdateLatestAddsImplicitVariables(t *testing.T) {
	w := newService(t)
	ctx := context.Background()
	authorID := uuid.New()

	p, err := w.svc.Create(ctx, w.projectID, authorID, prompts.CreateRequest{
		Name:    "greeting",
		Version: prompts.VersionData{AuthorID: authorID},
	})
	require.NoError(t, err)

	v, err := w.svc.UpdateLatest(ctx, w.projectID, p.ID, prompts.UpdateLatestRequest{Context: "try {{x}}"})
	require.NoError(t, err)
	assert.Equal(t, "try {{x}}", v.Context)
	require.Len(t, v.Variables, 1)
	assert.Equal(t, "x", v.Variables[0].Name)
}

func TestServiceUpdateLatestRefusesModeration(t *testing.T) {
	w := newService(t)
	ctx := context.Background()
	authorID := uuid.New()

	p, err := w.svc.Create(ctx, w.projectID, authorID, prompts.CreateRequest{
		Name:    "greeting",
		Version: prompts.VersionData{AuthorID: authorID},
	})
	require.NoError(t, err)

	// Park the latest version on moderation, as a publication would.
	sess, err := w.mem.Session(ctx, w.projectID)
	require.NoError(t, err)
	latest, err := sess.GetVersionByName(ctx, p.ID, models.LatestVersionName)
	require.NoError(t, err)
	latest.Status = models.StatusOnModeration
	require.NoError(t, sess.UpdateVersion(ctx, latest))
	require.NoError(t, sess.Commit(ctx))

	_, err = w.svc.UpdateLatest(ctx, w.projectID, p.ID, prompts.UpdateLatestRequest{Context: "edit"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestServiceDeleteEmitsPromptDeleted(t *testing.T) {
	w := newService(t)
	ctx := context.Background()
	authorID := uuid.New()

	var got []events.PromptDeleted
	w.dispatcher.Subscribe(events.TypePromptDeleted, func(_ context.Context, payload []byte) error {
		var ev events.PromptDeleted
		require.NoError(t, json.Unmarshal(payload, &ev))
		got = append(got, ev)
		return nil
	})

	p, err := w.svc.Create(ctx, w.projectID, authorID, prompts.CreateRequest{
		Name:    "member",
		Version: prompts.VersionData{AuthorID: authorID},
	})
	require.NoError(t, err)

	// A membershipless delete stays silent.
	require.NoError(t, w.svc.Delete(ctx, w.projectID, p.ID))
	assert.Empty(t, got)

	// One holding memberships announces them.
	p2, err := w.svc.Create(ctx, w.projectID, authorID, prompts.CreateRequest{
		Name:    "member2",
		Version: prompts.VersionData{AuthorID: authorID},
	})
	require.NoError(t, err)

	collectionRef := models.EntityRef{OwnerID: uuid.New(), ID: uuid.New()}
	sess, err := w.mem.Session(ctx, w.projectID)
	require.NoError(t, err)
	stored, err := sess.GetPrompt(ctx, p2.ID)
	require.NoError(t, err)
	stored.Collections = models.AppendRef(stored.Collections, collectionRef)
	require.NoError(t, sess.UpdatePrompt(ctx, stored))
	require.NoError(t, sess.Commit(ctx))

	require.NoError(t, w.svc.Delete(ctx, w.projectID, p2.ID))
	require.Len(t, got, 1)
	assert.Equal(t, []models.EntityRef{collectionRef}, got[0].Collections)
	assert.Equal(t, p2.ID, got[0].Prompt.ID)
}

func TestServiceExportImportRoundTrip(t *testing.T) {
	w := newService(t)
	svc, projectID := w.svc, w.projectID
	ctx := context.Background()
	authorID := uuid.New()

	p, err := svc.Create(ctx, projectID, authorID, prompts.CreateRequest{
		Name: "greeting",
		Version: prompts.VersionData{
			AuthorID: authorID,
			Context:  "hi {{name}}",
			Messages: []models.Message{{Role: "system", Content: "be nice"}},
			Tags:     []models.Tag{{Name: "qa"}},
		},
	})
	require.NoError(t, err)
	_, err = svc.SaveVersion(ctx, projectID, p.ID, "v1")
	require.NoError(t, err)

	data, err := svc.Export(ctx, projectID, p.ID)
	require.NoError(t, err)
	require.Len(t, data.Versions, 2)

	imported, err := svc.Import(ctx, projectID, authorID, *data)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, imported.ID)

	_, versions, err := svc.Get(ctx, projectID, imported.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	names := []string{versions[0].Name, versions[1].Name}
	assert.Contains(t, names, models.LatestVersionName)
	assert.Contains(t, names, "v1")
}

func TestServiceRenderUsesNamedVersion(t *testing.T) {
	w := newService(t)
	svc, projectID := w.svc, w.projectID
	ctx := context.Background()
	authorID := uuid.New()

	p, err := svc.Create(ctx, projectID, authorID, prompts.CreateRequest{
		Name: "greeting",
		Version: prompts.VersionData{
			AuthorID: authorID,
			Context:  "hi {{name}}",
			Messages: []models.Message{{Role: "user", Content: "greet {{name}}"}},
		},
	})
	require.NoError(t, err)

	out, err := svc.Render(ctx, projectID, p.ID, prompts.RenderRequest{
		Variables: map[string]string{"name": "ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi ada", out.Context)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "greet ada", out.Messages[0].Content)

	_, err = svc.Render(ctx, projectID, p.ID, prompts.RenderRequest{VersionName: "nope"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceDeleteVersionGuards(t *testing.T) {
	w := newService(t)
	svc, projectID := w.svc, w.projectID
	ctx := context.Background()
	authorID := uuid.New()

	p, err := svc.Create(ctx, projectID, authorID, prompts.CreateRequest{
		Name:    "greeting",
		Version: prompts.VersionData{AuthorID: authorID},
	})
	require.NoError(t, err)
	v, err := svc.SaveVersion(ctx, projectID, p.ID, "v1")
	require.NoError(t, err)

	_, versions, err := svc.Get(ctx, projectID, p.ID)
	require.NoError(t, err)
	var latestID uuid.UUID
	for _, ver := range versions {
		if ver.IsLatest() {
			latestID = ver.ID
		}
	}

	require.ErrorIs(t, svc.DeleteVersion(ctx, projectID, p.ID, latestID), store.ErrConflict)
	require.NoError(t, svc.DeleteVersion(ctx, projectID, p.ID, v.ID))
}
