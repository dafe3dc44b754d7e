package publish_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/publish"
	"github.com/promptlane/promptlib/internal/store/memory"
)

type fixture struct {
	mem        *memory.Accessor
	dispatcher *events.SyncDispatcher
	engine     *publish.Engine
	publicID   uuid.UUID
	projectID  uuid.UUID
	authorID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		mem:        memory.New(),
		dispatcher: events.NewSyncDispatcher(),
		publicID:   uuid.New(),
		projectID:  uuid.New(),
		authorID:   uuid.New(),
	}
	require.NoError(t, f.mem.CreateProject(ctx, f.publicID))
	require.NoError(t, f.mem.CreateProject(ctx, f.projectID))
	f.engine = publish.NewEngine(f.mem, f.dispatcher, f.publicID)
	return f
}

func (f *fixture) createPrompt(t *testing.T, tmpl string) (*models.Prompt, *models.PromptVersion) {
	t.Helper()
	ctx := context.Background()

	sess, err := f.mem.Session(ctx, f.projectID)
	require.NoError(t, err)

	p, err := prompts.CreatePrompt(ctx, sess, prompts.PromptData{
		Name: "greeting",
		Versions: []prompts.VersionData{{
			AuthorID: f.authorID,
			Context:  tmpl,
			Messages: []models.Message{{Role: "user", Content: "hi"}},
		}},
	}, f.authorID)
	require.NoError(t, err)

	latest, err := sess.GetVersionByName(ctx, p.ID, models.LatestVersionName)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
	return p, latest
}

func (f *fixture) listVersions(t *testing.T, projectID, promptID uuid.UUID) []models.PromptVersion {
	t.Helper()
	ctx := context.Background()
	sess, err := f.mem.Session(ctx, projectID)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	versions, err := sess.ListVersions(ctx, promptID)
	require.NoError(t, err)
	return versions
}

func (f *fixture) publicPrompts(t *testing.T) []models.Prompt {
	t.Helper()
	ctx := context.Background()
	sess, err := f.mem.Session(ctx, f.publicID)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	list, err := sess.ListPrompts(ctx, 100, 0)
	require.NoError(t, err)
	return list
}

func TestPublishLatestFreezesClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "say {{word}}")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)
	require.NotNil(t, res.PromptVersion)

	assert.Equal(t, models.StatusOnModeration, res.PromptVersion.Status)
	assert.NotEmpty(t, res.PromptVersion.OriginHash)
	require.NotNil(t, res.PromptVersion.Origin)
	assert.Equal(t, f.projectID, res.PromptVersion.Origin.OwnerID)

	// The private project now holds latest plus the frozen clone; latest
	// itself stays mutable and out of moderation.
	versions := f.listVersions(t, f.projectID, p.ID)
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v.IsLatest() {
			assert.Equal(t, models.StatusDraft, v.Status)
		} else {
			assert.Equal(t, models.StatusOnModeration, v.Status)
			assert.Equal(t, v.ID, res.PromptVersion.Origin.ID)
		}
	}

	// The public copy carries the shared back-reference to its source.
	pub := f.publicPrompts(t)
	require.Len(t, pub, 1)
	require.NotNil(t, pub[0].SharedID)
	assert.Equal(t, p.ID, *pub[0].SharedID)
	require.NotNil(t, pub[0].SharedOwnerID)
	assert.Equal(t, f.projectID, *pub[0].SharedOwnerID)
}

func TestPublishedContentImmuneToLatestEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "say {{word}}")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)
	publicVersionID := res.PromptVersion.ID
	cloneID := res.PromptVersion.Origin.ID

	// Keep editing latest after publication; the frozen copies must not
	// follow.
	svc := prompts.NewService(f.mem, f.dispatcher)
	edited, err := svc.UpdateLatest(ctx, f.projectID, p.ID, prompts.UpdateLatestRequest{
		Context:  "shout {{word}} loudly",
		Messages: []models.Message{{Role: "user", Content: "changed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "shout {{word}} loudly", edited.Context)

	sess, err := f.mem.Session(ctx, f.publicID)
	require.NoError(t, err)
	public, err := sess.GetVersion(ctx, publicVersionID)
	sess.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "say {{word}}", public.Context)
	require.Len(t, public.Messages, 1)
	assert.Equal(t, "hi", public.Messages[0].Content)

	sess, err = f.mem.Session(ctx, f.projectID)
	require.NoError(t, err)
	clone, err := sess.GetVersion(ctx, cloneID)
	sess.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "say {{word}}", clone.Context)
	require.Len(t, clone.Messages, 1)
	assert.Equal(t, "hi", clone.Messages[0].Content)
}

func TestPublishTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, latest := f.createPrompt(t, "hello")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)

	res = f.engine.Publish(ctx, f.projectID, latest.ID)
	require.False(t, res.OK)
	assert.Equal(t, http.StatusConflict, res.ErrorCode)

	// No second public copy appeared.
	assert.Len(t, f.publicPrompts(t), 1)
}

func TestPublishNamedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "hello")

	sess, err := f.mem.Session(ctx, f.projectID)
	require.NoError(t, err)
	data := prompts.VersionToData(latest)
	data.Name = "v1"
	named, err := prompts.BuildVersion(ctx, sess, data, p.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	res := f.engine.Publish(ctx, f.projectID, named.ID)
	require.True(t, res.OK, res.Error)

	// No clone for an immutable version: the named version itself went on
	// moderation.
	versions := f.listVersions(t, f.projectID, p.ID)
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v.ID == named.ID {
			assert.Equal(t, models.StatusOnModeration, v.Status)
		}
	}
}

func TestPublishMissingVersion(t *testing.T) {
	f := newFixture(t)
	res := f.engine.Publish(context.Background(), f.projectID, uuid.New())
	require.False(t, res.OK)
	assert.Equal(t, http.StatusNotFound, res.ErrorCode)
}

func TestPublishMissingProject(t *testing.T) {
	f := newFixture(t)
	res := f.engine.Publish(context.Background(), uuid.New(), uuid.New())
	require.False(t, res.OK)
	assert.Equal(t, http.StatusNotFound, res.ErrorCode)
}

func TestApproveSyncsPrivateAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "hello")

	var published []events.PromptPublished
	f.dispatcher.Subscribe(events.TypePromptPublished, func(_ context.Context, payload []byte) error {
		var ev events.PromptPublished
		require.NoError(t, json.Unmarshal(payload, &ev))
		published = append(published, ev)
		return nil
	})

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)

	res = f.engine.ApproveOrReject(ctx, res.PromptVersion.ID, models.StatusPublished, "")
	require.True(t, res.OK, res.Error)
	assert.Equal(t, models.StatusPublished, res.PromptVersion.Status)

	// The frozen private clone mirrors the public status.
	versions := f.listVersions(t, f.projectID, p.ID)
	for _, v := range versions {
		if !v.IsLatest() {
			assert.Equal(t, models.StatusPublished, v.Status)
		}
	}

	require.Len(t, published, 1)
	assert.Equal(t, f.projectID, published[0].SharedOwnerID)
	assert.Equal(t, p.ID, published[0].SharedID)
}

func TestRejectCarriesDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "hello")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)

	res = f.engine.ApproveOrReject(ctx, res.PromptVersion.ID, models.StatusRejected, "too vague")
	require.True(t, res.OK, res.Error)
	assert.Equal(t, models.StatusRejected, res.PromptVersion.Status)
	assert.Equal(t, "too vague", res.PromptVersion.RejectDetails)

	versions := f.listVersions(t, f.projectID, p.ID)
	for _, v := range versions {
		if !v.IsLatest() {
			assert.Equal(t, models.StatusRejected, v.Status)
			assert.Equal(t, "too vague", v.RejectDetails)
		}
	}
}

func TestReviewRejectsBadStatus(t *testing.T) {
	f := newFixture(t)
	res := f.engine.ApproveOrReject(context.Background(), uuid.New(), models.StatusDraft, "")
	require.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.ErrorCode)
}

func TestUnpublishRevertsAndFreesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, latest := f.createPrompt(t, "hello")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)
	publicVersionID := res.PromptVersion.ID

	res = f.engine.ApproveOrReject(ctx, publicVersionID, models.StatusPublished, "")
	require.True(t, res.OK, res.Error)

	res = f.engine.Unpublish(ctx, f.authorID, publicVersionID)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, models.StatusDraft, res.PromptVersion.Status)

	assert.Empty(t, f.publicPrompts(t))

	// The identity is free again: publishing the same latest version works.
	res = f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)

	// A second clone accumulated next to the first.
	versions := f.listVersions(t, f.projectID, p.ID)
	assert.Len(t, versions, 3)
}

func TestUnpublishRequiresAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, latest := f.createPrompt(t, "hello")

	res := f.engine.Publish(ctx, f.projectID, latest.ID)
	require.True(t, res.OK, res.Error)

	res = f.engine.Unpublish(ctx, uuid.New(), res.PromptVersion.ID)
	require.False(t, res.OK)
	assert.Equal(t, http.StatusForbidden, res.ErrorCode)

	assert.Len(t, f.publicPrompts(t), 1)
}

func TestOriginHashDeterministic(t *testing.T) {
	ref := models.EntityRef{OwnerID: uuid.New(), ID: uuid.New()}
	assert.Equal(t, publish.OriginHash(ref), publish.OriginHash(ref))
	assert.NotEqual(t, publish.OriginHash(ref), publish.OriginHash(models.EntityRef{OwnerID: ref.OwnerID, ID: uuid.New()}))
}
