package fork_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/fork"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/store/memory"
)

type forkWorld struct {
	mem      *memory.Accessor
	engine   *fork.Engine
	source   uuid.UUID
	target   uuid.UUID
	authorID uuid.UUID
}

func newForkWorld(t *testing.T) *forkWorld {
	t.Helper()
	ctx := context.Background()

	w := &forkWorld{
		mem:      memory.New(),
		source:   uuid.New(),
		target:   uuid.New(),
		authorID: uuid.New(),
	}
	require.NoError(t, w.mem.CreateProject(ctx, w.source))
	require.NoError(t, w.mem.CreateProject(ctx, w.target))
	w.engine = fork.NewEngine(w.mem)
	return w
}

func (w *forkWorld) newProject(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, w.mem.CreateProject(context.Background(), id))
	return id
}

// seedPrompt creates a prompt in the given project with a latest version and
// one named snapshot.
func (w *forkWorld) seedPrompt(t *testing.T, projectID uuid.UUID, name string) (*models.Prompt, []models.PromptVersion) {
	t.Helper()
	ctx := context.Background()
	sess, err := w.mem.Session(ctx, projectID)
	require.NoError(t, err)

	p, err := prompts.CreatePrompt(ctx, sess, prompts.PromptData{
		Name: name,
		Versions: []prompts.VersionData{{
			AuthorID: w.authorID,
			Context:  "answer about {{topic}}",
			Tags:     []models.Tag{{Name: "qa"}},
		}},
	}, w.authorID)
	require.NoError(t, err)

	latest, err := sess.GetVersionByName(ctx, p.ID, models.LatestVersionName)
	require.NoError(t, err)
	data := prompts.VersionToData(latest)
	data.Name = "v1"
	_, err = prompts.BuildVersion(ctx, sess, data, p.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	versions, err := w.listVersions(ctx, projectID, p.ID)
	require.NoError(t, err)
	return p, versions
}

func (w *forkWorld) listVersions(ctx context.Context, projectID, promptID uuid.UUID) ([]models.PromptVersion, error) {
	sess, err := w.mem.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.ListVersions(ctx, promptID)
}

func TestForkCopiesVersionsWithLineage(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, srcVersions := w.seedPrompt(t, w.source, "qa")
	forker := uuid.New()

	res := w.engine.ForkPrompts(ctx, w.target, forker, []fork.Item{
		{SourceProjectID: w.source, PromptID: src.ID},
	})
	require.Equal(t, fork.StatusAllOK, res.Status)
	require.Len(t, res.Result, 1)
	require.Empty(t, res.Errors)

	forked := res.Result[0]
	assert.Equal(t, w.target, forked.OwnerID)
	assert.Equal(t, src.Name, forked.Name)

	versions, err := w.listVersions(ctx, w.target, forked.ID)
	require.NoError(t, err)
	require.Len(t, versions, len(srcVersions))
	for _, v := range versions {
		require.NotNil(t, v.Meta.ParentEntityID)
		assert.Equal(t, src.ID, *v.Meta.ParentEntityID)
		require.NotNil(t, v.Meta.ParentProjectID)
		assert.Equal(t, w.source, *v.Meta.ParentProjectID)
		assert.Equal(t, models.StatusDraft, v.Status)

		// The copies belong to the forking user; the original author is
		// only reachable through the lineage.
		assert.Equal(t, forker, v.AuthorID)
		require.NotNil(t, v.Meta.ParentAuthorID)
		assert.Equal(t, w.authorID, *v.Meta.ParentAuthorID)
	}
}

func TestForkIsDeduplicatedPerTarget(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, _ := w.seedPrompt(t, w.source, "qa")
	items := []fork.Item{{SourceProjectID: w.source, PromptID: src.ID}}

	first := w.engine.ForkPrompts(ctx, w.target, w.authorID, items)
	require.Equal(t, fork.StatusAllOK, first.Status)
	require.Len(t, first.Result, 1)

	second := w.engine.ForkPrompts(ctx, w.target, w.authorID, items)
	require.Equal(t, fork.StatusAllOK, second.Status)
	assert.Empty(t, second.Result)
	require.Len(t, second.AlreadyExists, 1)
	assert.Equal(t, first.Result[0].ID, second.AlreadyExists[0].ID)
}

func TestForkIDsAreDeterministic(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, _ := w.seedPrompt(t, w.source, "qa")
	other := w.newProject(t)

	a := w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{{SourceProjectID: w.source, PromptID: src.ID}})
	b := w.engine.ForkPrompts(ctx, other, w.authorID, []fork.Item{{SourceProjectID: w.source, PromptID: src.ID}})
	require.Equal(t, fork.StatusAllOK, a.Status)
	require.Equal(t, fork.StatusAllOK, b.Status)

	// Same source identity derives the same import id in any target.
	assert.Equal(t, a.Result[0].ID, b.Result[0].ID)
}

func TestForkOfForkKeepsOriginalLineage(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, _ := w.seedPrompt(t, w.source, "qa")
	mid := w.newProject(t)

	res := w.engine.ForkPrompts(ctx, mid, w.authorID, []fork.Item{{SourceProjectID: w.source, PromptID: src.ID}})
	require.Equal(t, fork.StatusAllOK, res.Status)
	midPrompt := res.Result[0]

	res = w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{{SourceProjectID: mid, PromptID: midPrompt.ID}})
	require.Equal(t, fork.StatusAllOK, res.Status)
	require.Len(t, res.Result, 1)

	versions, err := w.listVersions(ctx, w.target, res.Result[0].ID)
	require.NoError(t, err)
	for _, v := range versions {
		require.NotNil(t, v.Meta.ParentEntityID)
		assert.Equal(t, src.ID, *v.Meta.ParentEntityID, "lineage must point at the original ancestor")
		assert.Equal(t, w.source, *v.Meta.ParentProjectID)
	}

	// Forking the original directly now dedups against the fork-of-fork.
	res = w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{{SourceProjectID: w.source, PromptID: src.ID}})
	require.Equal(t, fork.StatusAllOK, res.Status)
	assert.Empty(t, res.Result)
	assert.Len(t, res.AlreadyExists, 1)
}

func TestForkSelectedVersions(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, srcVersions := w.seedPrompt(t, w.source, "qa")

	var namedID uuid.UUID
	for _, v := range srcVersions {
		if v.Name == "v1" {
			namedID = v.ID
		}
	}

	res := w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{
		{SourceProjectID: w.source, PromptID: src.ID, VersionIDs: []uuid.UUID{namedID}},
	})
	require.Equal(t, fork.StatusAllOK, res.Status)

	versions, err := w.listVersions(ctx, w.target, res.Result[0].ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "v1", versions[0].Name)
}

func TestForkRejectsForeignVersionID(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, _ := w.seedPrompt(t, w.source, "qa")
	_, otherVersions := w.seedPrompt(t, w.source, "other")

	res := w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{
		{SourceProjectID: w.source, PromptID: src.ID, VersionIDs: []uuid.UUID{otherVersions[0].ID}},
	})
	require.Equal(t, fork.StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusNotFound, res.Errors[0].ErrorCode)
}

func TestForkBatchIsPartialOnMixedOutcomes(t *testing.T) {
	w := newForkWorld(t)
	ctx := context.Background()
	src, _ := w.seedPrompt(t, w.source, "qa")

	res := w.engine.ForkPrompts(ctx, w.target, w.authorID, []fork.Item{
		{SourceProjectID: w.source, PromptID: src.ID},
		{SourceProjectID: w.source, PromptID: uuid.New()},
		{SourceProjectID: uuid.New(), PromptID: uuid.New()},
	})
	require.Equal(t, fork.StatusPartial, res.Status)
	assert.Len(t, res.Result, 1)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, http.StatusNotFound, res.Errors[0].ErrorCode)
	assert.Equal(t, 2, res.Errors[1].Index)
	assert.Equal(t, http.StatusNotFound, res.Errors[1].ErrorCode)
}
