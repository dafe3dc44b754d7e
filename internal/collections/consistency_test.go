package collections_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/collections"
	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store/memory"
)

// world wires the collection service and the consistency engine through the
// sync dispatcher, so every emitted event is handled before the service call
// returns.
type world struct {
	mem        *memory.Accessor
	dispatcher *events.SyncDispatcher
	svc        *collections.Service
	projectA   uuid.UUID
	projectB   uuid.UUID
	authorID   uuid.UUID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()

	w := &world{
		mem:        memory.New(),
		dispatcher: events.NewSyncDispatcher(),
		projectA:   uuid.New(),
		projectB:   uuid.New(),
		authorID:   uuid.New(),
	}
	require.NoError(t, w.mem.CreateProject(ctx, w.projectA))
	require.NoError(t, w.mem.CreateProject(ctx, w.projectB))

	collections.NewConsistency(w.mem).Subscribe(w.dispatcher)
	w.svc = collections.NewService(w.mem, w.dispatcher)
	return w
}

func (w *world) addPrompt(t *testing.T, projectID uuid.UUID, name string) *models.Prompt {
	t.Helper()
	ctx := context.Background()
	sess, err := w.mem.Session(ctx, projectID)
	require.NoError(t, err)

	p := &models.Prompt{ID: uuid.New(), OwnerID: projectID, Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, sess.CreatePrompt(ctx, p))
	require.NoError(t, sess.Commit(ctx))
	return p
}

func (w *world) getPrompt(t *testing.T, projectID, id uuid.UUID) *models.Prompt {
	t.Helper()
	ctx := context.Background()
	sess, err := w.mem.Session(ctx, projectID)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	p, err := sess.GetPrompt(ctx, id)
	require.NoError(t, err)
	return p
}

func (w *world) getCollection(t *testing.T, projectID, id uuid.UUID) *models.Collection {
	t.Helper()
	ctx := context.Background()
	sess, err := w.mem.Session(ctx, projectID)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	c, err := sess.GetCollection(ctx, id)
	require.NoError(t, err)
	return c
}

func (w *world) deletePrompt(t *testing.T, projectID, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	sess, err := w.mem.Session(ctx, projectID)
	require.NoError(t, err)
	require.NoError(t, sess.DeletePrompt(ctx, id))
	require.NoError(t, sess.Commit(ctx))
}

func ref(p *models.Prompt) models.EntityRef {
	return models.EntityRef{OwnerID: p.OwnerID, ID: p.ID}
}

func TestCreateWithMembersBackfillsPrompts(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	pa := w.addPrompt(t, w.projectA, "a")
	pb := w.addPrompt(t, w.projectB, "b")

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "starters",
		Prompts: []models.EntityRef{ref(pa), ref(pb)},
	})
	require.NoError(t, err)

	want := models.EntityRef{OwnerID: w.projectA, ID: c.ID}
	assert.Equal(t, []models.EntityRef{want}, w.getPrompt(t, w.projectA, pa.ID).Collections)
	assert.Equal(t, []models.EntityRef{want}, w.getPrompt(t, w.projectB, pb.ID).Collections)
}

func TestMembershipEventReplayIsIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	p := w.addPrompt(t, w.projectB, "b")
	collectionRef := models.EntityRef{OwnerID: w.projectA, ID: uuid.New()}

	ev := events.MembershipSnapshot{Collection: collectionRef, Prompts: []models.EntityRef{ref(p)}}
	require.NoError(t, w.dispatcher.Publish(ctx, events.TypeCollectionAdded, ev))
	require.NoError(t, w.dispatcher.Publish(ctx, events.TypeCollectionAdded, ev))

	got := w.getPrompt(t, w.projectB, p.ID)
	assert.Equal(t, []models.EntityRef{collectionRef}, got.Collections)

	require.NoError(t, w.dispatcher.Publish(ctx, events.TypeCollectionDeleted, ev))
	require.NoError(t, w.dispatcher.Publish(ctx, events.TypeCollectionDeleted, ev))
	assert.Empty(t, w.getPrompt(t, w.projectB, p.ID).Collections)
}

func TestUpdateMembersAppliesDelta(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	keep := w.addPrompt(t, w.projectA, "keep")
	gone := w.addPrompt(t, w.projectB, "gone")

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "mixed",
		Prompts: []models.EntityRef{ref(gone)},
	})
	require.NoError(t, err)

	_, err = w.svc.UpdateMembers(ctx, w.projectA, c.ID, collections.UpdateMembersRequest{
		AddPrompts:    []models.EntityRef{ref(keep)},
		RemovePrompts: []models.EntityRef{ref(gone)},
	})
	require.NoError(t, err)

	want := models.EntityRef{OwnerID: w.projectA, ID: c.ID}
	assert.Equal(t, []models.EntityRef{want}, w.getPrompt(t, w.projectA, keep.ID).Collections)
	assert.Empty(t, w.getPrompt(t, w.projectB, gone.ID).Collections)

	got := w.getCollection(t, w.projectA, c.ID)
	assert.Equal(t, []models.EntityRef{ref(keep)}, got.Prompts)
}

func TestDeleteCollectionClearsReverseIndex(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	p := w.addPrompt(t, w.projectB, "b")

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "doomed",
		Prompts: []models.EntityRef{ref(p)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, w.getPrompt(t, w.projectB, p.ID).Collections)

	require.NoError(t, w.svc.Delete(ctx, w.projectA, c.ID))
	assert.Empty(t, w.getPrompt(t, w.projectB, p.ID).Collections)
}

func TestMembershipEventSkipsMissingPrompts(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	p := w.addPrompt(t, w.projectB, "b")

	ev := events.MembershipSnapshot{
		Collection: models.EntityRef{OwnerID: w.projectA, ID: uuid.New()},
		Prompts: []models.EntityRef{
			ref(p),
			{OwnerID: w.projectB, ID: uuid.New()},
			{OwnerID: uuid.New(), ID: uuid.New()},
		},
	}
	require.NoError(t, w.dispatcher.Publish(ctx, events.TypeCollectionAdded, ev))
	assert.Len(t, w.getPrompt(t, w.projectB, p.ID).Collections, 1)
}

func TestPruneDropsStaleMembers(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	alive := w.addPrompt(t, w.projectB, "alive")
	dead := w.addPrompt(t, w.projectB, "dead")

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "mixed",
		Prompts: []models.EntityRef{ref(alive), ref(dead)},
	})
	require.NoError(t, err)

	w.deletePrompt(t, w.projectB, dead.ID)

	require.NoError(t, w.svc.RequestPrune(ctx, w.projectA, c.ID))

	got := w.getCollection(t, w.projectA, c.ID)
	assert.Equal(t, []models.EntityRef{ref(alive)}, got.Prompts)
}

func TestPruneTreatsMissingProjectAsStale(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	alive := w.addPrompt(t, w.projectB, "alive")
	orphan := models.EntityRef{OwnerID: uuid.New(), ID: uuid.New()}

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "mixed",
		Prompts: []models.EntityRef{ref(alive), orphan},
	})
	require.NoError(t, err)

	require.NoError(t, w.svc.RequestPrune(ctx, w.projectA, c.ID))

	got := w.getCollection(t, w.projectA, c.ID)
	assert.Equal(t, []models.EntityRef{ref(alive)}, got.Prompts)
}

func TestPromptDeletedDropsMembership(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	p := w.addPrompt(t, w.projectB, "b")

	c, err := w.svc.Create(ctx, w.projectA, w.authorID, collections.CreateRequest{
		Name:    "holder",
		Prompts: []models.EntityRef{ref(p)},
	})
	require.NoError(t, err)

	ev := events.PromptDeleted{
		Prompt:      ref(p),
		Collections: []models.EntityRef{{OwnerID: w.projectA, ID: c.ID}},
	}
	require.NoError(t, w.dispatcher.Publish(ctx, events.TypePromptDeleted, ev))

	assert.Empty(t, w.getCollection(t, w.projectA, c.ID).Prompts)
}
