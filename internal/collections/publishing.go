// Package collections implements the collection-level publish workflow and
// the event-driven engine that keeps the denormalized membership lists
// consistent across project schemas.
package collections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

// PublishResult mirrors publish.Result at collection granularity.
type PublishResult struct {
	OK            bool               `json:"ok"`
	Error         string             `json:"error,omitempty"`
	ErrorCode     int                `json:"error_code,omitempty"`
	NewCollection *models.Collection `json:"new_collection,omitempty"`
}

func ok(c *models.Collection) PublishResult {
	return PublishResult{OK: true, NewCollection: c}
}

func fail(code int, format string, args ...any) PublishResult {
	return PublishResult{OK: false, Error: fmt.Sprintf(format, args...), ErrorCode: code}
}

type Publishing struct {
	store           store.Accessor
	events          events.Publisher
	publicProjectID uuid.UUID
}

func NewPublishing(st store.Accessor, pub events.Publisher, publicProjectID uuid.UUID) *Publishing {
	return &Publishing{store: st, events: pub, publicProjectID: publicProjectID}
}

// Publish copies a private collection into the public project. Membership is
// remapped onto the public copies of the member prompts; members that were
// never published are dropped from the public copy, not an error.
func (p *Publishing) Publish(ctx context.Context, projectID, collectionID uuid.UUID) PublishResult {
	pub, err := p.store.Session(ctx, p.publicProjectID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open public project: %v", err)
	}
	defer pub.Rollback(ctx)

	if _, err := pub.FindCollectionBySharedID(ctx, projectID, collectionID); err == nil {
		return fail(http.StatusConflict, "collection %s is already published", collectionID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fail(http.StatusInternalServerError, "check shared id: %v", err)
	}

	priv, err := p.store.Session(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "project %s not found", projectID)
		}
		return fail(http.StatusInternalServerError, "open project %s: %v", projectID, err)
	}
	defer priv.Rollback(ctx)

	collection, err := priv.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "collection %s not found", collectionID)
		}
		return fail(http.StatusInternalServerError, "load collection: %v", err)
	}

	members := p.resolvePublicMembers(ctx, pub, collection.Prompts)

	publicCollection := &models.Collection{
		ID:            uuid.New(),
		OwnerID:       p.publicProjectID,
		Name:          collection.Name,
		Description:   collection.Description,
		AuthorID:      collection.AuthorID,
		Status:        models.StatusPublished,
		Prompts:       members,
		SharedID:      &collection.ID,
		SharedOwnerID: &projectID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := pub.CreateCollection(ctx, publicCollection); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(http.StatusConflict, "collection %s is already published", collectionID)
		}
		return fail(http.StatusInternalServerError, "create public collection: %v", err)
	}
	if err := pub.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(http.StatusConflict, "collection %s is already published", collectionID)
		}
		return fail(http.StatusInternalServerError, "commit public project: %v", err)
	}

	collection.Status = models.StatusPublished
	if err := priv.UpdateCollection(ctx, collection); err != nil {
		return fail(http.StatusInternalServerError, "update private collection: %v", err)
	}
	if err := priv.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit private project: %v", err)
	}

	ev := events.MembershipSnapshot{
		Collection: models.EntityRef{OwnerID: p.publicProjectID, ID: publicCollection.ID},
		Prompts:    members,
	}
	if err := p.events.Publish(ctx, events.TypeCollectionAdded, ev); err != nil {
		slog.Error("publish collection_added event", "collection_id", publicCollection.ID, "error", err)
	}

	return ok(publicCollection)
}

// resolvePublicMembers maps private member refs onto their public copies.
// Members already owned by the public project pass through unchanged.
func (p *Publishing) resolvePublicMembers(ctx context.Context, pub store.Session, refs []models.EntityRef) []models.EntityRef {
	var out []models.EntityRef
	for _, ref := range refs {
		if ref.OwnerID == p.publicProjectID {
			out = models.AppendRef(out, ref)
			continue
		}
		publicPrompt, err := pub.GetPromptBySharedID(ctx, ref.OwnerID, ref.ID)
		if err != nil {
			continue
		}
		out = models.AppendRef(out, models.EntityRef{OwnerID: p.publicProjectID, ID: publicPrompt.ID})
	}
	return out
}

// Reject removes a public collection during moderation. The acting user
// must be the collection's author.
func (p *Publishing) Reject(ctx context.Context, currentUserID, projectID, collectionID uuid.UUID) PublishResult {
	return p.removePublicCopy(ctx, currentUserID, projectID, collectionID, false)
}

// Unpublish removes the public copy and reverts the private collection to
// draft.
func (p *Publishing) Unpublish(ctx context.Context, currentUserID, projectID, collectionID uuid.UUID) PublishResult {
	return p.removePublicCopy(ctx, currentUserID, projectID, collectionID, true)
}

func (p *Publishing) removePublicCopy(ctx context.Context, currentUserID, projectID, collectionID uuid.UUID, revertPrivate bool) PublishResult {
	pub, err := p.store.Session(ctx, p.publicProjectID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open public project: %v", err)
	}
	defer pub.Rollback(ctx)

	publicCollection, err := pub.FindCollectionBySharedID(ctx, projectID, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "collection %s has no public copy", collectionID)
		}
		return fail(http.StatusInternalServerError, "find public collection: %v", err)
	}
	if publicCollection.AuthorID != currentUserID {
		return fail(http.StatusForbidden, "only the author may remove this collection")
	}

	if err := pub.DeleteCollection(ctx, publicCollection.ID); err != nil {
		return fail(http.StatusInternalServerError, "delete public collection: %v", err)
	}
	if err := pub.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit public project: %v", err)
	}

	if revertPrivate {
		if err := p.revertPrivateStatus(ctx, projectID, collectionID); err != nil {
			slog.Error("revert private collection status", "collection_id", collectionID, "error", err)
		}
	}

	ev := events.MembershipSnapshot{
		Collection: models.EntityRef{OwnerID: p.publicProjectID, ID: publicCollection.ID},
		Prompts:    publicCollection.Prompts,
	}
	if err := p.events.Publish(ctx, events.TypeCollectionDeleted, ev); err != nil {
		slog.Error("publish collection_deleted event", "collection_id", publicCollection.ID, "error", err)
	}

	return ok(publicCollection)
}

func (p *Publishing) revertPrivateStatus(ctx context.Context, projectID, collectionID uuid.UUID) error {
	priv, err := p.store.Session(ctx, projectID)
	if err != nil {
		return err
	}
	defer priv.Rollback(ctx)

	collection, err := priv.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	collection.Status = models.StatusDraft
	if err := priv.UpdateCollection(ctx, collection); err != nil {
		return err
	}
	return priv.Commit(ctx)
}
