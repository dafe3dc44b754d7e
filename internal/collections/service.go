package collections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

// Service is the CRUD surface for collections. Structural changes emit the
// domain events the Consistency engine feeds on.
type Service struct {
	store  store.Accessor
	events events.Publisher
}

func NewService(st store.Accessor, pub events.Publisher) *Service {
	return &Service{store: st, events: pub}
}

type CreateRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Prompts     []models.EntityRef `json:"prompts,omitempty"`
}

func (s *Service) Create(ctx context.Context, projectID, authorID uuid.UUID, req CreateRequest) (*models.Collection, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	var members []models.EntityRef
	for _, ref := range req.Prompts {
		members = models.AppendRef(members, ref)
	}

	c := &models.Collection{
		ID:          uuid.New(),
		OwnerID:     projectID,
		Name:        req.Name,
		Description: req.Description,
		AuthorID:    authorID,
		Status:      models.StatusDraft,
		Prompts:     members,
		CreatedAt:   time.Now().UTC(),
	}
	if err := sess.CreateCollection(ctx, c); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if len(members) > 0 {
		ev := events.MembershipSnapshot{
			Collection: models.EntityRef{OwnerID: projectID, ID: c.ID},
			Prompts:    members,
		}
		if err := s.events.Publish(ctx, events.TypeCollectionAdded, ev); err != nil {
			slog.Error("publish collection_added event", "collection_id", c.ID, "error", err)
		}
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, projectID, id uuid.UUID) (*models.Collection, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.GetCollection(ctx, id)
}

func (s *Service) List(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]models.Collection, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.ListCollections(ctx, limit, offset)
}

type UpdateMembersRequest struct {
	AddPrompts    []models.EntityRef `json:"add_prompts,omitempty"`
	RemovePrompts []models.EntityRef `json:"remove_prompts,omitempty"`
}

// UpdateMembers edits the collection's member list and announces the delta.
func (s *Service) UpdateMembers(ctx context.Context, projectID, id uuid.UUID, req UpdateMembersRequest) (*models.Collection, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	c, err := sess.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	var added, removed []models.EntityRef
	for _, ref := range req.AddPrompts {
		if !models.ContainsRef(c.Prompts, ref) {
			added = append(added, ref)
		}
		c.Prompts = models.AppendRef(c.Prompts, ref)
	}
	for _, ref := range req.RemovePrompts {
		if models.ContainsRef(c.Prompts, ref) {
			removed = append(removed, ref)
		}
		c.Prompts = models.RemoveRef(c.Prompts, ref)
	}

	if err := sess.UpdateCollection(ctx, c); err != nil {
		return nil, fmt.Errorf("update collection: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if len(added) > 0 || len(removed) > 0 {
		ev := events.MembershipChange{
			Collection:     models.EntityRef{OwnerID: projectID, ID: id},
			AddedPrompts:   added,
			RemovedPrompts: removed,
		}
		if err := s.events.Publish(ctx, events.TypeCollectionUpdated, ev); err != nil {
			slog.Error("publish collection_updated event", "collection_id", id, "error", err)
		}
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)

	c, err := sess.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.DeleteCollection(ctx, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	ev := events.MembershipSnapshot{
		Collection: models.EntityRef{OwnerID: projectID, ID: id},
		Prompts:    c.Prompts,
	}
	if err := s.events.Publish(ctx, events.TypeCollectionDeleted, ev); err != nil {
		slog.Error("publish collection_deleted event", "collection_id", id, "error", err)
	}
	return nil
}

// RequestPrune samples which member prompts still exist in their owning
// projects and emits a prune request for the difference. Runs out of band;
// referential integrity of the member list is never enforced synchronously.
func (s *Service) RequestPrune(ctx context.Context, projectID, id uuid.UUID) error {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)

	c, err := sess.GetCollection(ctx, id)
	if err != nil {
		return err
	}

	all := make(map[uuid.UUID][]uuid.UUID)
	for _, ref := range c.Prompts {
		all[ref.OwnerID] = append(all[ref.OwnerID], ref.ID)
	}

	existing := make(map[uuid.UUID][]uuid.UUID, len(all))
	for ownerID, ids := range all {
		member, err := s.store.Session(ctx, ownerID)
		if err != nil {
			// A vanished project leaves no existing entry, so all its
			// members count as stale.
			continue
		}
		found, err := member.FilterExistingPromptIDs(ctx, ids)
		member.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("filter prompts in %s: %w", ownerID, err)
		}
		existing[ownerID] = found
	}

	ev := events.PruneRequest{
		Collection:      models.EntityRef{OwnerID: projectID, ID: id},
		ExistingPrompts: existing,
		AllPrompts:      all,
	}
	return s.events.Publish(ctx, events.TypeCollectionPrune, ev)
}
