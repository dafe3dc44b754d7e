package collections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

// Consistency reconciles the two denormalized membership lists in response
// to domain events. A collection and its member prompts can live in
// different project schemas, so every handler opens one session per affected
// project and commits them independently. All list mutations are
// remove-then-append keyed by the (owner, id) pair, which makes replayed or
// reordered deliveries no-ops.
type Consistency struct {
	store store.Accessor
}

func NewConsistency(st store.Accessor) *Consistency {
	return &Consistency{store: st}
}

// Subscribe wires every handler into an in-process dispatcher.
func (c *Consistency) Subscribe(d *events.SyncDispatcher) {
	d.Subscribe(events.TypeCollectionUpdated, c.HandleCollectionUpdated)
	d.Subscribe(events.TypeCollectionAdded, c.HandleCollectionAdded)
	d.Subscribe(events.TypeCollectionDeleted, c.HandleCollectionDeleted)
	d.Subscribe(events.TypeCollectionPrune, c.HandlePrune)
	d.Subscribe(events.TypePromptDeleted, c.HandlePromptDeleted)
}

func (c *Consistency) HandleCollectionUpdated(ctx context.Context, payload []byte) error {
	var ev events.MembershipChange
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode collection_updated: %w", err)
	}
	if err := c.applyToPrompts(ctx, ev.Collection, ev.AddedPrompts, true); err != nil {
		return err
	}
	return c.applyToPrompts(ctx, ev.Collection, ev.RemovedPrompts, false)
}

func (c *Consistency) HandleCollectionAdded(ctx context.Context, payload []byte) error {
	var ev events.MembershipSnapshot
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode collection_added: %w", err)
	}
	return c.applyToPrompts(ctx, ev.Collection, ev.Prompts, true)
}

func (c *Consistency) HandleCollectionDeleted(ctx context.Context, payload []byte) error {
	var ev events.MembershipSnapshot
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode collection_deleted: %w", err)
	}
	return c.applyToPrompts(ctx, ev.Collection, ev.Prompts, false)
}

// applyToPrompts updates the Collections list on every named prompt, one
// session per owning project.
func (c *Consistency) applyToPrompts(ctx context.Context, collection models.EntityRef, prompts []models.EntityRef, add bool) error {
	byProject := make(map[uuid.UUID][]uuid.UUID)
	for _, ref := range prompts {
		byProject[ref.OwnerID] = append(byProject[ref.OwnerID], ref.ID)
	}

	for projectID, ids := range byProject {
		sess, err := c.store.Session(ctx, projectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Warn("membership event references missing project", "project_id", projectID)
				continue
			}
			return fmt.Errorf("open project %s: %w", projectID, err)
		}

		for _, id := range ids {
			prompt, err := sess.GetPrompt(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				sess.Rollback(ctx)
				return fmt.Errorf("load prompt %s: %w", id, err)
			}
			if add {
				prompt.Collections = models.AppendRef(prompt.Collections, collection)
			} else {
				prompt.Collections = models.RemoveRef(prompt.Collections, collection)
			}
			if err := sess.UpdatePrompt(ctx, prompt); err != nil {
				sess.Rollback(ctx)
				return fmt.Errorf("update prompt %s: %w", id, err)
			}
		}

		if err := sess.Commit(ctx); err != nil {
			return fmt.Errorf("commit project %s: %w", projectID, err)
		}
	}
	return nil
}

// HandlePrune removes member entries the owning projects no longer hold
// from the collection's own prompt list. This is the self-healing pass that
// repairs drift after prompts are deleted outside collection updates.
func (c *Consistency) HandlePrune(ctx context.Context, payload []byte) error {
	var ev events.PruneRequest
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode collection_prune: %w", err)
	}

	var stale []models.EntityRef
	for projectID, all := range ev.AllPrompts {
		existing := make(map[uuid.UUID]bool, len(ev.ExistingPrompts[projectID]))
		for _, id := range ev.ExistingPrompts[projectID] {
			existing[id] = true
		}
		for _, id := range all {
			if !existing[id] {
				stale = append(stale, models.EntityRef{OwnerID: projectID, ID: id})
			}
		}
	}
	if len(stale) == 0 {
		return nil
	}

	sess, err := c.store.Session(ctx, ev.Collection.OwnerID)
	if err != nil {
		return fmt.Errorf("open project %s: %w", ev.Collection.OwnerID, err)
	}
	defer sess.Rollback(ctx)

	collection, err := sess.GetCollection(ctx, ev.Collection.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load collection %s: %w", ev.Collection.ID, err)
	}
	for _, ref := range stale {
		collection.Prompts = models.RemoveRef(collection.Prompts, ref)
	}
	if err := sess.UpdateCollection(ctx, collection); err != nil {
		return fmt.Errorf("update collection %s: %w", collection.ID, err)
	}
	return sess.Commit(ctx)
}

// HandlePromptDeleted drops a deleted prompt from every collection that
// still lists it.
func (c *Consistency) HandlePromptDeleted(ctx context.Context, payload []byte) error {
	var ev events.PromptDeleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode prompt_deleted: %w", err)
	}

	byProject := make(map[uuid.UUID][]uuid.UUID)
	for _, ref := range ev.Collections {
		byProject[ref.OwnerID] = append(byProject[ref.OwnerID], ref.ID)
	}

	for projectID, ids := range byProject {
		sess, err := c.store.Session(ctx, projectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return fmt.Errorf("open project %s: %w", projectID, err)
		}

		for _, id := range ids {
			collection, err := sess.GetCollection(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				sess.Rollback(ctx)
				return fmt.Errorf("load collection %s: %w", id, err)
			}
			collection.Prompts = models.RemoveRef(collection.Prompts, ev.Prompt)
			if err := sess.UpdateCollection(ctx, collection); err != nil {
				sess.Rollback(ctx)
				return fmt.Errorf("update collection %s: %w", id, err)
			}
		}

		if err := sess.Commit(ctx); err != nil {
			return fmt.Errorf("commit project %s: %w", projectID, err)
		}
	}
	return nil
}
