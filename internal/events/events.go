// Package events carries the domain events the workflow engines emit and the
// membership consistency handlers consume. Delivery is at-least-once and may
// reorder; every consumer has to be idempotent.
package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
)

const (
	TypeCollectionUpdated = "collection:updated"
	TypeCollectionAdded   = "collection:added"
	TypeCollectionDeleted = "collection:deleted"
	TypeCollectionPrune   = "collection:prune"
	TypePromptPublished   = "prompt:published"
	TypePromptDeleted     = "prompt:deleted"
)

type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// MembershipChange describes an incremental edit to a collection's member
// list.
type MembershipChange struct {
	Collection     models.EntityRef   `json:"collection"`
	AddedPrompts   []models.EntityRef `json:"added_prompts"`
	RemovedPrompts []models.EntityRef `json:"removed_prompts"`
}

// MembershipSnapshot carries a collection's full member list, used when the
// whole collection appears or disappears.
type MembershipSnapshot struct {
	Collection models.EntityRef   `json:"collection"`
	Prompts    []models.EntityRef `json:"prompts"`
}

// PruneRequest asks the consistency engine to drop member entries the
// owning projects no longer hold. Maps are keyed by project id.
type PruneRequest struct {
	Collection      models.EntityRef          `json:"collection"`
	ExistingPrompts map[uuid.UUID][]uuid.UUID `json:"existing_prompts"`
	AllPrompts      map[uuid.UUID][]uuid.UUID `json:"all_prompts"`
}

// PromptPublished announces a newly approved public prompt to downstream
// consumers.
type PromptPublished struct {
	SharedOwnerID  uuid.UUID `json:"shared_owner_id"`
	SharedID       uuid.UUID `json:"shared_id"`
	PublicPromptID uuid.UUID `json:"public_prompt_id"`
}

// PromptDeleted announces a prompt removal together with the memberships it
// held, so collections can drop the dangling entries.
type PromptDeleted struct {
	Prompt      models.EntityRef   `json:"prompt"`
	Collections []models.EntityRef `json:"collections"`
}
