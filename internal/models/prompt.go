package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type VersionStatus string

const (
	StatusDraft        VersionStatus = "draft"
	StatusOnModeration VersionStatus = "on_moderation"
	StatusPublished    VersionStatus = "published"
	StatusRejected     VersionStatus = "rejected"
)

// LatestVersionName is the single mutable version every prompt carries.
const LatestVersionName = "latest"

// EntityRef identifies an entity living in a specific project schema.
type EntityRef struct {
	OwnerID uuid.UUID `json:"owner_id"`
	ID      uuid.UUID `json:"id"`
}

type Prompt struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	// Collections is the denormalized reverse index of collection
	// membership, kept eventually consistent by the membership event
	// handlers.
	Collections   []EntityRef `json:"collections" db:"collections"`
	SharedID      *uuid.UUID  `json:"shared_id,omitempty" db:"shared_id"`
	SharedOwnerID *uuid.UUID  `json:"shared_owner_id,omitempty" db:"shared_owner_id"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type Tag struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// VersionMeta records fork lineage. Parent fields always point at the
// original ancestor, not the immediate source of the last fork.
type VersionMeta struct {
	ParentEntityID        *uuid.UUID `json:"parent_entity_id,omitempty"`
	ParentEntityVersionID *uuid.UUID `json:"parent_entity_version_id,omitempty"`
	ParentProjectID       *uuid.UUID `json:"parent_project_id,omitempty"`
	ParentAuthorID        *uuid.UUID `json:"parent_author_id,omitempty"`
}

type PromptVersion struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	PromptID      uuid.UUID       `json:"prompt_id" db:"prompt_id"`
	Name          string          `json:"name" db:"name"`
	Status        VersionStatus   `json:"status" db:"status"`
	AuthorID      uuid.UUID       `json:"author_id" db:"author_id"`
	Context       string          `json:"context,omitempty" db:"context"`
	ModelSettings json.RawMessage `json:"model_settings,omitempty" db:"model_settings"`
	Variables     []Variable      `json:"variables" db:"variables"`
	Messages      []Message       `json:"messages" db:"messages"`
	Tags          []Tag           `json:"tags" db:"tags"`
	Meta          VersionMeta     `json:"meta" db:"meta"`
	// Origin and OriginHash exist only on public copies. Origin points at
	// the frozen private version the content was copied from; OriginHash is
	// derived from the identity the publish call was made with and guards
	// against double publication.
	Origin        *EntityRef `json:"origin,omitempty" db:"origin"`
	OriginHash    string     `json:"origin_hash,omitempty" db:"origin_hash"`
	RejectDetails string     `json:"reject_details,omitempty" db:"reject_details"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

func (v *PromptVersion) IsLatest() bool {
	return v.Name == LatestVersionName
}
