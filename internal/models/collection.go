package models

import (
	"time"

	"github.com/google/uuid"
)

type Collection struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	OwnerID     uuid.UUID     `json:"owner_id" db:"owner_id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description,omitempty" db:"description"`
	AuthorID    uuid.UUID     `json:"author_id" db:"author_id"`
	Status      VersionStatus `json:"status" db:"status"`
	// Prompts is the denormalized member list, the symmetric counterpart of
	// Prompt.Collections.
	Prompts       []EntityRef `json:"prompts" db:"prompts"`
	SharedID      *uuid.UUID  `json:"shared_id,omitempty" db:"shared_id"`
	SharedOwnerID *uuid.UUID  `json:"shared_owner_id,omitempty" db:"shared_owner_id"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}
