// Package store defines the per-project data access contract the workflow
// engines run against. Each project (tenant) owns an isolated schema; a
// Session is scoped to exactly one of them and its changes only become
// visible on Commit. There is no cross-project transaction: operations that
// touch several projects open one session per project and commit each
// independently.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation (duplicate version name,
	// duplicate origin hash, duplicate shared id).
	ErrConflict = errors.New("conflict")
)

type Accessor interface {
	// Session opens a transactional session scoped to the given project.
	// The caller must finish it with Commit or Rollback.
	Session(ctx context.Context, projectID uuid.UUID) (Session, error)
	// CreateProject provisions storage for a new project.
	CreateProject(ctx context.Context, projectID uuid.UUID) error
}

type Session interface {
	ProjectID() uuid.UUID

	GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	// GetPromptBySharedID finds the public copy of a private prompt.
	GetPromptBySharedID(ctx context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Prompt, error)
	// GetPromptByLineage finds a previously forked copy by its fork-lineage
	// pair.
	GetPromptByLineage(ctx context.Context, parentEntityID, parentProjectID uuid.UUID) (*models.Prompt, error)
	ListPrompts(ctx context.Context, limit, offset int) ([]models.Prompt, error)
	CreatePrompt(ctx context.Context, p *models.Prompt) error
	UpdatePrompt(ctx context.Context, p *models.Prompt) error
	DeletePrompt(ctx context.Context, id uuid.UUID) error
	// FilterExistingPromptIDs returns the subset of ids that exist in this
	// project. Used by the membership pruning pass.
	FilterExistingPromptIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	GetVersion(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error)
	GetVersionByName(ctx context.Context, promptID uuid.UUID, name string) (*models.PromptVersion, error)
	FindVersionByOriginHash(ctx context.Context, hash string) (*models.PromptVersion, error)
	ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error)
	CreateVersion(ctx context.Context, v *models.PromptVersion) error
	UpdateVersion(ctx context.Context, v *models.PromptVersion) error
	DeleteVersion(ctx context.Context, id uuid.UUID) error

	GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	FindCollectionBySharedID(ctx context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Collection, error)
	ListCollections(ctx context.Context, limit, offset int) ([]models.Collection, error)
	CreateCollection(ctx context.Context, c *models.Collection) error
	UpdateCollection(ctx context.Context, c *models.Collection) error
	DeleteCollection(ctx context.Context, id uuid.UUID) error

	// ResolveTags maps tag names onto existing tag rows (case-sensitive
	// exact match), creating rows only for names the project has never
	// seen.
	ResolveTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error)
	ListTags(ctx context.Context, kind EntityKind) ([]models.Tag, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
