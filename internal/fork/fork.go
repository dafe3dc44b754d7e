// Package fork copies prompts between projects exactly once per distinct
// source identity, recording fork lineage separately from publish
// provenance.
package fork

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/store"
)

// importNamespace seeds the deterministic ids forked entities get, so
// repeated forks of the same source converge on the same synthetic id and
// downstream bulk imports upsert instead of duplicating.
var importNamespace = uuid.MustParse("8f2b9a44-6c1d-4e63-9d35-5a0c7f1b2e90")

type Item struct {
	SourceProjectID uuid.UUID   `json:"source_project_id"`
	PromptID        uuid.UUID   `json:"prompt_id"`
	VersionIDs      []uuid.UUID `json:"version_ids,omitempty"`
}

type ItemError struct {
	Index     int    `json:"index"`
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

type BatchStatus string

const (
	StatusAllOK   BatchStatus = "ok"
	StatusPartial BatchStatus = "partial"
	StatusFailed  BatchStatus = "failed"
)

// BatchResult reports per-item outcomes; one bad item never aborts the rest
// of the batch.
type BatchResult struct {
	Status        BatchStatus     `json:"status"`
	Result        []models.Prompt `json:"result"`
	AlreadyExists []models.Prompt `json:"already_exists"`
	Errors        []ItemError     `json:"errors"`
}

type Engine struct {
	store store.Accessor
}

func NewEngine(st store.Accessor) *Engine {
	return &Engine{store: st}
}

// ForkPrompts copies the requested prompts into the target project. The
// dedup key is the (target, parent entity, parent project) triple; a prompt
// already forked from the same original ancestor is returned as-is.
func (e *Engine) ForkPrompts(ctx context.Context, targetProjectID, authorID uuid.UUID, items []Item) BatchResult {
	var res BatchResult
	for i, item := range items {
		forked, existed, err := e.forkOne(ctx, targetProjectID, authorID, item)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				code = http.StatusNotFound
			}
			res.Errors = append(res.Errors, ItemError{Index: i, Error: err.Error(), ErrorCode: code})
			continue
		}
		if existed {
			res.AlreadyExists = append(res.AlreadyExists, *forked)
		} else {
			res.Result = append(res.Result, *forked)
		}
	}

	switch {
	case len(res.Errors) == 0:
		res.Status = StatusAllOK
	case len(res.Result)+len(res.AlreadyExists) == 0:
		res.Status = StatusFailed
	default:
		res.Status = StatusPartial
	}
	return res
}

func (e *Engine) forkOne(ctx context.Context, targetProjectID, authorID uuid.UUID, item Item) (*models.Prompt, bool, error) {
	src, err := e.store.Session(ctx, item.SourceProjectID)
	if err != nil {
		return nil, false, fmt.Errorf("source project %s: %w", item.SourceProjectID, err)
	}
	defer src.Rollback(ctx)

	srcPrompt, err := src.GetPrompt(ctx, item.PromptID)
	if err != nil {
		return nil, false, fmt.Errorf("source prompt %s: %w", item.PromptID, err)
	}
	versions, err := e.selectVersions(ctx, src, item)
	if err != nil {
		return nil, false, err
	}

	// The lineage of the new copy is the original ancestor: a re-fork keeps
	// the lineage its source already carries instead of pointing one hop
	// back.
	parentEntityID, parentProjectID := srcPrompt.ID, item.SourceProjectID
	for i := range versions {
		if versions[i].Meta.ParentEntityID != nil && versions[i].Meta.ParentProjectID != nil {
			parentEntityID = *versions[i].Meta.ParentEntityID
			parentProjectID = *versions[i].Meta.ParentProjectID
			break
		}
	}

	target, err := e.store.Session(ctx, targetProjectID)
	if err != nil {
		return nil, false, fmt.Errorf("target project %s: %w", targetProjectID, err)
	}
	defer target.Rollback(ctx)

	if existing, err := target.GetPromptByLineage(ctx, parentEntityID, parentProjectID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("lineage lookup: %w", err)
	}

	forked := &models.Prompt{
		ID:          importUUID(srcPrompt.ID, item.SourceProjectID, srcPrompt.Name),
		OwnerID:     targetProjectID,
		Name:        srcPrompt.Name,
		Description: srcPrompt.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := target.CreatePrompt(ctx, forked); err != nil {
		return nil, false, fmt.Errorf("create forked prompt: %w", err)
	}

	for i := range versions {
		v := &versions[i]
		data := prompts.VersionToData(v)
		data.ID = importVersionUUID(v.ID, v.AuthorID, v.Name)
		// The forking user owns the copies; lineage keeps the original
		// author reachable.
		data.AuthorID = authorID
		data.Meta = lineageFor(v, srcPrompt, item.SourceProjectID)
		if _, err := prompts.BuildVersion(ctx, target, data, forked.ID); err != nil {
			return nil, false, fmt.Errorf("copy version %s: %w", v.ID, err)
		}
	}

	if err := target.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if existing, lookupErr := e.lookupExisting(ctx, targetProjectID, parentEntityID, parentProjectID); lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("commit target project: %w", err)
	}
	return forked, false, nil
}

func (e *Engine) lookupExisting(ctx context.Context, targetProjectID, parentEntityID, parentProjectID uuid.UUID) (*models.Prompt, error) {
	sess, err := e.store.Session(ctx, targetProjectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.GetPromptByLineage(ctx, parentEntityID, parentProjectID)
}

func (e *Engine) selectVersions(ctx context.Context, src store.Session, item Item) ([]models.PromptVersion, error) {
	if len(item.VersionIDs) == 0 {
		versions, err := src.ListVersions(ctx, item.PromptID)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		return versions, nil
	}
	var out []models.PromptVersion
	for _, id := range item.VersionIDs {
		v, err := src.GetVersion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", id, err)
		}
		if v.PromptID != item.PromptID {
			return nil, fmt.Errorf("version %s does not belong to prompt %s: %w", id, item.PromptID, store.ErrNotFound)
		}
		out = append(out, *v)
	}
	return out, nil
}

// lineageFor carries existing lineage through unchanged and records the
// immediate source as ancestor only for first-generation forks.
func lineageFor(v *models.PromptVersion, srcPrompt *models.Prompt, sourceProjectID uuid.UUID) models.VersionMeta {
	if v.Meta.ParentEntityID != nil && v.Meta.ParentProjectID != nil {
		return v.Meta
	}
	versionID := v.ID
	authorID := v.AuthorID
	projectID := sourceProjectID
	promptID := srcPrompt.ID
	return models.VersionMeta{
		ParentEntityID:        &promptID,
		ParentEntityVersionID: &versionID,
		ParentProjectID:       &projectID,
		ParentAuthorID:        &authorID,
	}
}

func importUUID(id, ownerID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(importNamespace, []byte(fmt.Sprintf("%s:%s:%s", id, ownerID, name)))
}

func importVersionUUID(id, authorID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(importNamespace, []byte(fmt.Sprintf("%s:%s:%s", id, authorID, name)))
}
