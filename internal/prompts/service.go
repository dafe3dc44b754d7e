package prompts

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

// Service is the CRUD surface for prompts and their versions inside a single
// project. Deleting a prompt announces the memberships it held so collections
// can drop the dangling entries.
type Service struct {
	store  store.Accessor
	events events.Publisher
}

func NewService(st store.Accessor, pub events.Publisher) *Service {
	return &Service{store: st, events: pub}
}

type CreateRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Version     VersionData `json:"version"`
}

func (s *Service) Create(ctx context.Context, projectID, authorID uuid.UUID, req CreateRequest) (*models.Prompt, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	data := PromptData{
		Name:        req.Name,
		Description: req.Description,
		Versions:    []VersionData{req.Version},
	}
	p, err := CreatePrompt(ctx, sess, data, authorID)
	if err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, projectID, id uuid.UUID) (*models.Prompt, []models.PromptVersion, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer sess.Rollback(ctx)

	p, err := sess.GetPrompt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	versions, err := sess.ListVersions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, versions, nil
}

func (s *Service) List(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]models.Prompt, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.ListPrompts(ctx, limit, offset)
}

type UpdateLatestRequest struct {
	Context       string            `json:"context,omitempty"`
	ModelSettings []byte            `json:"model_settings,omitempty"`
	Variables     []models.Variable `json:"variables,omitempty"`
	Messages      []models.Message  `json:"messages,omitempty"`
	Tags          []models.Tag      `json:"tags,omitempty"`
}

// UpdateLatest replaces the content of the mutable "latest" version. Named
// versions are immutable and cannot be edited here.
func (s *Service) UpdateLatest(ctx context.Context, projectID, promptID uuid.UUID, req UpdateLatestRequest) (*models.PromptVersion, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	latest, err := sess.GetVersionByName(ctx, promptID, models.LatestVersionName)
	if err != nil {
		return nil, err
	}
	if latest.Status == models.StatusOnModeration {
		return nil, fmt.Errorf("version is on moderation: %w", store.ErrConflict)
	}

	vars := MergeVariables(req.Variables, req.Context)
	tags, err := sess.ResolveTags(ctx, req.Tags)
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}

	latest.Context = req.Context
	latest.ModelSettings = req.ModelSettings
	latest.Variables = vars
	latest.Messages = req.Messages
	latest.Tags = tags
	if err := sess.UpdateVersion(ctx, latest); err != nil {
		return nil, fmt.Errorf("update latest: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return latest, nil
}

// SaveVersion snapshots the current "latest" content under an immutable name.
func (s *Service) SaveVersion(ctx context.Context, projectID, promptID uuid.UUID, name string) (*models.PromptVersion, error) {
	if name == "" || name == models.LatestVersionName {
		return nil, fmt.Errorf("invalid version name %q", name)
	}

	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	latest, err := sess.GetVersionByName(ctx, promptID, models.LatestVersionName)
	if err != nil {
		return nil, err
	}

	data := VersionToData(latest)
	data.Name = name
	v, err := BuildVersion(ctx, sess, data, promptID)
	if err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

func (s *Service) DeleteVersion(ctx context.Context, projectID, promptID, versionID uuid.UUID) error {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)

	v, err := sess.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v.PromptID != promptID {
		return fmt.Errorf("version %s: %w", versionID, store.ErrNotFound)
	}
	if v.IsLatest() {
		return fmt.Errorf("the latest version cannot be deleted: %w", store.ErrConflict)
	}
	if err := sess.DeleteVersion(ctx, versionID); err != nil {
		return err
	}
	return sess.Commit(ctx)
}

// Delete removes the prompt and all its versions, then announces the removal
// with the memberships the prompt held.
func (s *Service) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)

	p, err := sess.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.DeletePrompt(ctx, id); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if len(p.Collections) > 0 {
		ev := events.PromptDeleted{
			Prompt:      models.EntityRef{OwnerID: projectID, ID: id},
			Collections: p.Collections,
		}
		if err := s.events.Publish(ctx, events.TypePromptDeleted, ev); err != nil {
			slog.Error("publish prompt_deleted event", "prompt_id", id, "error", err)
		}
	}
	return nil
}

type RenderRequest struct {
	VersionName string            `json:"version_name,omitempty"`
	Variables   map[string]string `json:"variables"`
}

type RenderResponse struct {
	Context  string           `json:"context"`
	Messages []models.Message `json:"messages"`
}

// Render substitutes variables into a version's context and message bodies.
func (s *Service) Render(ctx context.Context, projectID, promptID uuid.UUID, req RenderRequest) (*RenderResponse, error) {
	name := req.VersionName
	if name == "" {
		name = models.LatestVersionName
	}

	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	v, err := sess.GetVersionByName(ctx, promptID, name)
	if err != nil {
		return nil, err
	}

	rendered, err := Render(v.Context, req.Variables)
	if err != nil {
		return nil, err
	}
	out := RenderResponse{Context: rendered}
	for _, m := range v.Messages {
		body, err := Render(m.Content, req.Variables)
		if err != nil {
			return nil, err
		}
		m.Content = body
		out.Messages = append(out.Messages, m)
	}
	return &out, nil
}

// Export serializes a prompt with all versions into its plain portable form.
func (s *Service) Export(ctx context.Context, projectID, id uuid.UUID) (*PromptData, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return PromptToData(ctx, sess, id)
}

// Import replays an exported prompt document into the project. Versions named
// "latest" in the document stay mutable; everything else imports as-is.
func (s *Service) Import(ctx context.Context, projectID, authorID uuid.UUID, data PromptData) (*models.Prompt, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	p := &models.Prompt{
		ID:          uuid.New(),
		OwnerID:     projectID,
		Name:        data.Name,
		Description: data.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := sess.CreatePrompt(ctx, p); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}

	hasLatest := false
	for _, vd := range data.Versions {
		if vd.AuthorID == uuid.Nil {
			vd.AuthorID = authorID
		}
		if vd.Name == models.LatestVersionName {
			hasLatest = true
		}
		if _, err := BuildVersion(ctx, sess, vd, p.ID); err != nil {
			return nil, fmt.Errorf("import version %q: %w", vd.Name, err)
		}
	}
	if !hasLatest {
		if _, err := BuildVersion(ctx, sess, VersionData{Name: models.LatestVersionName, AuthorID: authorID}, p.ID); err != nil {
			return nil, fmt.Errorf("create latest version: %w", err)
		}
	}

	if err := sess.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// Tags lists the distinct tags in use for the given entity kind.
func (s *Service) Tags(ctx context.Context, projectID uuid.UUID, kind store.EntityKind) ([]models.Tag, error) {
	sess, err := s.store.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.ListTags(ctx, kind)
}

// StatusCode maps store sentinels onto HTTP status codes for the handlers.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
