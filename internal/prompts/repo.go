// Package prompts holds the entity-level primitives shared by the publish,
// collection and fork engines: building versions from plain data, creating
// prompts with their initial mutable version, and deep-copying entities into
// a form that can be replayed into a different project's session.
package prompts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

// VersionData is the plain structured form of a prompt version, the unit of
// cross-project copying. It carries no project-local primary keys.
type VersionData struct {
	// ID, when set, pins the new row's id. Fork uses this to hand out
	// deterministic import ids.
	ID            uuid.UUID          `json:"-"`
	Name          string             `json:"name"`
	AuthorID      uuid.UUID          `json:"author_id"`
	Context       string             `json:"context,omitempty"`
	ModelSettings []byte             `json:"model_settings,omitempty"`
	Variables     []models.Variable  `json:"variables"`
	Messages      []models.Message   `json:"messages"`
	Tags          []models.Tag       `json:"tags"`
	Meta          models.VersionMeta `json:"meta"`
}

// PromptData is the plain structured form of a prompt with its versions.
type PromptData struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Versions    []VersionData `json:"versions"`
}

// BuildVersion creates a version row from plain data and stages it on the
// session. Template placeholders in the context that have no explicit
// variable get an implicit empty-value variable. Tags are resolved against
// the project's existing tag rows so equal names never duplicate. The caller
// commits.
func BuildVersion(ctx context.Context, sess store.Session, data VersionData, promptID uuid.UUID) (*models.PromptVersion, error) {
	vars := MergeVariables(data.Variables, data.Context)

	tags, err := sess.ResolveTags(ctx, data.Tags)
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}

	id := data.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	v := &models.PromptVersion{
		ID:            id,
		PromptID:      promptID,
		Name:          data.Name,
		Status:        models.StatusDraft,
		AuthorID:      data.AuthorID,
		Context:       data.Context,
		ModelSettings: data.ModelSettings,
		Variables:     vars,
		Messages:      append([]models.Message(nil), data.Messages...),
		Tags:          tags,
		Meta:          data.Meta,
		CreatedAt:     time.Now().UTC(),
	}
	if err := sess.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// CreatePrompt creates the prompt row and its initial "latest" version.
func CreatePrompt(ctx context.Context, sess store.Session, data PromptData, authorID uuid.UUID) (*models.Prompt, error) {
	p := &models.Prompt{
		ID:          uuid.New(),
		OwnerID:     sess.ProjectID(),
		Name:        data.Name,
		Description: data.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := sess.CreatePrompt(ctx, p); err != nil {
		return nil, err
	}

	latest := VersionData{Name: models.LatestVersionName, AuthorID: authorID}
	if len(data.Versions) > 0 {
		latest = data.Versions[0]
		latest.Name = models.LatestVersionName
		if latest.AuthorID == uuid.Nil {
			latest.AuthorID = authorID
		}
	}
	if _, err := BuildVersion(ctx, sess, latest, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// VersionToData serializes a version into its plain form, stripping
// project-local identity so it can be fed to BuildVersion in another
// project's session.
func VersionToData(v *models.PromptVersion) VersionData {
	tags := make([]models.Tag, len(v.Tags))
	for i, t := range v.Tags {
		tags[i] = models.Tag{Name: t.Name}
	}
	return VersionData{
		Name:          v.Name,
		AuthorID:      v.AuthorID,
		Context:       v.Context,
		ModelSettings: append([]byte(nil), v.ModelSettings...),
		Variables:     append([]models.Variable(nil), v.Variables...),
		Messages:      append([]models.Message(nil), v.Messages...),
		Tags:          tags,
		Meta:          v.Meta,
	}
}

// PromptToData serializes a prompt and all its versions.
func PromptToData(ctx context.Context, sess store.Session, promptID uuid.UUID) (*PromptData, error) {
	p, err := sess.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	versions, err := sess.ListVersions(ctx, promptID)
	if err != nil {
		return nil, err
	}
	data := &PromptData{Name: p.Name, Description: p.Description}
	for i := range versions {
		data.Versions = append(data.Versions, VersionToData(&versions[i]))
	}
	return data, nil
}
