package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

type session struct {
	accessor  *Accessor
	projectID uuid.UUID
	data      *projectData
	done      bool
}

func (s *session) ProjectID() uuid.UUID { return s.projectID }

func (s *session) Commit(_ context.Context) error {
	if s.done {
		return fmt.Errorf("session already finished")
	}
	s.accessor.mu.Lock()
	defer s.accessor.mu.Unlock()
	committed, ok := s.accessor.projects[s.projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", s.projectID, store.ErrNotFound)
	}
	// Re-check the uniqueness guards against rows committed by concurrent
	// sessions since this session's snapshot was taken. This is where a
	// publish race surfaces, same as the unique index would in Postgres.
	if err := checkUniques(committed, s.data); err != nil {
		return err
	}
	s.accessor.projects[s.projectID] = s.data
	s.done = true
	return nil
}

func (s *session) Rollback(_ context.Context) error {
	s.done = true
	return nil
}

func checkUniques(committed, staged *projectData) error {
	hashOwners := make(map[string]uuid.UUID)
	for id, v := range committed.versions {
		if v.OriginHash != "" {
			hashOwners[v.OriginHash] = id
		}
	}
	for id, v := range staged.versions {
		if v.OriginHash == "" {
			continue
		}
		if other, ok := hashOwners[v.OriginHash]; ok && other != id {
			return fmt.Errorf("origin hash %s: %w", v.OriginHash, store.ErrConflict)
		}
	}
	sharedOwners := make(map[models.EntityRef]uuid.UUID)
	for id, c := range committed.collections {
		if c.SharedID != nil && c.SharedOwnerID != nil {
			sharedOwners[models.EntityRef{OwnerID: *c.SharedOwnerID, ID: *c.SharedID}] = id
		}
	}
	for id, c := range staged.collections {
		if c.SharedID == nil || c.SharedOwnerID == nil {
			continue
		}
		key := models.EntityRef{OwnerID: *c.SharedOwnerID, ID: *c.SharedID}
		if other, ok := sharedOwners[key]; ok && other != id {
			return fmt.Errorf("shared id %s: %w", key.ID, store.ErrConflict)
		}
	}
	return nil
}

func (s *session) GetPrompt(_ context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, ok := s.data.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", id, store.ErrNotFound)
	}
	return clonePrompt(p), nil
}

func (s *session) GetPromptBySharedID(_ context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Prompt, error) {
	for _, p := range s.data.prompts {
		if p.SharedID != nil && p.SharedOwnerID != nil &&
			*p.SharedID == sharedID && *p.SharedOwnerID == sharedOwnerID {
			return clonePrompt(p), nil
		}
	}
	return nil, fmt.Errorf("prompt shared %s/%s: %w", sharedOwnerID, sharedID, store.ErrNotFound)
}

func (s *session) GetPromptByLineage(_ context.Context, parentEntityID, parentProjectID uuid.UUID) (*models.Prompt, error) {
	for _, v := range s.data.versions {
		if v.Meta.ParentEntityID == nil || v.Meta.ParentProjectID == nil {
			continue
		}
		if *v.Meta.ParentEntityID == parentEntityID && *v.Meta.ParentProjectID == parentProjectID {
			if p, ok := s.data.prompts[v.PromptID]; ok {
				return clonePrompt(p), nil
			}
		}
	}
	return nil, fmt.Errorf("prompt lineage %s/%s: %w", parentProjectID, parentEntityID, store.ErrNotFound)
}

func (s *session) ListPrompts(_ context.Context, limit, offset int) ([]models.Prompt, error) {
	all := make([]models.Prompt, 0, len(s.data.prompts))
	for _, p := range s.data.prompts {
		all = append(all, *clonePrompt(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (s *session) CreatePrompt(_ context.Context, p *models.Prompt) error {
	if _, ok := s.data.prompts[p.ID]; ok {
		return fmt.Errorf("prompt %s: %w", p.ID, store.ErrConflict)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.data.prompts[p.ID] = clonePrompt(p)
	return nil
}

func (s *session) UpdatePrompt(_ context.Context, p *models.Prompt) error {
	if _, ok := s.data.prompts[p.ID]; !ok {
		return fmt.Errorf("prompt %s: %w", p.ID, store.ErrNotFound)
	}
	s.data.prompts[p.ID] = clonePrompt(p)
	return nil
}

func (s *session) DeletePrompt(_ context.Context, id uuid.UUID) error {
	if _, ok := s.data.prompts[id]; !ok {
		return fmt.Errorf("prompt %s: %w", id, store.ErrNotFound)
	}
	delete(s.data.prompts, id)
	for vid, v := range s.data.versions {
		if v.PromptID == id {
			delete(s.data.versions, vid)
		}
	}
	return nil
}

func (s *session) FilterExistingPromptIDs(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := s.data.prompts[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *session) GetVersion(_ context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	v, ok := s.data.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, store.ErrNotFound)
	}
	return cloneVersion(v), nil
}

func (s *session) GetVersionByName(_ context.Context, promptID uuid.UUID, name string) (*models.PromptVersion, error) {
	for _, v := range s.data.versions {
		if v.PromptID == promptID && v.Name == name {
			return cloneVersion(v), nil
		}
	}
	return nil, fmt.Errorf("version %s of prompt %s: %w", name, promptID, store.ErrNotFound)
}

func (s *session) FindVersionByOriginHash(_ context.Context, hash string) (*models.PromptVersion, error) {
	for _, v := range s.data.versions {
		if v.OriginHash == hash {
			return cloneVersion(v), nil
		}
	}
	return nil, fmt.Errorf("version with origin hash %s: %w", hash, store.ErrNotFound)
}

func (s *session) ListVersions(_ context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	var out []models.PromptVersion
	for _, v := range s.data.versions {
		if v.PromptID == promptID {
			out = append(out, *cloneVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *session) CreateVersion(_ context.Context, v *models.PromptVersion) error {
	if _, ok := s.data.versions[v.ID]; ok {
		return fmt.Errorf("version %s: %w", v.ID, store.ErrConflict)
	}
	for _, existing := range s.data.versions {
		if existing.PromptID == v.PromptID && existing.Name == v.Name {
			return fmt.Errorf("version name %q: %w", v.Name, store.ErrConflict)
		}
		if v.OriginHash != "" && existing.OriginHash == v.OriginHash {
			return fmt.Errorf("origin hash %s: %w", v.OriginHash, store.ErrConflict)
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	s.data.versions[v.ID] = cloneVersion(v)
	return nil
}

func (s *session) UpdateVersion(_ context.Context, v *models.PromptVersion) error {
	if _, ok := s.data.versions[v.ID]; !ok {
		return fmt.Errorf("version %s: %w", v.ID, store.ErrNotFound)
	}
	s.data.versions[v.ID] = cloneVersion(v)
	return nil
}

func (s *session) DeleteVersion(_ context.Context, id uuid.UUID) error {
	if _, ok := s.data.versions[id]; !ok {
		return fmt.Errorf("version %s: %w", id, store.ErrNotFound)
	}
	delete(s.data.versions, id)
	return nil
}

func (s *session) GetCollection(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	c, ok := s.data.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	return cloneCollection(c), nil
}

func (s *session) FindCollectionBySharedID(_ context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Collection, error) {
	for _, c := range s.data.collections {
		if c.SharedID != nil && c.SharedOwnerID != nil &&
			*c.SharedID == sharedID && *c.SharedOwnerID == sharedOwnerID {
			return cloneCollection(c), nil
		}
	}
	return nil, fmt.Errorf("collection shared %s/%s: %w", sharedOwnerID, sharedID, store.ErrNotFound)
}

func (s *session) ListCollections(_ context.Context, limit, offset int) ([]models.Collection, error) {
	all := make([]models.Collection, 0, len(s.data.collections))
	for _, c := range s.data.collections {
		all = append(all, *cloneCollection(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (s *session) CreateCollection(_ context.Context, c *models.Collection) error {
	if _, ok := s.data.collections[c.ID]; ok {
		return fmt.Errorf("collection %s: %w", c.ID, store.ErrConflict)
	}
	if c.SharedID != nil && c.SharedOwnerID != nil {
		for _, existing := range s.data.collections {
			if existing.SharedID != nil && existing.SharedOwnerID != nil &&
				*existing.SharedID == *c.SharedID && *existing.SharedOwnerID == *c.SharedOwnerID {
				return fmt.Errorf("shared id %s: %w", *c.SharedID, store.ErrConflict)
			}
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.data.collections[c.ID] = cloneCollection(c)
	return nil
}

func (s *session) UpdateCollection(_ context.Context, c *models.Collection) error {
	if _, ok := s.data.collections[c.ID]; !ok {
		return fmt.Errorf("collection %s: %w", c.ID, store.ErrNotFound)
	}
	s.data.collections[c.ID] = cloneCollection(c)
	return nil
}

func (s *session) DeleteCollection(_ context.Context, id uuid.UUID) error {
	if _, ok := s.data.collections[id]; !ok {
		return fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	delete(s.data.collections, id)
	return nil
}

func (s *session) ResolveTags(_ context.Context, tags []models.Tag) ([]models.Tag, error) {
	out := make([]models.Tag, 0, len(tags))
	for _, t := range tags {
		if existing, ok := s.data.tags[t.Name]; ok {
			out = append(out, existing)
			continue
		}
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		s.data.tags[t.Name] = t
		out = append(out, t)
	}
	return out, nil
}

func (s *session) ListTags(_ context.Context, kind store.EntityKind) ([]models.Tag, error) {
	seen := make(map[string]models.Tag)
	collect := func(tags []models.Tag) {
		for _, t := range tags {
			seen[t.Name] = t
		}
	}
	if kind == store.KindPrompt || kind == store.KindAll {
		for _, v := range s.data.versions {
			collect(v.Tags)
		}
	}
	if kind == store.KindCollection || kind == store.KindAll {
		// Collections carry no tags of their own; their tag set is the
		// union of their members' version tags.
		for _, c := range s.data.collections {
			for _, ref := range c.Prompts {
				for _, v := range s.data.versions {
					if v.PromptID == ref.ID {
						collect(v.Tags)
					}
				}
			}
		}
	}
	out := make([]models.Tag, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
