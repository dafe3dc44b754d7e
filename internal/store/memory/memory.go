// Package memory is an in-memory implementation of the store contract. It
// backs the unit tests and local runs without Postgres. Each session works
// on a deep copy of its project's data and swaps it in on Commit, which
// mirrors the caller-driven commit semantics of the Postgres sessions.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

type projectData struct {
	prompts     map[uuid.UUID]*models.Prompt
	versions    map[uuid.UUID]*models.PromptVersion
	collections map[uuid.UUID]*models.Collection
	tags        map[string]models.Tag
}

func newProjectData() *projectData {
	return &projectData{
		prompts:     make(map[uuid.UUID]*models.Prompt),
		versions:    make(map[uuid.UUID]*models.PromptVersion),
		collections: make(map[uuid.UUID]*models.Collection),
		tags:        make(map[string]models.Tag),
	}
}

type Accessor struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*projectData
}

func New() *Accessor {
	return &Accessor{projects: make(map[uuid.UUID]*projectData)}
}

func (a *Accessor) CreateProject(_ context.Context, projectID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.projects[projectID]; ok {
		return fmt.Errorf("project %s: %w", projectID, store.ErrConflict)
	}
	a.projects[projectID] = newProjectData()
	return nil
}

func (a *Accessor) Session(_ context.Context, projectID uuid.UUID) (store.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
	}
	return &session{
		accessor:  a,
		projectID: projectID,
		data:      data.clone(),
	}, nil
}

func (d *projectData) clone() *projectData {
	out := newProjectData()
	for id, p := range d.prompts {
		out.prompts[id] = clonePrompt(p)
	}
	for id, v := range d.versions {
		out.versions[id] = cloneVersion(v)
	}
	for id, c := range d.collections {
		out.collections[id] = cloneCollection(c)
	}
	for name, t := range d.tags {
		out.tags[name] = t
	}
	return out
}

func clonePrompt(p *models.Prompt) *models.Prompt {
	cp := *p
	cp.Collections = append([]models.EntityRef(nil), p.Collections...)
	cp.SharedID = cloneID(p.SharedID)
	cp.SharedOwnerID = cloneID(p.SharedOwnerID)
	return &cp
}

func cloneVersion(v *models.PromptVersion) *models.PromptVersion {
	cv := *v
	cv.Variables = append([]models.Variable(nil), v.Variables...)
	cv.Messages = append([]models.Message(nil), v.Messages...)
	cv.Tags = append([]models.Tag(nil), v.Tags...)
	cv.ModelSettings = append([]byte(nil), v.ModelSettings...)
	if v.Origin != nil {
		origin := *v.Origin
		cv.Origin = &origin
	}
	cv.Meta.ParentEntityID = cloneID(v.Meta.ParentEntityID)
	cv.Meta.ParentEntityVersionID = cloneID(v.Meta.ParentEntityVersionID)
	cv.Meta.ParentProjectID = cloneID(v.Meta.ParentProjectID)
	cv.Meta.ParentAuthorID = cloneID(v.Meta.ParentAuthorID)
	return &cv
}

func cloneCollection(c *models.Collection) *models.Collection {
	cc := *c
	cc.Prompts = append([]models.EntityRef(nil), c.Prompts...)
	cc.SharedID = cloneID(c.SharedID)
	cc.SharedOwnerID = cloneID(c.SharedOwnerID)
	return &cc
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
