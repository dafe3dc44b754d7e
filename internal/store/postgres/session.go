package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/store"
)

type session struct {
	projectID uuid.UUID
	conn      *pgxpool.Conn
	tx        pgx.Tx
	done      bool
}

func (s *session) ProjectID() uuid.UUID { return s.projectID }

func (s *session) Commit(ctx context.Context) error {
	if s.done {
		return fmt.Errorf("session already finished")
	}
	s.done = true
	defer s.conn.Release()
	if err := s.tx.Commit(ctx); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.conn.Release()
	return s.tx.Rollback(ctx)
}

const promptColumns = "id, name, description, collections, shared_id, shared_owner_id, created_at"

func (s *session) scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	var collections []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &collections, &p.SharedID, &p.SharedOwnerID, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(collections, &p.Collections); err != nil {
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	p.OwnerID = s.projectID
	return &p, nil
}

func (s *session) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, err := s.scanPrompt(s.tx.QueryRow(ctx,
		"SELECT "+promptColumns+" FROM prompts WHERE id = $1", id))
	if err != nil {
		return nil, wrapErr("get prompt", err)
	}
	return p, nil
}

func (s *session) GetPromptBySharedID(ctx context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Prompt, error) {
	p, err := s.scanPrompt(s.tx.QueryRow(ctx,
		"SELECT "+promptColumns+" FROM prompts WHERE shared_owner_id = $1 AND shared_id = $2",
		sharedOwnerID, sharedID))
	if err != nil {
		return nil, wrapErr("get prompt by shared id", err)
	}
	return p, nil
}

func (s *session) GetPromptByLineage(ctx context.Context, parentEntityID, parentProjectID uuid.UUID) (*models.Prompt, error) {
	p, err := s.scanPrompt(s.tx.QueryRow(ctx,
		`SELECT `+prefixedPromptColumns+` FROM prompts p
		 JOIN prompt_versions v ON v.prompt_id = p.id
		 WHERE v.meta->>'parent_entity_id' = $1 AND v.meta->>'parent_project_id' = $2
		 LIMIT 1`,
		parentEntityID.String(), parentProjectID.String()))
	if err != nil {
		return nil, wrapErr("get prompt by lineage", err)
	}
	return p, nil
}

const prefixedPromptColumns = "p.id, p.name, p.description, p.collections, p.shared_id, p.shared_owner_id, p.created_at"

func (s *session) ListPrompts(ctx context.Context, limit, offset int) ([]models.Prompt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.tx.Query(ctx,
		"SELECT "+promptColumns+" FROM prompts ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, wrapErr("list prompts", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		p, err := s.scanPrompt(rows)
		if err != nil {
			return nil, wrapErr("scan prompt", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

func (s *session) CreatePrompt(ctx context.Context, p *models.Prompt) error {
	collections, err := json.Marshal(orEmpty(p.Collections))
	if err != nil {
		return fmt.Errorf("encode collections: %w", err)
	}
	_, err = s.tx.Exec(ctx,
		`INSERT INTO prompts (id, name, description, collections, shared_id, shared_owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))`,
		p.ID, p.Name, p.Description, collections, p.SharedID, p.SharedOwnerID, nullTime(p.CreatedAt))
	if err != nil {
		return wrapErr("insert prompt", err)
	}
	return nil
}

func (s *session) UpdatePrompt(ctx context.Context, p *models.Prompt) error {
	collections, err := json.Marshal(orEmpty(p.Collections))
	if err != nil {
		return fmt.Errorf("encode collections: %w", err)
	}
	tag, err := s.tx.Exec(ctx,
		`UPDATE prompts SET name = $2, description = $3, collections = $4, shared_id = $5, shared_owner_id = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, collections, p.SharedID, p.SharedOwnerID)
	if err != nil {
		return wrapErr("update prompt", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prompt %s: %w", p.ID, store.ErrNotFound)
	}
	return nil
}

func (s *session) DeletePrompt(ctx context.Context, id uuid.UUID) error {
	tag, err := s.tx.Exec(ctx, "DELETE FROM prompts WHERE id = $1", id)
	if err != nil {
		return wrapErr("delete prompt", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prompt %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *session) FilterExistingPromptIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.tx.Query(ctx, "SELECT id FROM prompts WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, wrapErr("filter prompt ids", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan prompt id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const versionColumns = `id, prompt_id, name, status, author_id, context, model_settings,
	variables, messages, tags, meta, origin, origin_hash, reject_details, created_at`

func scanVersion(row pgx.Row) (*models.PromptVersion, error) {
	var v models.PromptVersion
	var variables, messages, tags, meta, origin []byte
	err := row.Scan(&v.ID, &v.PromptID, &v.Name, &v.Status, &v.AuthorID, &v.Context,
		&v.ModelSettings, &variables, &messages, &tags, &meta, &origin, &v.OriginHash,
		&v.RejectDetails, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variables, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal(messages, &v.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal(tags, &v.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(meta, &v.Meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	if origin != nil {
		v.Origin = &models.EntityRef{}
		if err := json.Unmarshal(origin, v.Origin); err != nil {
			return nil, fmt.Errorf("decode origin: %w", err)
		}
	}
	return &v, nil
}

func (s *session) GetVersion(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	v, err := scanVersion(s.tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM prompt_versions WHERE id = $1", id))
	if err != nil {
		return nil, wrapErr("get version", err)
	}
	return v, nil
}

func (s *session) GetVersionByName(ctx context.Context, promptID uuid.UUID, name string) (*models.PromptVersion, error) {
	v, err := scanVersion(s.tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM prompt_versions WHERE prompt_id = $1 AND name = $2",
		promptID, name))
	if err != nil {
		return nil, wrapErr("get version by name", err)
	}
	return v, nil
}

func (s *session) FindVersionByOriginHash(ctx context.Context, hash string) (*models.PromptVersion, error) {
	v, err := scanVersion(s.tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM prompt_versions WHERE origin_hash = $1", hash))
	if err != nil {
		return nil, wrapErr("find version by origin hash", err)
	}
	return v, nil
}

func (s *session) ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	rows, err := s.tx.Query(ctx,
		"SELECT "+versionColumns+" FROM prompt_versions WHERE prompt_id = $1 ORDER BY created_at",
		promptID)
	if err != nil {
		return nil, wrapErr("list versions", err)
	}
	defer rows.Close()

	var versions []models.PromptVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, wrapErr("scan version", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func (s *session) CreateVersion(ctx context.Context, v *models.PromptVersion) error {
	args, err := versionArgs(v)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx,
		`INSERT INTO prompt_versions (id, prompt_id, name, status, author_id, context, model_settings,
			variables, messages, tags, meta, origin, origin_hash, reject_details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, now()))`,
		args...)
	if err != nil {
		return wrapErr("insert version", err)
	}
	return nil
}

func (s *session) UpdateVersion(ctx context.Context, v *models.PromptVersion) error {
	args, err := versionArgs(v)
	if err != nil {
		return err
	}
	tag, err := s.tx.Exec(ctx,
		`UPDATE prompt_versions SET prompt_id = $2, name = $3, status = $4, author_id = $5, context = $6,
			model_settings = $7, variables = $8, messages = $9, tags = $10, meta = $11, origin = $12,
			origin_hash = $13, reject_details = $14
		 WHERE id = $1`,
		args[:14]...)
	if err != nil {
		return wrapErr("update version", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", v.ID, store.ErrNotFound)
	}
	return nil
}

func versionArgs(v *models.PromptVersion) ([]any, error) {
	variables, err := json.Marshal(orEmpty(v.Variables))
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	messages, err := json.Marshal(orEmpty(v.Messages))
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	tags, err := json.Marshal(orEmpty(v.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	meta, err := json.Marshal(v.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	var origin []byte
	if v.Origin != nil {
		origin, err = json.Marshal(v.Origin)
		if err != nil {
			return nil, fmt.Errorf("encode origin: %w", err)
		}
	}
	return []any{
		v.ID, v.PromptID, v.Name, v.Status, v.AuthorID, v.Context, v.ModelSettings,
		variables, messages, tags, meta, origin, v.OriginHash, v.RejectDetails,
		nullTime(v.CreatedAt),
	}, nil
}

func (s *session) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	tag, err := s.tx.Exec(ctx, "DELETE FROM prompt_versions WHERE id = $1", id)
	if err != nil {
		return wrapErr("delete version", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", id, store.ErrNotFound)
	}
	return nil
}

const collectionColumns = "id, name, description, author_id, status, prompts, shared_id, shared_owner_id, created_at"

func (s *session) scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	var prompts []byte
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.AuthorID, &c.Status, &prompts,
		&c.SharedID, &c.SharedOwnerID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prompts, &c.Prompts); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	c.OwnerID = s.projectID
	return &c, nil
}

func (s *session) GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	c, err := s.scanCollection(s.tx.QueryRow(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE id = $1", id))
	if err != nil {
		return nil, wrapErr("get collection", err)
	}
	return c, nil
}

func (s *session) FindCollectionBySharedID(ctx context.Context, sharedOwnerID, sharedID uuid.UUID) (*models.Collection, error) {
	c, err := s.scanCollection(s.tx.QueryRow(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE shared_owner_id = $1 AND shared_id = $2",
		sharedOwnerID, sharedID))
	if err != nil {
		return nil, wrapErr("find collection by shared id", err)
	}
	return c, nil
}

func (s *session) ListCollections(ctx context.Context, limit, offset int) ([]models.Collection, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.tx.Query(ctx,
		"SELECT "+collectionColumns+" FROM collections ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, wrapErr("list collections", err)
	}
	defer rows.Close()

	var collections []models.Collection
	for rows.Next() {
		c, err := s.scanCollection(rows)
		if err != nil {
			return nil, wrapErr("scan collection", err)
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

func (s *session) CreateCollection(ctx context.Context, c *models.Collection) error {
	prompts, err := json.Marshal(orEmpty(c.Prompts))
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}
	_, err = s.tx.Exec(ctx,
		`INSERT INTO collections (id, name, description, author_id, status, prompts, shared_id, shared_owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))`,
		c.ID, c.Name, c.Description, c.AuthorID, c.Status, prompts, c.SharedID, c.SharedOwnerID, nullTime(c.CreatedAt))
	if err != nil {
		return wrapErr("insert collection", err)
	}
	return nil
}

func (s *session) UpdateCollection(ctx context.Context, c *models.Collection) error {
	prompts, err := json.Marshal(orEmpty(c.Prompts))
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}
	tag, err := s.tx.Exec(ctx,
		`UPDATE collections SET name = $2, description = $3, status = $4, prompts = $5, shared_id = $6, shared_owner_id = $7
		 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Status, prompts, c.SharedID, c.SharedOwnerID)
	if err != nil {
		return wrapErr("update collection", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %s: %w", c.ID, store.ErrNotFound)
	}
	return nil
}

func (s *session) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	tag, err := s.tx.Exec(ctx, "DELETE FROM collections WHERE id = $1", id)
	if err != nil {
		return wrapErr("delete collection", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *session) ResolveTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error) {
	out := make([]models.Tag, 0, len(tags))
	for _, t := range tags {
		var resolved models.Tag
		err := s.tx.QueryRow(ctx, "SELECT id, name FROM tags WHERE name = $1", t.Name).
			Scan(&resolved.ID, &resolved.Name)
		if err == nil {
			out = append(out, resolved)
			continue
		}
		if err != pgx.ErrNoRows {
			return nil, wrapErr("lookup tag", err)
		}
		resolved = models.Tag{ID: uuid.New(), Name: t.Name}
		if _, err := s.tx.Exec(ctx, "INSERT INTO tags (id, name) VALUES ($1, $2)", resolved.ID, resolved.Name); err != nil {
			return nil, wrapErr("insert tag", err)
		}
		out = append(out, resolved)
	}
	return out, nil
}

// tagStrategy is the fixed strategy table for tag listing: one entry per
// entity kind, selecting the tag sets reachable from that kind.
var tagStrategies = map[store.EntityKind]string{
	store.KindPrompt: `
		SELECT DISTINCT t.value->>'id', t.value->>'name'
		FROM prompt_versions v, jsonb_array_elements(v.tags) t`,
	store.KindCollection: `
		SELECT DISTINCT t.value->>'id', t.value->>'name'
		FROM collections c
		JOIN jsonb_array_elements(c.prompts) m ON true
		JOIN prompt_versions v ON v.prompt_id = (m.value->>'id')::uuid
		JOIN jsonb_array_elements(v.tags) t ON true`,
}

func (s *session) ListTags(ctx context.Context, kind store.EntityKind) ([]models.Tag, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	kinds := []store.EntityKind{kind}
	if kind == store.KindAll {
		kinds = []store.EntityKind{store.KindPrompt, store.KindCollection}
	}

	seen := make(map[string]models.Tag)
	for _, k := range kinds {
		rows, err := s.tx.Query(ctx, tagStrategies[k]+" ORDER BY 2")
		if err != nil {
			return nil, wrapErr("list tags", err)
		}
		for rows.Next() {
			var idStr, name string
			if err := rows.Scan(&idStr, &name); err != nil {
				rows.Close()
				return nil, wrapErr("scan tag", err)
			}
			id, _ := uuid.Parse(idStr)
			seen[name] = models.Tag{ID: id, Name: name}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, wrapErr("list tags", err)
		}
	}

	out := make([]models.Tag, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// nullTime lets the column default fill in unset timestamps.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
