// Package publish promotes private prompt versions into the public project
// and walks them through moderation. Every multi-project operation here is a
// sequence of independent per-project commits guarded by idempotence keys;
// there is no distributed transaction.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptlane/promptlib/internal/events"
	"github.com/promptlane/promptlib/internal/models"
	"github.com/promptlane/promptlib/internal/prompts"
	"github.com/promptlane/promptlib/internal/store"
)

// Result is the uniform outcome shape the HTTP layer maps onto status codes.
type Result struct {
	OK            bool                  `json:"ok"`
	Error         string                `json:"error,omitempty"`
	ErrorCode     int                   `json:"error_code,omitempty"`
	PromptVersion *models.PromptVersion `json:"prompt_version,omitempty"`
}

func ok(v *models.PromptVersion) Result {
	return Result{OK: true, PromptVersion: v}
}

func fail(code int, format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...), ErrorCode: code}
}

type Engine struct {
	store           store.Accessor
	events          events.Publisher
	publicProjectID uuid.UUID
}

func NewEngine(st store.Accessor, pub events.Publisher, publicProjectID uuid.UUID) *Engine {
	return &Engine{store: st, events: pub, publicProjectID: publicProjectID}
}

// OriginHash derives the publish-dedup key from the identity pair the
// publish call was made with. The encoding keeps keys in a fixed order so
// the hash is deterministic.
func OriginHash(ref models.EntityRef) string {
	payload, _ := json.Marshal(struct {
		ID      uuid.UUID `json:"id"`
		OwnerID uuid.UUID `json:"owner_id"`
	}{ID: ref.ID, OwnerID: ref.OwnerID})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Publish copies one private version into the public project and puts both
// copies on moderation. Publishing the mutable "latest" version first
// freezes it into an immutably named copy so the published content can never
// drift afterwards.
func (e *Engine) Publish(ctx context.Context, projectID, versionID uuid.UUID) Result {
	hash := OriginHash(models.EntityRef{OwnerID: projectID, ID: versionID})

	pub, err := e.store.Session(ctx, e.publicProjectID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open public project: %v", err)
	}
	defer pub.Rollback(ctx)

	if _, err := pub.FindVersionByOriginHash(ctx, hash); err == nil {
		return fail(http.StatusConflict, "version %s is already published", versionID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fail(http.StatusInternalServerError, "check origin hash: %v", err)
	}

	priv, err := e.store.Session(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "project %s not found", projectID)
		}
		return fail(http.StatusInternalServerError, "open project %s: %v", projectID, err)
	}
	defer priv.Rollback(ctx)

	version, err := priv.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "version %s not found", versionID)
		}
		return fail(http.StatusInternalServerError, "load version: %v", err)
	}

	prompt, err := priv.GetPrompt(ctx, version.PromptID)
	if err != nil {
		return fail(http.StatusInternalServerError, "load prompt: %v", err)
	}

	src := version
	cloned := false
	if version.IsLatest() {
		data := prompts.VersionToData(version)
		data.Name = fmt.Sprintf("copy_%s_%s", versionID, uuid.NewString())
		frozen, err := prompts.BuildVersion(ctx, priv, data, version.PromptID)
		if err != nil {
			return fail(http.StatusInternalServerError, "freeze latest version: %v", err)
		}
		src = frozen
		cloned = true
	}

	prevStatus := src.Status
	src.Status = models.StatusOnModeration
	if err := priv.UpdateVersion(ctx, src); err != nil {
		return fail(http.StatusInternalServerError, "update version status: %v", err)
	}
	if err := priv.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit private project: %v", err)
	}

	publicVersion, err := e.createPublicCopy(ctx, pub, prompt, src, projectID, hash)
	if err != nil {
		e.compensate(ctx, projectID, src, cloned, prevStatus)
		if errors.Is(err, store.ErrConflict) {
			// Lost a race against a concurrent publish of the same version.
			return fail(http.StatusConflict, "version %s is already published", versionID)
		}
		return fail(http.StatusInternalServerError, "create public copy: %v", err)
	}

	return ok(publicVersion)
}

func (e *Engine) createPublicCopy(ctx context.Context, pub store.Session, prompt *models.Prompt, src *models.PromptVersion, projectID uuid.UUID, hash string) (*models.PromptVersion, error) {
	publicPrompt := &models.Prompt{
		ID:            uuid.New(),
		OwnerID:       e.publicProjectID,
		Name:          prompt.Name,
		Description:   prompt.Description,
		SharedID:      &prompt.ID,
		SharedOwnerID: &projectID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := pub.CreatePrompt(ctx, publicPrompt); err != nil {
		return nil, err
	}

	data := prompts.VersionToData(src)
	publicVersion, err := prompts.BuildVersion(ctx, pub, data, publicPrompt.ID)
	if err != nil {
		return nil, err
	}
	publicVersion.Status = models.StatusOnModeration
	publicVersion.Origin = &models.EntityRef{OwnerID: projectID, ID: src.ID}
	publicVersion.OriginHash = hash
	if err := pub.UpdateVersion(ctx, publicVersion); err != nil {
		return nil, err
	}
	if err := pub.Commit(ctx); err != nil {
		return nil, err
	}
	return publicVersion, nil
}

// compensate undoes the committed private-side changes after the public copy
// failed. Best effort only: a failure here is logged and the original error
// still surfaces to the caller.
func (e *Engine) compensate(ctx context.Context, projectID uuid.UUID, src *models.PromptVersion, cloned bool, prevStatus models.VersionStatus) {
	sess, err := e.store.Session(ctx, projectID)
	if err != nil {
		slog.Error("publish compensation: open session", "project_id", projectID, "error", err)
		return
	}
	defer sess.Rollback(ctx)

	if cloned {
		err = sess.DeleteVersion(ctx, src.ID)
	} else {
		src.Status = prevStatus
		err = sess.UpdateVersion(ctx, src)
	}
	if err == nil {
		err = sess.Commit(ctx)
	}
	if err != nil {
		slog.Error("publish compensation failed", "project_id", projectID, "version_id", src.ID, "error", err)
	}
}

// ApproveOrReject is the moderator transition on a public version. The
// matching private version (reached through the origin back-reference)
// receives the same status so the author sees the outcome on their own copy.
func (e *Engine) ApproveOrReject(ctx context.Context, versionID uuid.UUID, status models.VersionStatus, rejectDetails string) Result {
	if status != models.StatusPublished && status != models.StatusRejected {
		return fail(http.StatusBadRequest, "status must be %q or %q", models.StatusPublished, models.StatusRejected)
	}

	pub, err := e.store.Session(ctx, e.publicProjectID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open public project: %v", err)
	}
	defer pub.Rollback(ctx)

	version, err := pub.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "public version %s not found", versionID)
		}
		return fail(http.StatusInternalServerError, "load public version: %v", err)
	}

	publicPrompt, err := pub.GetPrompt(ctx, version.PromptID)
	if err != nil {
		return fail(http.StatusInternalServerError, "load public prompt: %v", err)
	}

	version.Status = status
	version.RejectDetails = rejectDetails
	if err := pub.UpdateVersion(ctx, version); err != nil {
		return fail(http.StatusInternalServerError, "update public version: %v", err)
	}
	if err := pub.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit public project: %v", err)
	}

	if version.Origin != nil {
		if err := e.syncPrivateStatus(ctx, *version.Origin, status, rejectDetails); err != nil {
			slog.Error("sync private version status", "origin", version.Origin, "error", err)
		}
	}

	if status == models.StatusPublished {
		if publicPrompt.SharedID != nil && publicPrompt.SharedOwnerID != nil {
			ev := events.PromptPublished{
				SharedOwnerID:  *publicPrompt.SharedOwnerID,
				SharedID:       *publicPrompt.SharedID,
				PublicPromptID: publicPrompt.ID,
			}
			if err := e.events.Publish(ctx, events.TypePromptPublished, ev); err != nil {
				slog.Error("publish prompt_published event", "prompt_id", publicPrompt.ID, "error", err)
			}
		}
	}

	return ok(version)
}

func (e *Engine) syncPrivateStatus(ctx context.Context, origin models.EntityRef, status models.VersionStatus, rejectDetails string) error {
	priv, err := e.store.Session(ctx, origin.OwnerID)
	if err != nil {
		return err
	}
	defer priv.Rollback(ctx)

	version, err := priv.GetVersion(ctx, origin.ID)
	if err != nil {
		return err
	}
	version.Status = status
	version.RejectDetails = rejectDetails
	if err := priv.UpdateVersion(ctx, version); err != nil {
		return err
	}
	return priv.Commit(ctx)
}

// Unpublish deletes the public copy and reverts the private version to
// draft. Only the private version's author may do this.
func (e *Engine) Unpublish(ctx context.Context, currentUserID, versionID uuid.UUID) Result {
	pub, err := e.store.Session(ctx, e.publicProjectID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open public project: %v", err)
	}
	defer pub.Rollback(ctx)

	version, err := pub.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "public version %s not found", versionID)
		}
		return fail(http.StatusInternalServerError, "load public version: %v", err)
	}
	if version.Origin == nil {
		return fail(http.StatusNotFound, "version %s has no publication origin", versionID)
	}

	priv, err := e.store.Session(ctx, version.Origin.OwnerID)
	if err != nil {
		return fail(http.StatusInternalServerError, "open origin project: %v", err)
	}
	defer priv.Rollback(ctx)

	privateVersion, err := priv.GetVersion(ctx, version.Origin.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(http.StatusNotFound, "origin version %s not found", version.Origin.ID)
		}
		return fail(http.StatusInternalServerError, "load origin version: %v", err)
	}
	if privateVersion.AuthorID != currentUserID {
		return fail(http.StatusForbidden, "only the author may unpublish this version")
	}

	publicPrompt, err := pub.GetPrompt(ctx, version.PromptID)
	if err != nil {
		return fail(http.StatusInternalServerError, "load public prompt: %v", err)
	}
	if err := pub.DeletePrompt(ctx, publicPrompt.ID); err != nil {
		return fail(http.StatusInternalServerError, "delete public prompt: %v", err)
	}
	if err := pub.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit public project: %v", err)
	}

	privateVersion.Status = models.StatusDraft
	privateVersion.RejectDetails = ""
	if err := priv.UpdateVersion(ctx, privateVersion); err != nil {
		return fail(http.StatusInternalServerError, "revert private version: %v", err)
	}
	if err := priv.Commit(ctx); err != nil {
		return fail(http.StatusInternalServerError, "commit origin project: %v", err)
	}

	if len(publicPrompt.Collections) > 0 {
		ev := events.PromptDeleted{
			Prompt:      models.EntityRef{OwnerID: e.publicProjectID, ID: publicPrompt.ID},
			Collections: publicPrompt.Collections,
		}
		if err := e.events.Publish(ctx, events.TypePromptDeleted, ev); err != nil {
			slog.Error("publish prompt_deleted event", "prompt_id", publicPrompt.ID, "error", err)
		}
	}

	return ok(privateVersion)
}
