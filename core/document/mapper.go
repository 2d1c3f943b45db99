package document

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

var nowFunc = time.Now // mockable

// Fields the mapper re-asserts after merging a patch; a patch can never
// change them.
var protectedFields = []string{"id", "createdBy", "createdAt", "version"}

// Mapper emulates document CRUD on top of the record store. Bodies live in
// per-owner activity-state documents; every mutation additionally appends an
// announce statement, which is the only way other components discover the
// document. The body is always written before the statement: a failed
// announce leaves an orphaned (invisible) body, never a dangling event.
type Mapper struct {
	client xapi.Client
}

func NewMapper(client xapi.Client) *Mapper {
	return &Mapper{client: client}
}

// Create persists a new document owned by owner and announces it. The
// document's Meta is overwritten: fresh id (unless pre-assigned), version 1
// and creation timestamps. Entities may seed a custom initial status
// (e.g. pending); it defaults to active.
func (m *Mapper) Create(ctx context.Context, owner xapi.Agent, typ Type, doc Document) error {
	meta := doc.DocMeta()
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	now := nowFunc().UTC()
	if meta.Status == "" || meta.Status == StatusDeleted {
		meta.Status = StatusActive
	}
	meta.Version = 1
	meta.CreatedBy = owner.Email()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.DeletedAt = nil
	meta.DeletedBy = ""

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s document", typ.Name)
	}

	activityID := typ.ActivityID(meta.ID)
	if err := m.client.SaveActivityState(ctx, owner, activityID, typ.StateID, data); err != nil {
		return errors.Wrapf(err, "writing %s document", typ.Name)
	}

	stmt := m.announcement(owner, xapi.VerbCreated, typ, meta.ID, docTitle(doc))
	if _, err := m.client.SaveStatement(ctx, stmt); err != nil {
		// the body is already written; it stays orphaned until re-announced
		return errors.Wrapf(err, "announcing %s creation", typ.Name)
	}
	return nil
}

// Get loads a document into dst. Returns ErrNotFound when no body exists.
func (m *Mapper) Get(ctx context.Context, owner xapi.Agent, typ Type, id string, dst Document) error {
	raw, err := m.GetRaw(ctx, owner, typ, id)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decoding %s document", typ.Name)
}

// GetRaw loads a document body verbatim.
func (m *Mapper) GetRaw(ctx context.Context, owner xapi.Agent, typ Type, id string) ([]byte, error) {
	raw, err := m.client.GetActivityState(ctx, owner, typ.ActivityID(id), typ.StateID)
	if err != nil {
		if errors.Cause(err) == xapi.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "reading %s document", typ.Name)
	}
	return raw, nil
}

// Update shallow-merges a JSON patch over the stored body, re-asserts the
// protected fields, bumps the version and announces the update. When
// expectedVersion > 0, a stored version mismatch aborts with ErrConflict;
// with expectedVersion 0 the merge is last-writer-wins: the read and the
// write are two separate store calls and concurrent updates can interleave
// between them.
func (m *Mapper) Update(ctx context.Context, owner xapi.Agent, typ Type, id string, patch []byte, expectedVersion int, dst Document) error {
	return m.merge(ctx, owner, typ, id, patch, expectedVersion, xapi.VerbUpdated, dst)
}

// SoftDelete marks a document deleted, keeping the body readable through Get.
// Deleting an already-deleted document is not an error; it refreshes the
// deletion marker and bumps the version again.
func (m *Mapper) SoftDelete(ctx context.Context, owner xapi.Agent, typ Type, id string, deletedBy xapi.Agent) error {
	patch, err := json.Marshal(map[string]interface{}{
		"status":    StatusDeleted,
		"deletedAt": nowFunc().UTC(),
		"deletedBy": deletedBy.Email(),
	})
	if err != nil {
		return errors.Wrap(err, "encoding deletion patch")
	}
	return m.merge(ctx, owner, typ, id, patch, 0, xapi.VerbDeleted, nil)
}

func (m *Mapper) merge(ctx context.Context, owner xapi.Agent, typ Type, id string, patch []byte, expectedVersion int, verb xapi.Verb, dst Document) error {
	raw, err := m.GetRaw(ctx, owner, typ, id)
	if err != nil {
		return err
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return errors.Wrapf(err, "decoding stored %s document", typ.Name)
	}
	var delta map[string]interface{}
	if err := json.Unmarshal(patch, &delta); err != nil {
		return errors.Wrap(err, "decoding patch")
	}

	version := int(jsonNumber(stored["version"]))
	if expectedVersion > 0 && version != expectedVersion {
		return ErrConflict
	}

	protected := make(map[string]interface{}, len(protectedFields))
	for _, fld := range protectedFields {
		protected[fld] = stored[fld]
	}

	for k, v := range delta {
		stored[k] = v
	}
	for _, fld := range protectedFields {
		stored[fld] = protected[fld]
	}
	stored["version"] = version + 1
	stored["updatedAt"] = nowFunc().UTC()

	merged, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrapf(err, "encoding %s document", typ.Name)
	}
	if err := m.client.SaveActivityState(ctx, owner, typ.ActivityID(id), typ.StateID, merged); err != nil {
		return errors.Wrapf(err, "writing %s document", typ.Name)
	}

	if dst != nil {
		if err := json.Unmarshal(merged, dst); err != nil {
			return errors.Wrapf(err, "decoding %s document", typ.Name)
		}
	}

	title, _ := stored["title"].(string)
	stmt := m.announcement(owner, verb, typ, id, title)
	if _, err := m.client.SaveStatement(ctx, stmt); err != nil {
		return errors.Wrapf(err, "announcing %s %s", typ.Name, verb.Display["en-US"])
	}
	return nil
}

func (m *Mapper) announcement(owner xapi.Agent, verb xapi.Verb, typ Type, id, title string) *xapi.Statement {
	stmt := &xapi.Statement{
		Actor:  owner,
		Verb:   verb,
		Object: xapi.NewActivity(typ.ActivityID(id), typ.ActivityType, title),
	}
	stmt.SetExtension(xapi.ExtStateID, typ.StateID)
	return stmt
}

func docTitle(doc Document) string {
	if titled, ok := doc.(Titled); ok {
		return titled.DocTitle()
	}
	return ""
}

func jsonNumber(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
