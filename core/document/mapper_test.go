package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/inmem"
)

type note struct {
	Meta
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n note) DocTitle() string { return n.Title }

var noteType = NewType("note")

type announceFailClient struct {
	*inmem.Store
}

func (c *announceFailClient) SaveStatement(ctx context.Context, stmt *xapi.Statement) (string, error) {
	return "", xapi.NewUpstreamError("saving statement", 503, errors.New("store unavailable"))
}

func TestMapperCreate(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(store)
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Field notes", Body: "day one"}
	if err := mapper.Create(ctx, owner, noteType, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if doc.ID == "" {
		t.Error("Create() did not assign an id")
	}
	if doc.Version != 1 {
		t.Errorf("Version = %d, want 1", doc.Version)
	}
	if doc.Status != StatusActive {
		t.Errorf("Status = %q, want %q", doc.Status, StatusActive)
	}
	if doc.CreatedBy != "ada@hulab.edu" {
		t.Errorf("CreatedBy = %q", doc.CreatedBy)
	}
	if doc.CreatedAt.IsZero() || !doc.UpdatedAt.Equal(doc.CreatedAt) {
		t.Errorf("timestamps: createdAt=%v updatedAt=%v", doc.CreatedAt, doc.UpdatedAt)
	}

	// round-trip
	var got note
	if err := mapper.Get(ctx, owner, noteType, doc.ID, &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Field notes" || got.Body != "day one" || got.Version != 1 {
		t.Errorf("Get() = %+v", got)
	}

	// announce statement
	stmts := store.Statements()
	if len(stmts) != 1 {
		t.Fatalf("statement count = %d, want 1", len(stmts))
	}
	stmt := stmts[0]
	if stmt.Verb.ID != xapi.VerbCreated.ID {
		t.Errorf("verb = %s", stmt.Verb.ID)
	}
	if want := noteType.ActivityID(doc.ID); stmt.Object.ID != want {
		t.Errorf("object = %s, want %s", stmt.Object.ID, want)
	}
	if stmt.Object.Definition == nil || stmt.Object.Definition.Name["en-US"] != "Field notes" {
		t.Errorf("definition = %+v", stmt.Object.Definition)
	}
	if got := stmt.StringExtension(xapi.ExtStateID); got != noteType.StateID {
		t.Errorf("state-id extension = %q, want %q", got, noteType.StateID)
	}
}

func TestMapperCreateAnnounceFails(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(&announceFailClient{store})
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Orphan"}
	err := mapper.Create(ctx, owner, noteType, doc)
	if err == nil {
		t.Fatal("Create() should surface the announce failure")
	}

	// the body was written before the announce was attempted
	raw, err := store.GetActivityState(ctx, owner, noteType.ActivityID(doc.ID), noteType.StateID)
	if err != nil || len(raw) == 0 {
		t.Errorf("body missing after failed announce: %v", err)
	}
}

func TestMapperGetNotFound(t *testing.T) {
	mapper := NewMapper(inmem.NewStore())
	owner := xapi.AgentFromEmail("ada@hulab.edu")

	var got note
	if err := mapper.Get(context.Background(), owner, noteType, "nope", &got); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMapperUpdate(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(store)
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Draft", Body: "v1"}
	if err := mapper.Create(ctx, owner, noteType, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("merges and bumps version", func(t *testing.T) {
		patch := []byte(`{"title": "Final"}`)
		var got note
		if err := mapper.Update(ctx, owner, noteType, doc.ID, patch, 0, &got); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if got.Title != "Final" {
			t.Errorf("Title = %q, want %q", got.Title, "Final")
		}
		if got.Body != "v1" {
			t.Errorf("Body = %q, unpatched field must survive", got.Body)
		}
		if got.Version != 2 {
			t.Errorf("Version = %d, want 2", got.Version)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Error("UpdatedAt went backwards")
		}
	})

	t.Run("protected fields survive a hostile patch", func(t *testing.T) {
		patch := []byte(`{"id": "evil", "createdBy": "mallory@hulab.edu", "createdAt": "1999-01-01T00:00:00Z", "version": 99, "body": "v2"}`)
		var got note
		if err := mapper.Update(ctx, owner, noteType, doc.ID, patch, 0, &got); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if got.ID != doc.ID {
			t.Errorf("ID = %q, want %q", got.ID, doc.ID)
		}
		if got.CreatedBy != "ada@hulab.edu" {
			t.Errorf("CreatedBy = %q", got.CreatedBy)
		}
		if !got.CreatedAt.Equal(doc.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, doc.CreatedAt)
		}
		if got.Version != 3 {
			t.Errorf("Version = %d, want 3 (mapper-managed)", got.Version)
		}
		if got.Body != "v2" {
			t.Errorf("Body = %q, want %q", got.Body, "v2")
		}
	})

	t.Run("announces updates", func(t *testing.T) {
		var updates int
		for _, stmt := range store.Statements() {
			if stmt.Verb.ID == xapi.VerbUpdated.ID {
				updates++
			}
		}
		if updates != 2 {
			t.Errorf("updated statements = %d, want 2", updates)
		}
	})
}

func TestMapperUpdateExpectedVersion(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(store)
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Guarded"}
	if err := mapper.Create(ctx, owner, noteType, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mapper.Update(ctx, owner, noteType, doc.ID, []byte(`{"body":"x"}`), 5, nil); err != ErrConflict {
		t.Errorf("Update(stale version) error = %v, want ErrConflict", err)
	}
	if err := mapper.Update(ctx, owner, noteType, doc.ID, []byte(`{"body":"x"}`), 1, nil); err != nil {
		t.Errorf("Update(matching version) error = %v", err)
	}
}

func TestMapperVersionMonotonicity(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(store)
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Counted"}
	if err := mapper.Create(ctx, owner, noteType, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	last := doc.Version
	for i := 0; i < 5; i++ {
		var got note
		if err := mapper.Update(ctx, owner, noteType, doc.ID, []byte(`{"body":"tick"}`), 0, &got); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if got.Version != last+1 {
			t.Fatalf("Version = %d after %d, want %d", got.Version, last, last+1)
		}
		last = got.Version
	}
}

func TestMapperSoftDelete(t *testing.T) {
	store := inmem.NewStore()
	mapper := NewMapper(store)
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	deleter := xapi.AgentFromEmail("prof@hulab.edu")
	ctx := context.Background()

	doc := &note{Title: "Ephemeral"}
	if err := mapper.Create(ctx, owner, noteType, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mapper.SoftDelete(ctx, owner, noteType, doc.ID, deleter); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	var got note
	if err := mapper.Get(ctx, owner, noteType, doc.ID, &got); err != nil {
		t.Fatalf("Get() after delete error = %v, body must stay readable", err)
	}
	if got.Status != StatusDeleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusDeleted)
	}
	if got.DeletedBy != "prof@hulab.edu" {
		t.Errorf("DeletedBy = %q", got.DeletedBy)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	// deleting again is fine and keeps the document deleted
	if err := mapper.SoftDelete(ctx, owner, noteType, doc.ID, deleter); err != nil {
		t.Fatalf("second SoftDelete() error = %v", err)
	}
	if err := mapper.Get(ctx, owner, noteType, doc.ID, &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusDeleted || got.Version != 3 {
		t.Errorf("after repeat delete: status=%q version=%d", got.Status, got.Version)
	}

	var deletes int
	for _, stmt := range store.Statements() {
		if stmt.Verb.ID == xapi.VerbDeleted.ID {
			deletes++
		}
	}
	if deletes != 2 {
		t.Errorf("deleted statements = %d, want 2", deletes)
	}
}

func TestTypeDerivation(t *testing.T) {
	typ := NewType("project")
	if typ.StateID != "project-data" {
		t.Errorf("StateID = %q", typ.StateID)
	}
	if typ.ActivityID("abc") != typ.ObjectPrefix+"abc" {
		t.Errorf("ActivityID = %q", typ.ActivityID("abc"))
	}

	id, ok := typ.DocumentID(typ.ActivityID("abc"))
	if !ok || id != "abc" {
		t.Errorf("DocumentID() = %q, %v", id, ok)
	}
	if _, ok := typ.DocumentID("https://other.example/xapi/course/abc"); ok {
		t.Error("DocumentID() matched a foreign URI")
	}
	if _, ok := typ.DocumentID(typ.ObjectPrefix); ok {
		t.Error("DocumentID() matched an empty id")
	}
}

func TestSnapshot(t *testing.T) {
	owner := xapi.AgentFromEmail("ada@hulab.edu")
	now := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	doc := note{
		Meta:  Meta{ID: "n1", Status: StatusActive, Version: 4, CreatedBy: owner.Email(), CreatedAt: now, UpdatedAt: now},
		Title: "Snap",
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	snap, err := NewSnapshot(raw, owner)
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	if snap.Meta.ID != "n1" || snap.Meta.Version != 4 {
		t.Errorf("Meta = %+v", snap.Meta)
	}

	var got note
	if err := snap.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Title != "Snap" {
		t.Errorf("Title = %q", got.Title)
	}
}
