package project

import (
	"context"
	"testing"

	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/relation"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/inmem"
	testutil "github.com/xiangenhu/polyuhulab-sub000/tests"
)

var (
	alice = xapi.AgentFromEmail("alice@test.cd")
	bob   = xapi.AgentFromEmail("bob@test.cd")
)

func newTestService(t *testing.T) (*Service, *inmem.Store) {
	t.Helper()
	store := inmem.NewStore()
	validate, _ := testutil.NewValidator()
	resolver := relation.NewResolver(store, testutil.NewLogger(t))
	return NewService(store, resolver, validate), store
}

func mustCreate(t *testing.T, svc *Service, owner xapi.Agent, np NewProject) Project {
	t.Helper()
	proj, err := svc.Create(context.Background(), owner, np)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return proj
}

func verbCount(store *inmem.Store, verbID string) int {
	n := 0
	for _, stmt := range store.Statements() {
		if stmt.Verb.ID == verbID {
			n++
		}
	}
	return n
}

func TestServiceCreate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice, NewProject{Title: "ab"}); err == nil {
		t.Fatal("Create() with a two-letter title should fail validation")
	}

	proj := mustCreate(t, svc, alice, NewProject{
		Title:       "  Photosynthesis Study ",
		Description: "why leaves are green",
		Tags:        []string{"Biology", "year-2"},
	})
	if proj.ID == "" || proj.Version != 1 {
		t.Errorf("Meta = %+v", proj.Meta)
	}
	if proj.Title != "Photosynthesis Study" {
		t.Errorf("Title = %q, want trimmed", proj.Title)
	}
	if proj.Phase != PhasePlanning {
		t.Errorf("Phase = %q, want %q", proj.Phase, PhasePlanning)
	}
	if proj.Tags[0] != "biology" {
		t.Errorf("Tags = %v, want lowercased", proj.Tags)
	}
	if proj.CreatedBy != "alice@test.cd" {
		t.Errorf("CreatedBy = %q", proj.CreatedBy)
	}

	if n := verbCount(store, xapi.VerbCreated.ID); n != 1 {
		t.Errorf("created statements = %d, want 1", n)
	}

	got, err := svc.Get(ctx, alice, proj.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != proj.Title || got.Description != proj.Description {
		t.Errorf("Get() = %+v", got)
	}
}

func TestServiceUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proj := mustCreate(t, svc, alice, NewProject{Title: "Photosynthesis", Description: "draft"})

	updated, err := svc.Update(ctx, alice, proj.ID, UpdateProject{Title: "Photosynthesis II"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "Photosynthesis II" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.Description != "draft" {
		t.Errorf("Description = %q, want untouched", updated.Description)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	// a pointer distinguishes clearing the description from omitting it
	empty := ""
	cleared, err := svc.Update(ctx, alice, proj.ID, UpdateProject{Description: &empty})
	if err != nil {
		t.Fatalf("Update(clear) error = %v", err)
	}
	if cleared.Description != "" {
		t.Errorf("Description = %q, want cleared", cleared.Description)
	}
	if cleared.Title != "Photosynthesis II" {
		t.Errorf("Title = %q, want untouched", cleared.Title)
	}

	// optimistic check
	if _, err := svc.Update(ctx, alice, proj.ID, UpdateProject{Title: "stale edit", ExpectedVersion: 2}); err != document.ErrConflict {
		t.Errorf("Update(stale) error = %v, want ErrConflict", err)
	}
	fresh, err := svc.Update(ctx, alice, proj.ID, UpdateProject{Title: "fresh edit", ExpectedVersion: 3})
	if err != nil {
		t.Fatalf("Update(matching version) error = %v", err)
	}
	if fresh.Version != 4 {
		t.Errorf("Version = %d, want 4", fresh.Version)
	}

	if _, err := svc.Update(ctx, alice, "nope", UpdateProject{Title: "anything"}); err != document.ErrNotFound {
		t.Errorf("Update(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestServiceSetPhase(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	proj := mustCreate(t, svc, alice, NewProject{Title: "Photosynthesis"})

	if _, err := svc.SetPhase(ctx, alice, proj.ID, "victory"); err == nil {
		t.Fatal("SetPhase() with an unknown phase should fail validation")
	}

	moved, err := svc.SetPhase(ctx, alice, proj.ID, PhaseInvestigation)
	if err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}
	if moved.Phase != PhaseInvestigation {
		t.Errorf("Phase = %q", moved.Phase)
	}
	if n := verbCount(store, xapi.VerbAttempted.ID); n != 1 {
		t.Errorf("attempted statements = %d, want 1", n)
	}
	if n := verbCount(store, xapi.VerbCompleted.ID); n != 0 {
		t.Errorf("completed statements = %d, want 0", n)
	}

	done, err := svc.SetPhase(ctx, alice, proj.ID, PhaseComplete)
	if err != nil {
		t.Fatalf("SetPhase(complete) error = %v", err)
	}
	if done.Phase != PhaseComplete {
		t.Errorf("Phase = %q", done.Phase)
	}
	if n := verbCount(store, xapi.VerbCompleted.ID); n != 1 {
		t.Errorf("completed statements = %d, want 1", n)
	}

	var progress []xapi.Statement
	for _, stmt := range store.Statements() {
		if stmt.Verb.ID == xapi.VerbAttempted.ID || stmt.Verb.ID == xapi.VerbCompleted.ID {
			progress = append(progress, stmt)
		}
	}
	for _, stmt := range progress {
		if stmt.Object.ID != DocType.ActivityID(proj.ID) {
			t.Errorf("progress object = %q", stmt.Object.ID)
		}
	}
	if phase := progress[len(progress)-1].StringExtension(xapi.ExtPhase); phase != PhaseComplete {
		t.Errorf("final phase extension = %q", phase)
	}
}

func TestServiceAddAttachment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proj := mustCreate(t, svc, alice, NewProject{Title: "Photosynthesis"})

	withFile, err := svc.AddAttachment(ctx, alice, proj.ID, Attachment{Name: "leaf.jpg", URL: "https://files.test/leaf.jpg"})
	if err != nil {
		t.Fatalf("AddAttachment() error = %v", err)
	}
	if len(withFile.Attachments) != 1 {
		t.Fatalf("Attachments = %+v", withFile.Attachments)
	}
	if withFile.Attachments[0].ID == "" {
		t.Error("attachment id not assigned")
	}

	again, err := svc.AddAttachment(ctx, alice, proj.ID, Attachment{Name: "data.csv", URL: "https://files.test/data.csv"})
	if err != nil {
		t.Fatalf("AddAttachment(second) error = %v", err)
	}
	if len(again.Attachments) != 2 {
		t.Fatalf("Attachments = %+v, want both kept", again.Attachments)
	}
	if again.Attachments[0].Name != "leaf.jpg" || again.Attachments[1].Name != "data.csv" {
		t.Errorf("Attachments = %+v", again.Attachments)
	}
}

func TestServiceList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, alice, NewProject{Title: "Old project"})
	second := mustCreate(t, svc, alice, NewProject{Title: "New project"})
	gone := mustCreate(t, svc, alice, NewProject{Title: "Abandoned"})
	mustCreate(t, svc, bob, NewProject{Title: "Someone else's"})

	if err := svc.SoftDelete(ctx, alice, gone.ID, alice); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	// a later edit moves the older project back to the top
	if _, err := svc.Update(ctx, alice, first.ID, UpdateProject{Title: "Old project, revived"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	projects, err := svc.List(ctx, alice, relation.ActiveOnly, 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("List() = %d projects, want 2", len(projects))
	}
	if projects[0].ID != first.ID || projects[1].ID != second.ID {
		t.Errorf("order = [%q %q], want the revived project first", projects[0].Title, projects[1].Title)
	}

	all, err := svc.List(ctx, alice, relation.IncludeDeleted, 0, 0)
	if err != nil {
		t.Fatalf("List(deleted) error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(deleted) = %d projects, want 3", len(all))
	}
}

func TestServiceCollaborate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	proj := mustCreate(t, svc, alice, NewProject{Title: "Photosynthesis"})
	if _, err := svc.SetPhase(ctx, alice, proj.ID, PhaseAnalysis); err != nil {
		t.Fatalf("SetPhase() error = %v", err)
	}

	if err := svc.Collaborate(ctx, alice, proj.ID, []string{"bob@test.cd", "carol@test.cd"}); err != nil {
		t.Fatalf("Collaborate() error = %v", err)
	}

	var collab *xapi.Statement
	for _, stmt := range store.Statements() {
		if stmt.Verb.ID == xapi.VerbCollaborated.ID {
			s := stmt
			collab = &s
		}
	}
	if collab == nil {
		t.Fatal("no collaborated statement announced")
	}
	if !collab.Actor.Equal(alice) {
		t.Errorf("actor = %+v", collab.Actor)
	}
	if collab.Context == nil || collab.Context.Team == nil {
		t.Fatal("collaborated statement carries no team")
	}
	if len(collab.Context.Team.Member) != 3 {
		t.Errorf("team members = %d, want owner plus two", len(collab.Context.Team.Member))
	}
	if len(collab.Context.ContextActivities.Grouping) != 1 ||
		collab.Context.ContextActivities.Grouping[0].ID != DocType.ActivityID(proj.ID) {
		t.Errorf("grouping = %+v", collab.Context.ContextActivities)
	}
	if phase := collab.StringExtension(xapi.ExtPhase); phase != PhaseAnalysis {
		t.Errorf("phase extension = %q", phase)
	}

	if err := svc.SoftDelete(ctx, alice, proj.ID, alice); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if err := svc.Collaborate(ctx, alice, proj.ID, []string{"bob@test.cd"}); err != document.ErrNotFound {
		t.Errorf("Collaborate(deleted) error = %v, want ErrNotFound", err)
	}
}
