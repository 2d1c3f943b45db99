package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

func stmt(email string, verb xapi.Verb, objectID string, ts time.Time) xapi.Statement {
	return xapi.Statement{
		Actor:     xapi.AgentFromEmail(email),
		Verb:      verb,
		Object:    xapi.Object{ObjectType: "Activity", ID: objectID},
		Timestamp: ts,
	}
}

func TestCompletionRate(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	p1 := xapi.ActivityID("project", "p1")
	p2 := xapi.ActivityID("project", "p2")

	tests := []struct {
		name  string
		stmts []xapi.Statement
		want  float64
	}{
		{name: "no statements", want: 0},
		{
			name: "no attempts",
			stmts: []xapi.Statement{
				stmt("alice@test.cd", xapi.VerbCreated, p1, base),
				stmt("alice@test.cd", xapi.VerbCompleted, p1, base),
			},
			want: 0,
		},
		{
			name: "attempts without completions",
			stmts: []xapi.Statement{
				stmt("alice@test.cd", xapi.VerbAttempted, p1, base),
				stmt("bob@test.cd", xapi.VerbAttempted, p2, base),
			},
			want: 0,
		},
		{
			name: "every attempt matched",
			stmts: []xapi.Statement{
				stmt("alice@test.cd", xapi.VerbAttempted, p1, base),
				stmt("alice@test.cd", xapi.VerbCompleted, p1, base.Add(time.Hour)),
				stmt("bob@test.cd", xapi.VerbAttempted, p2, base),
				stmt("bob@test.cd", xapi.VerbCompleted, p2, base.Add(time.Hour)),
			},
			want: 100,
		},
		{
			name: "half matched",
			stmts: []xapi.Statement{
				stmt("alice@test.cd", xapi.VerbAttempted, p1, base),
				stmt("alice@test.cd", xapi.VerbCompleted, p1, base.Add(time.Hour)),
				stmt("bob@test.cd", xapi.VerbAttempted, p2, base),
			},
			want: 50,
		},
		{
			name: "completion by someone else does not match",
			stmts: []xapi.Statement{
				stmt("alice@test.cd", xapi.VerbAttempted, p1, base),
				stmt("bob@test.cd", xapi.VerbCompleted, p1, base.Add(time.Hour)),
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completionRate(tt.stmts); got != tt.want {
				t.Errorf("completionRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngagementScore(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 10)

	if got := engagementScore(nil, since, until); got != 0 {
		t.Errorf("engagementScore(no statements) = %v, want 0", got)
	}

	// 20 statements, 2 verbs, 2 active days over a 10 day window, no
	// attempts: 100 * (0.4*0.2 + 0.3*0.2 + 0.2*0.2 + 0) = 18.
	var stmts []xapi.Statement
	for i := 0; i < 10; i++ {
		stmts = append(stmts, stmt("alice@test.cd", xapi.VerbCreated, xapi.ActivityID("project", "p1"), since.Add(time.Hour)))
		stmts = append(stmts, stmt("alice@test.cd", xapi.VerbUpdated, xapi.ActivityID("project", "p1"), since.AddDate(0, 0, 1)))
	}
	got := engagementScore(stmts, since, until)
	if math.Abs(got-18) > 1e-9 {
		t.Errorf("engagementScore() = %v, want 18", got)
	}
}

func TestCollaborationIndex(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	p1 := xapi.ActivityID("project", "p1")

	shared := stmt("alice@test.cd", xapi.VerbShared, p1, base)
	shared.SetExtension(xapi.ExtRecipients, []string{"bob@test.cd", "carol@test.cd"})
	collaborated := stmt("alice@test.cd", xapi.VerbCollaborated, p1, base)
	collaborated.Context = &xapi.Context{Team: xapi.NewTeam("", "alice@test.cd", "bob@test.cd")}

	stmts := []xapi.Statement{
		shared,
		collaborated,
		stmt("alice@test.cd", xapi.VerbCreated, p1, base),
		stmt("bob@test.cd", xapi.VerbUpdated, p1, base),
	}

	idx := collaborationIndex(stmts, "alice@test.cd")
	if idx.Score != 50 {
		t.Errorf("Score = %v, want 50", idx.Score)
	}
	if idx.Collaborators != 2 { // bob and carol
		t.Errorf("Collaborators = %d, want 2", idx.Collaborators)
	}

	idx = collaborationIndex(stmts, "")
	if idx.Collaborators != 3 { // alice too
		t.Errorf("Collaborators = %d, want 3", idx.Collaborators)
	}

	if idx := collaborationIndex(nil, ""); idx.Score != 0 || idx.Collaborators != 0 {
		t.Errorf("collaborationIndex(no statements) = %+v, want zero", idx)
	}
}

func TestTopVerbs(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	p1 := xapi.ActivityID("project", "p1")

	var stmts []xapi.Statement
	for i := 0; i < 3; i++ {
		stmts = append(stmts, stmt("alice@test.cd", xapi.VerbUpdated, p1, base))
	}
	stmts = append(stmts,
		stmt("alice@test.cd", xapi.VerbCreated, p1, base),
		stmt("alice@test.cd", xapi.VerbShared, p1, base),
		// no display on this one; the label falls back to the URI tail
		xapi.Statement{
			Actor:     xapi.AgentFromEmail("alice@test.cd"),
			Verb:      xapi.Verb{ID: "http://example.com/verbs/annotated"},
			Object:    xapi.Object{ID: p1},
			Timestamp: base,
		},
	)

	got := topVerbs(stmts, 3)
	want := []VerbCount{
		{Verb: "updated", Count: 3},
		{Verb: "annotated", Count: 1}, // ties rank alphabetically
		{Verb: "created", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("topVerbs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topVerbs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTopProjects(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	direct := xapi.Statement{
		Actor:     xapi.AgentFromEmail("alice@test.cd"),
		Verb:      xapi.VerbAttempted,
		Object:    xapi.NewActivity(xapi.ActivityID("project", "p1"), xapi.ActivityTypeURI("project"), "Photosynthesis"),
		Timestamp: base,
	}
	// an invitation points at its project through the context grouping
	grouped := stmt("alice@test.cd", xapi.VerbInvited, xapi.ActivityID("invitation", "i1"), base)
	grouped.Context = &xapi.Context{ContextActivities: &xapi.ContextActivities{
		Grouping: []xapi.Object{xapi.NewActivity(xapi.ActivityID("project", "p2"), xapi.ActivityTypeURI("project"), "Volcanoes")},
	}}
	unrelated := stmt("alice@test.cd", xapi.VerbLoggedIn, "https://example.com/portal", base)

	got := topProjects([]xapi.Statement{direct, direct, grouped, unrelated}, 0)
	want := []ProjectCount{
		{ProjectID: "p1", Name: "Photosynthesis", Count: 2},
		{ProjectID: "p2", Name: "Volcanoes", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("topProjects() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topProjects()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHourHistogram(t *testing.T) {
	p1 := xapi.ActivityID("project", "p1")
	kolkata := time.FixedZone("IST", 5*3600+1800)

	stmts := []xapi.Statement{
		stmt("alice@test.cd", xapi.VerbCreated, p1, time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)),
		stmt("alice@test.cd", xapi.VerbUpdated, p1, time.Date(2026, 3, 4, 9, 45, 0, 0, time.UTC)),
		stmt("alice@test.cd", xapi.VerbUpdated, p1, time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)),
		// 18:30+05:30 is 13:00 UTC
		stmt("alice@test.cd", xapi.VerbShared, p1, time.Date(2026, 3, 4, 18, 30, 0, 0, kolkata)),
	}

	hours := hourHistogram(stmts)
	wantAt := map[int]int{9: 2, 13: 1, 17: 1}
	for hour, count := range hours {
		if count != wantAt[hour] {
			t.Errorf("hour %d = %d, want %d", hour, count, wantAt[hour])
		}
	}
}
