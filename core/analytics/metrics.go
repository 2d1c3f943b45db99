package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

type (
	// VerbCount is one row of a verb-frequency breakdown.
	VerbCount struct {
		Verb  string `json:"verb"`
		Count int    `json:"count"`
	}

	// UserRank is one row of an activity or collaboration ranking.
	UserRank struct {
		Email string `json:"email"`
		Count int    `json:"count"`
	}

	// ProjectCount is one row of a per-project activity breakdown.
	ProjectCount struct {
		ProjectID string `json:"projectId"`
		Name      string `json:"name,omitempty"`
		Count     int    `json:"count"`
	}

	// CollaborationIndex scores how collaborative a statement set is:
	// the share of collaborative verbs, scaled to 0..100, plus the number
	// of distinct people involved in them.
	CollaborationIndex struct {
		Score         float64 `json:"score"`
		Collaborators int     `json:"collaborators"`
	}

	// Contributor summarizes one actor's part in a project.
	Contributor struct {
		Email      string `json:"email"`
		Statements int    `json:"statements"`
		Verbs      int    `json:"verbs"` // distinct
	}

	// NetworkNode is a person in the collaboration graph.
	NetworkNode struct {
		Email  string `json:"email"`
		Degree int    `json:"degree"` // distinct neighbours
	}

	// NetworkEdge connects two people who collaborated; Source sorts before
	// Target. Weight counts the statements connecting them.
	NetworkEdge struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Weight int    `json:"weight"`
	}

	// Overview is the portal-wide (or single-subject) dashboard payload.
	Overview struct {
		Subject         string             `json:"subject,omitempty"`
		Since           time.Time          `json:"since"`
		Until           time.Time          `json:"until"`
		TotalActivities int                `json:"totalActivities"`
		UniqueUsers     int                `json:"uniqueUsers"`
		CompletionRate  float64            `json:"completionRate"`
		EngagementScore float64            `json:"engagementScore"`
		Collaboration   CollaborationIndex `json:"collaboration"`
		TopVerbs        []VerbCount        `json:"topVerbs,omitempty"`
		HourlyActivity  [24]int            `json:"hourlyActivity"`
		TopUsers        []UserRank         `json:"topUsers,omitempty"`
		Partial         bool               `json:"partial,omitempty"`
	}

	// UserAnalytics is the per-user dashboard payload.
	UserAnalytics struct {
		Email           string             `json:"email"`
		Since           time.Time          `json:"since"`
		Until           time.Time          `json:"until"`
		TotalActivities int                `json:"totalActivities"`
		ActiveDays      int                `json:"activeDays"`
		CompletionRate  float64            `json:"completionRate"`
		EngagementScore float64            `json:"engagementScore"`
		Collaboration   CollaborationIndex `json:"collaboration"`
		Verbs           []VerbCount        `json:"verbs,omitempty"`
		HourlyActivity  [24]int            `json:"hourlyActivity"`
		TopProjects     []ProjectCount     `json:"topProjects,omitempty"`
		Partial         bool               `json:"partial,omitempty"`
	}

	// ProjectAnalytics is the per-project dashboard payload.
	ProjectAnalytics struct {
		ProjectID       string         `json:"projectId"`
		Since           time.Time      `json:"since"`
		Until           time.Time      `json:"until"`
		TotalActivities int            `json:"totalActivities"`
		Contributors    []Contributor  `json:"contributors,omitempty"`
		Phases          map[string]int `json:"phases,omitempty"`
		CompletionRate  float64        `json:"completionRate"`
		FirstActivity   *time.Time     `json:"firstActivity,omitempty"`
		LastActivity    *time.Time     `json:"lastActivity,omitempty"`
		Partial         bool           `json:"partial,omitempty"`
	}

	// CollaborationAnalytics is the collaboration-network payload. With a
	// subject, the graph is trimmed to the subject's neighbourhood.
	CollaborationAnalytics struct {
		Subject          string        `json:"subject,omitempty"`
		Since            time.Time     `json:"since"`
		Until            time.Time     `json:"until"`
		Nodes            []NetworkNode `json:"nodes,omitempty"`
		Edges            []NetworkEdge `json:"edges,omitempty"`
		TopCollaborators []UserRank    `json:"topCollaborators,omitempty"`
		Teams            int           `json:"teams"`
		Partial          bool          `json:"partial,omitempty"`
	}
)

// completionRate is the share of attempted statements whose (actor, object)
// pair also has a completed statement in the window, as a percentage.
// No attempts means 0; every attempt matched means 100.
func completionRate(stmts []xapi.Statement) float64 {
	completed := make(map[string]bool)
	for _, stmt := range stmts {
		if stmt.Verb.ID == xapi.VerbCompleted.ID {
			completed[stmt.Actor.Email()+"|"+stmt.Object.ID] = true
		}
	}

	attempts, matched := 0, 0
	for _, stmt := range stmts {
		if stmt.Verb.ID != xapi.VerbAttempted.ID {
			continue
		}
		attempts++
		if completed[stmt.Actor.Email()+"|"+stmt.Object.ID] {
			matched++
		}
	}
	if attempts == 0 {
		return 0
	}
	return 100 * float64(matched) / float64(attempts)
}

// engagementScore blends activity volume (40%, saturating at 100
// statements), verb diversity (30%, saturating at 10 verbs), day coverage
// (20%) and completion rate (10%) into a 0..100 score.
func engagementScore(stmts []xapi.Statement, since, until time.Time) float64 {
	if len(stmts) == 0 {
		return 0
	}
	verbs := make(map[string]bool)
	for _, stmt := range stmts {
		verbs[stmt.Verb.ID] = true
	}

	elapsed := until.Sub(since).Hours() / 24
	if elapsed < 1 {
		elapsed = 1
	}
	volume := math.Min(1, float64(len(stmts))/100)
	diversity := math.Min(1, float64(len(verbs))/10)
	coverage := math.Min(1, float64(activeDays(stmts))/elapsed)
	completion := completionRate(stmts) / 100

	return 100 * (0.4*volume + 0.3*diversity + 0.2*coverage + 0.1*completion)
}

// collaborationIndex scores the share of collaborative verbs and counts the
// distinct people they involve, self excluded when given.
func collaborationIndex(stmts []xapi.Statement, self string) CollaborationIndex {
	if len(stmts) == 0 {
		return CollaborationIndex{}
	}

	self = strings.ToLower(self)
	collabs := 0
	people := make(map[string]bool)
	for _, stmt := range stmts {
		if !xapi.IsCollaborative(stmt.Verb.ID) {
			continue
		}
		collabs++
		for _, email := range participants(stmt) {
			if email != self {
				people[email] = true
			}
		}
	}

	return CollaborationIndex{
		Score:         round2(math.Min(100, 100*float64(collabs)/float64(len(stmts)))),
		Collaborators: len(people),
	}
}

// participants lists everyone a statement involves: the actor, the context
// team members and the recipients extension. Emails come back lowercased.
func participants(stmt xapi.Statement) []string {
	var emails []string
	add := func(email string) {
		email = strings.ToLower(email)
		if email == "" {
			return
		}
		for _, seen := range emails {
			if seen == email {
				return
			}
		}
		emails = append(emails, email)
	}

	add(stmt.Actor.Email())
	if stmt.Context != nil && stmt.Context.Team != nil {
		for _, member := range stmt.Context.Team.Member {
			add(member.Email())
		}
	}
	for _, email := range stmt.StringsExtension(xapi.ExtRecipients) {
		add(email)
	}
	return emails
}

func activeDays(stmts []xapi.Statement) int {
	days := make(map[string]bool)
	for _, stmt := range stmts {
		days[stmt.Timestamp.UTC().Format("2006-01-02")] = true
	}
	return len(days)
}

// topVerbs ranks verbs by frequency, most frequent first, ties by label.
func topVerbs(stmts []xapi.Statement, max int) []VerbCount {
	counts := make(map[string]int)
	for _, stmt := range stmts {
		counts[verbLabel(stmt.Verb)]++
	}

	verbs := make([]VerbCount, 0, len(counts))
	for verb, count := range counts {
		verbs = append(verbs, VerbCount{Verb: verb, Count: count})
	}
	sort.Slice(verbs, func(i, j int) bool {
		if verbs[i].Count != verbs[j].Count {
			return verbs[i].Count > verbs[j].Count
		}
		return verbs[i].Verb < verbs[j].Verb
	})
	if max > 0 && len(verbs) > max {
		verbs = verbs[:max]
	}
	return verbs
}

// topUsers ranks actors by statement count, most active first, ties by email.
func topUsers(stmts []xapi.Statement, max int) []UserRank {
	counts := make(map[string]int)
	for _, stmt := range stmts {
		if email := strings.ToLower(stmt.Actor.Email()); email != "" {
			counts[email]++
		}
	}

	ranks := make([]UserRank, 0, len(counts))
	for email, count := range counts {
		ranks = append(ranks, UserRank{Email: email, Count: count})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Count != ranks[j].Count {
			return ranks[i].Count > ranks[j].Count
		}
		return ranks[i].Email < ranks[j].Email
	})
	if max > 0 && len(ranks) > max {
		ranks = ranks[:max]
	}
	return ranks
}

// topProjects ranks the projects a statement set touches, directly as the
// object or through the context grouping. Names come from the most recent
// statement that carries one.
func topProjects(stmts []xapi.Statement, max int) []ProjectCount {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, stmt := range stmts {
		for _, obj := range projectRefs(stmt) {
			_, id := xapi.SplitActivityID(obj.ID)
			counts[id]++
			if _, ok := names[id]; !ok && obj.Definition != nil {
				if name := obj.Definition.Name["en-US"]; name != "" {
					names[id] = name
				}
			}
		}
	}

	projects := make([]ProjectCount, 0, len(counts))
	for id, count := range counts {
		projects = append(projects, ProjectCount{ProjectID: id, Name: names[id], Count: count})
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Count != projects[j].Count {
			return projects[i].Count > projects[j].Count
		}
		return projects[i].ProjectID < projects[j].ProjectID
	})
	if max > 0 && len(projects) > max {
		projects = projects[:max]
	}
	return projects
}

// projectRefs returns the project activities a statement refers to: its
// object when that is a project, otherwise any projects in the context
// grouping (invitations point at their project that way).
func projectRefs(stmt xapi.Statement) []xapi.Object {
	if kind, _ := xapi.SplitActivityID(stmt.Object.ID); kind == "project" {
		return []xapi.Object{stmt.Object}
	}
	if stmt.Context == nil || stmt.Context.ContextActivities == nil {
		return nil
	}
	var refs []xapi.Object
	for _, obj := range stmt.Context.ContextActivities.Grouping {
		if kind, _ := xapi.SplitActivityID(obj.ID); kind == "project" {
			refs = append(refs, obj)
		}
	}
	return refs
}

func hourHistogram(stmts []xapi.Statement) [24]int {
	var hours [24]int
	for _, stmt := range stmts {
		hours[stmt.Timestamp.UTC().Hour()]++
	}
	return hours
}

func verbLabel(verb xapi.Verb) string {
	if name := verb.Display["en-US"]; name != "" {
		return name
	}
	if i := strings.LastIndex(verb.ID, "/"); i >= 0 {
		return verb.ID[i+1:]
	}
	return verb.ID
}

// round2 trims a percentage to two decimals so payloads stay readable.
func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
