package relation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/comment"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/share"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// maxScan bounds how many statements any single listing walks. Entities
// older than the horizon fall off listings before they fall out of storage.
const maxScan = 500

// StatusFilter selects which documents a listing returns.
type StatusFilter int

const (
	ActiveOnly StatusFilter = iota
	IncludeDeleted
)

type (
	// Team is a recurring set of collaborators, grouped by identical member
	// sets across collaborated statements.
	Team struct {
		Key          string   // sorted member emails joined by ","
		Members      []string // emails
		Projects     []string // distinct project object URIs
		Statements   int
		LastActivity time.Time
	}

	// Grant is one share as seen by a recipient. When the share record
	// cannot be dereferenced the grant degrades to what the statement alone
	// says, flagged by Degraded.
	Grant struct {
		Sharer       xapi.Agent
		Record       share.Record // zero value when degraded
		ResourceType string
		ResourceID   string
		ResourceName string
		Message      string
		SharedAt     time.Time
		Degraded     bool
	}

	// Resolver answers relationship questions the record store cannot:
	// which documents an agent owns, who they collaborate with, what was
	// shared with them and what a comment thread looks like. All answers
	// come from bounded statement scans plus per-item dereferences; a
	// dereference failure costs one item, never the listing.
	Resolver struct {
		client xapi.Client
		mapper *document.Mapper
		logger core.Logger
	}
)

func NewResolver(client xapi.Client, logger core.Logger) *Resolver {
	return &Resolver{
		client: client,
		mapper: document.NewMapper(client),
		logger: logger,
	}
}

// ListOwned returns the documents of one type created by owner, ordered by
// most recent related activity, paginated by offset/limit. Deleted documents
// are dropped unless status is IncludeDeleted.
func (r *Resolver) ListOwned(ctx context.Context, owner xapi.Agent, typ document.Type, status StatusFilter, offset, limit int) ([]document.Snapshot, error) {
	created, err := r.collect(ctx, xapi.Filter{Agent: &owner, Verb: xapi.VerbCreated.ID, Limit: maxScan})
	if err != nil {
		return nil, err
	}

	// the created announce is the only discoverability path; dedupe ids in
	// case a retried announce appended twice
	seen := make(map[string]bool)
	var ids []string
	for _, stmt := range created {
		id, ok := typ.DocumentID(stmt.Object.ID)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	lastActivity, err := r.lastActivityIndex(ctx, owner)
	if err != nil {
		return nil, err
	}

	snaps := make([]document.Snapshot, 0, len(ids))
	for _, id := range ids {
		raw, err := r.mapper.GetRaw(ctx, owner, typ, id)
		if err != nil {
			r.logger.Warn(fmt.Sprintf("listing %s: skipping %s: %v", typ.Name, id, err))
			continue
		}
		snap, err := document.NewSnapshot(raw, owner)
		if err != nil {
			r.logger.Warn(fmt.Sprintf("listing %s: skipping %s: %v", typ.Name, id, err))
			continue
		}
		if status == ActiveOnly && snap.Meta.IsDeleted() {
			continue
		}
		snap.LastActivity = snap.Meta.UpdatedAt
		if ts, ok := lastActivity[typ.ActivityID(id)]; ok && ts.After(snap.LastActivity) {
			snap.LastActivity = ts
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].LastActivity.After(snaps[j].LastActivity) })
	return paginate(snaps, offset, limit), nil
}

// lastActivityIndex maps object URIs to the owner's most recent statement
// touching them, from one bounded scan of the owner's stream.
func (r *Resolver) lastActivityIndex(ctx context.Context, owner xapi.Agent) (map[string]time.Time, error) {
	stmts, err := r.collect(ctx, xapi.Filter{Agent: &owner, Limit: maxScan})
	if err != nil {
		return nil, err
	}
	idx := make(map[string]time.Time, len(stmts))
	for _, stmt := range stmts { // most recent first: first hit wins
		if _, ok := idx[stmt.Object.ID]; !ok {
			idx[stmt.Object.ID] = stmt.Timestamp
		}
	}
	return idx, nil
}

// Teams reconstructs the agent's collaboration groups in [since, until):
// collaborated statements whose team includes the agent, grouped by
// identical member sets, most recently active first.
func (r *Resolver) Teams(ctx context.Context, agent xapi.Agent, since, until time.Time) ([]Team, error) {
	stmts, err := r.collect(ctx, xapi.Filter{Verb: xapi.VerbCollaborated.ID, Since: since, Until: until, Limit: maxScan})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Team)
	projectSeen := make(map[string]map[string]bool)
	for _, stmt := range stmts {
		if stmt.Context == nil || stmt.Context.Team == nil {
			continue
		}
		members, includes := teamMembers(stmt.Context.Team, stmt.Actor, agent)
		if !includes {
			continue
		}
		key := strings.Join(members, ",")
		team, ok := byKey[key]
		if !ok {
			team = &Team{Key: key, Members: members}
			byKey[key] = team
			projectSeen[key] = make(map[string]bool)
		}
		team.Statements++
		if stmt.Timestamp.After(team.LastActivity) {
			team.LastActivity = stmt.Timestamp
		}
		if !projectSeen[key][stmt.Object.ID] {
			projectSeen[key][stmt.Object.ID] = true
			team.Projects = append(team.Projects, stmt.Object.ID)
		}
	}

	teams := make([]Team, 0, len(byKey))
	for _, team := range byKey {
		teams = append(teams, *team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].LastActivity.After(teams[j].LastActivity) })
	return teams, nil
}

// SharedWith lists active shares addressed to the recipient, newest first.
// resourceType narrows to one kind when non-empty. Revoked shares are
// dropped; a share whose record cannot be read degrades to the statement's
// own summary instead of hiding the grant.
func (r *Resolver) SharedWith(ctx context.Context, recipient xapi.Agent, resourceType string) ([]Grant, error) {
	stmts, err := r.collect(ctx, xapi.Filter{Verb: xapi.VerbShared.ID, Limit: maxScan})
	if err != nil {
		return nil, err
	}

	email := recipient.Email()
	var grants []Grant
	for _, stmt := range stmts {
		if !containsFold(stmt.StringsExtension(xapi.ExtRecipients), email) {
			continue
		}
		resType, resID := xapi.SplitActivityID(stmt.Object.ID)
		if resourceType != "" && resType != resourceType {
			continue
		}

		grant := Grant{
			Sharer:       stmt.Actor,
			ResourceType: resType,
			ResourceID:   resID,
			SharedAt:     stmt.Timestamp,
		}
		if stmt.Object.Definition != nil {
			grant.ResourceName = stmt.Object.Definition.Name["en-US"]
		}

		shareID := stmt.StringExtension(xapi.ExtShareID)
		if shareID == "" {
			grant.Degraded = true
			grants = append(grants, grant)
			continue
		}
		var rec share.Record
		if err := r.mapper.Get(ctx, stmt.Actor, share.DocType, shareID, &rec); err != nil {
			r.logger.Warn(fmt.Sprintf("shared-with %s: degrading share %s: %v", email, shareID, err))
			grant.Degraded = true
			grants = append(grants, grant)
			continue
		}
		if rec.IsDeleted() {
			continue // revoked
		}
		grant.Record = rec
		grant.ResourceName = rec.ResourceName
		grant.Message = rec.Message
		grants = append(grants, grant)
	}
	return grants, nil
}

// CommentThread returns the live comments on a target, oldest first.
func (r *Resolver) CommentThread(ctx context.Context, targetType, targetID string) ([]comment.Comment, error) {
	activity := xapi.ActivityID(targetType, targetID)
	stmts, err := r.collect(ctx, xapi.Filter{Verb: xapi.VerbCommented.ID, Activity: activity, Ascending: true, Limit: maxScan})
	if err != nil {
		return nil, err
	}

	thread := make([]comment.Comment, 0, len(stmts))
	for _, stmt := range stmts {
		commentID := stmt.StringExtension(xapi.ExtCommentID)
		if commentID == "" {
			continue
		}
		var cmt comment.Comment
		if err := r.mapper.Get(ctx, stmt.Actor, comment.DocType, commentID, &cmt); err != nil {
			r.logger.Warn(fmt.Sprintf("comment thread %s: skipping %s: %v", activity, commentID, err))
			continue
		}
		if cmt.IsDeleted() {
			continue
		}
		thread = append(thread, cmt)
	}
	return thread, nil
}

func paginate(snaps []document.Snapshot, offset, limit int) []document.Snapshot {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(snaps) {
		return nil
	}
	snaps = snaps[offset:]
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps
}

func (r *Resolver) collect(ctx context.Context, filter xapi.Filter) ([]xapi.Statement, error) {
	cur, err := r.client.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return xapi.Collect(ctx, cur, filter.EffectiveLimit())
}

// teamMembers normalizes a statement's team to sorted member emails and
// reports whether the given agent takes part (as member or actor).
func teamMembers(team *xapi.Group, actor, agent xapi.Agent) ([]string, bool) {
	emails := make([]string, 0, len(team.Member))
	seen := make(map[string]bool, len(team.Member))
	includes := actor.Equal(agent)
	for _, member := range team.Member {
		email := member.Email()
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
		if member.Equal(agent) {
			includes = true
		}
	}
	sort.Strings(emails)
	return emails, includes
}

func containsFold(list []string, val string) bool {
	for _, item := range list {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}
