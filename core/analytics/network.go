package analytics

import (
	"sort"
	"strings"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// buildNetwork reduces a statement set to the collaboration graph. Edges
// come from two sources: pairwise co-occurrence in the team of collaborated
// statements, and sharer-to-recipient links of shared statements. Teams
// counts the distinct member sets seen on collaborated statements. With a
// subject, edges not touching the subject are dropped and only the subject's
// teams count.
func buildNetwork(stmts []xapi.Statement, subject string) CollaborationAnalytics {
	subject = strings.ToLower(subject)
	weights := make(map[[2]string]int)
	teams := make(map[string]bool)

	addEdge := func(a, b string) {
		a, b = strings.ToLower(a), strings.ToLower(b)
		if a == "" || b == "" || a == b {
			return
		}
		if a > b {
			a, b = b, a
		}
		weights[[2]string{a, b}]++
	}

	for _, stmt := range stmts {
		switch stmt.Verb.ID {
		case xapi.VerbCollaborated.ID:
			if stmt.Context == nil || stmt.Context.Team == nil {
				continue
			}
			members := participants(stmt)
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					addEdge(members[i], members[j])
				}
			}
			actor := strings.ToLower(stmt.Actor.Email())
			if key, includes := teamKey(stmt.Context.Team, actor, subject); includes {
				teams[key] = true
			}
		case xapi.VerbShared.ID:
			for _, recipient := range stmt.StringsExtension(xapi.ExtRecipients) {
				addEdge(stmt.Actor.Email(), recipient)
			}
		}
	}

	ca := CollaborationAnalytics{Subject: subject, Teams: len(teams)}

	neighbours := make(map[string]map[string]bool)
	totals := make(map[string]int)
	for pair, weight := range weights {
		if subject != "" && pair[0] != subject && pair[1] != subject {
			continue
		}
		ca.Edges = append(ca.Edges, NetworkEdge{Source: pair[0], Target: pair[1], Weight: weight})
		for _, email := range pair {
			if neighbours[email] == nil {
				neighbours[email] = make(map[string]bool)
			}
			totals[email] += weight
		}
		neighbours[pair[0]][pair[1]] = true
		neighbours[pair[1]][pair[0]] = true
	}

	for email, peers := range neighbours {
		ca.Nodes = append(ca.Nodes, NetworkNode{Email: email, Degree: len(peers)})
	}

	sort.Slice(ca.Edges, func(i, j int) bool {
		if ca.Edges[i].Weight != ca.Edges[j].Weight {
			return ca.Edges[i].Weight > ca.Edges[j].Weight
		}
		if ca.Edges[i].Source != ca.Edges[j].Source {
			return ca.Edges[i].Source < ca.Edges[j].Source
		}
		return ca.Edges[i].Target < ca.Edges[j].Target
	})
	sort.Slice(ca.Nodes, func(i, j int) bool {
		if ca.Nodes[i].Degree != ca.Nodes[j].Degree {
			return ca.Nodes[i].Degree > ca.Nodes[j].Degree
		}
		return ca.Nodes[i].Email < ca.Nodes[j].Email
	})

	ca.TopCollaborators = topOfTotals(totals, subject, 10)
	return ca
}

// topOfTotals ranks people by accumulated edge weight; the subject ranks
// everyone else relative to them, the global view ranks everybody.
func topOfTotals(totals map[string]int, subject string, max int) []UserRank {
	ranks := make([]UserRank, 0, len(totals))
	for email, count := range totals {
		if email == subject {
			continue
		}
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

// teamKey normalizes a team to its sorted member emails and reports whether
// the subject takes part, as a member or as the statement actor; an empty
// subject matches every team.
func teamKey(team *xapi.Group, actor, subject string) (string, bool) {
	emails := make([]string, 0, len(team.Member))
	seen := make(map[string]bool, len(team.Member))
	includes := subject == "" || actor == subject
	for _, member := range team.Member {
		email := strings.ToLower(member.Email())
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
		if email == subject {
			includes = true
		}
	}
	sort.Strings(emails)
	return strings.Join(emails, ","), includes
}
