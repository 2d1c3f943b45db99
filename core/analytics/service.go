package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// nowFunc returns the current time. It may be overridden for tests.
var nowFunc = time.Now

const (
	defaultMaxScan  = 10000
	defaultCacheTTL = 5 * time.Minute
)

// Aggregator derives dashboard metrics from bounded statement scans. It is
// stateless per request apart from the payload cache; readiness is checked
// once against the record store and remembered.
//
// Every metric method returns the marshaled JSON payload: within the cache
// TTL, identical calls return byte-identical payloads.
type Aggregator struct {
	client xapi.Client
	logger core.Logger

	maxScan     int
	scanTimeout time.Duration
	cache       *metricsCache

	mu    sync.Mutex
	ready bool
}

func NewAggregator(conf *core.Config, client xapi.Client, logger core.Logger) *Aggregator {
	maxScan := conf.Analytics.MaxScan
	if maxScan <= 0 {
		maxScan = defaultMaxScan
	}
	ttl := conf.Analytics.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Aggregator{
		client:      client,
		logger:      logger,
		maxScan:     maxScan,
		scanTimeout: conf.Analytics.ScanTimeout,
		cache:       newMetricsCache(ttl),
	}
}

// Overview computes portal-wide metrics for the window; a non-empty subject
// narrows the scan to that actor's statements and drops the user ranking.
func (a *Aggregator) Overview(ctx context.Context, subject string, preset Preset) ([]byte, error) {
	return a.cached(ctx, "overview", subject, preset, func(ctx context.Context, since, until time.Time) (interface{}, error) {
		return a.overview(ctx, subject, since, until)
	})
}

// UserAnalytics computes one user's activity profile for the window.
func (a *Aggregator) UserAnalytics(ctx context.Context, email string, preset Preset) ([]byte, error) {
	return a.cached(ctx, "user", email, preset, func(ctx context.Context, since, until time.Time) (interface{}, error) {
		return a.userAnalytics(ctx, email, since, until)
	})
}

// ProjectAnalytics computes one project's activity profile for the window.
func (a *Aggregator) ProjectAnalytics(ctx context.Context, projectID string, preset Preset) ([]byte, error) {
	return a.cached(ctx, "project", projectID, preset, func(ctx context.Context, since, until time.Time) (interface{}, error) {
		return a.projectAnalytics(ctx, projectID, since, until)
	})
}

// CollaborationAnalytics computes the collaboration network for the window;
// a non-empty subject trims the graph to that person's neighbourhood.
func (a *Aggregator) CollaborationAnalytics(ctx context.Context, subject string, preset Preset) ([]byte, error) {
	return a.cached(ctx, "collaboration", subject, preset, func(ctx context.Context, since, until time.Time) (interface{}, error) {
		return a.collaborationAnalytics(ctx, subject, since, until)
	})
}

// ClearCache drops every cached payload. Administrative operation.
func (a *Aggregator) ClearCache() {
	a.cache.clear()
}

// cached resolves the window, serves the payload from the cache when fresh,
// and otherwise computes, marshals and stores it.
func (a *Aggregator) cached(ctx context.Context, set, subject string, preset Preset, compute func(context.Context, time.Time, time.Time) (interface{}, error)) ([]byte, error) {
	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}
	if preset == "" {
		preset = DefaultPreset
	}
	since, until, err := preset.Window(nowFunc())
	if err != nil {
		return nil, err
	}

	key := cacheKey{set: set, subject: subject, preset: preset}
	if payload, ok := a.cache.get(key, nowFunc()); ok {
		return payload, nil
	}

	metrics, err := compute(ctx, since, until)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(metrics)
	if err != nil {
		return nil, errors.Wrap(err, "encoding metrics payload")
	}
	a.cache.put(key, payload, nowFunc())
	return payload, nil
}

// ensureReady checks record store connectivity once. The lock is released
// around the About call; concurrent first requests may both probe, which is
// harmless.
func (a *Aggregator) ensureReady(ctx context.Context) error {
	a.mu.Lock()
	ready := a.ready
	a.mu.Unlock()
	if ready {
		return nil
	}

	if err := a.client.About(ctx); err != nil {
		return errors.Wrap(err, "record store connectivity check")
	}
	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()
	return nil
}

// fetch pulls the window's statements newest first, capped at the scan
// ceiling; partial reports whether the cap was hit. The scan runs under its
// own deadline when one is configured.
func (a *Aggregator) fetch(ctx context.Context, filter xapi.Filter) (stmts []xapi.Statement, partial bool, err error) {
	if a.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.scanTimeout)
		defer cancel()
	}

	filter.Limit = a.maxScan
	cur, err := a.client.Query(ctx, filter)
	if err != nil {
		return nil, false, scanErr(err)
	}
	stmts, err = xapi.Collect(ctx, cur, a.maxScan)
	if err != nil {
		return nil, false, scanErr(err)
	}
	if len(stmts) >= a.maxScan {
		a.logger.Warn(fmt.Sprintf("analytics scan hit the %d statement ceiling; reporting partial metrics", a.maxScan))
		partial = true
	}
	return stmts, partial, nil
}

func (a *Aggregator) overview(ctx context.Context, subject string, since, until time.Time) (Overview, error) {
	filter := xapi.Filter{Since: since, Until: until}
	if subject != "" {
		agent := xapi.AgentFromEmail(subject)
		filter.Agent = &agent
	}
	stmts, partial, err := a.fetch(ctx, filter)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{
		Subject:         subject,
		Since:           since,
		Until:           until,
		TotalActivities: len(stmts),
		UniqueUsers:     len(topUsers(stmts, 0)),
		CompletionRate:  round2(completionRate(stmts)),
		EngagementScore: round2(engagementScore(stmts, since, until)),
		Collaboration:   collaborationIndex(stmts, subject),
		TopVerbs:        topVerbs(stmts, 5),
		HourlyActivity:  hourHistogram(stmts),
		Partial:         partial,
	}
	if subject == "" {
		ov.TopUsers = topUsers(stmts, 10)
	}
	return ov, nil
}

func (a *Aggregator) userAnalytics(ctx context.Context, email string, since, until time.Time) (UserAnalytics, error) {
	agent := xapi.AgentFromEmail(email)
	stmts, partial, err := a.fetch(ctx, xapi.Filter{Agent: &agent, Since: since, Until: until})
	if err != nil {
		return UserAnalytics{}, err
	}

	return UserAnalytics{
		Email:           agent.Email(),
		Since:           since,
		Until:           until,
		TotalActivities: len(stmts),
		ActiveDays:      activeDays(stmts),
		CompletionRate:  round2(completionRate(stmts)),
		EngagementScore: round2(engagementScore(stmts, since, until)),
		Collaboration:   collaborationIndex(stmts, agent.Email()),
		Verbs:           topVerbs(stmts, 0),
		HourlyActivity:  hourHistogram(stmts),
		TopProjects:     topProjects(stmts, 10),
		Partial:         partial,
	}, nil
}

func (a *Aggregator) projectAnalytics(ctx context.Context, projectID string, since, until time.Time) (ProjectAnalytics, error) {
	activity := xapi.ActivityID("project", projectID)
	stmts, partial, err := a.fetch(ctx, xapi.Filter{Activity: activity, Since: since, Until: until})
	if err != nil {
		return ProjectAnalytics{}, err
	}

	pa := ProjectAnalytics{
		ProjectID:       projectID,
		Since:           since,
		Until:           until,
		TotalActivities: len(stmts),
		Contributors:    contributors(stmts),
		CompletionRate:  round2(completionRate(stmts)),
		Partial:         partial,
	}
	for _, stmt := range stmts {
		if phase := stmt.StringExtension(xapi.ExtPhase); phase != "" {
			if pa.Phases == nil {
				pa.Phases = make(map[string]int)
			}
			pa.Phases[phase]++
		}
		ts := stmt.Timestamp
		if pa.FirstActivity == nil || ts.Before(*pa.FirstActivity) {
			pa.FirstActivity = &ts
		}
		if pa.LastActivity == nil || ts.After(*pa.LastActivity) {
			pa.LastActivity = &ts
		}
	}
	return pa, nil
}

func (a *Aggregator) collaborationAnalytics(ctx context.Context, subject string, since, until time.Time) (CollaborationAnalytics, error) {
	// Recipient and team membership are context payloads the store cannot
	// filter on, so the scan is always portal-wide; a subject trims the
	// graph afterwards.
	stmts, partial, err := a.fetch(ctx, xapi.Filter{Since: since, Until: until})
	if err != nil {
		return CollaborationAnalytics{}, err
	}

	ca := buildNetwork(stmts, subject)
	ca.Since = since
	ca.Until = until
	ca.Partial = partial
	return ca, nil
}

// scanErr turns a blown scan deadline into ErrTimeout; a timed-out scan is
// reported, never passed off as a complete window.
func scanErr(err error) error {
	if err == context.DeadlineExceeded {
		return xapi.ErrTimeout
	}
	return err
}

func contributors(stmts []xapi.Statement) []Contributor {
	counts := make(map[string]int)
	verbs := make(map[string]map[string]bool)
	for _, stmt := range stmts {
		email := stmt.Actor.Email()
		if email == "" {
			continue
		}
		counts[email]++
		if verbs[email] == nil {
			verbs[email] = make(map[string]bool)
		}
		verbs[email][stmt.Verb.ID] = true
	}

	list := make([]Contributor, 0, len(counts))
	for email, count := range counts {
		list = append(list, Contributor{Email: email, Statements: count, Verbs: len(verbs[email])})
	}
	sortContributors(list)
	return list
}

func sortContributors(list []Contributor) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Statements != list[j].Statements {
			return list[i].Statements > list[j].Statements
		}
		return list[i].Email < list[j].Email
	})
}
