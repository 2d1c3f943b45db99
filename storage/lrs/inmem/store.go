package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

type (
	// Store is an in-memory record store for tests and local development.
	// It implements the same contract as the HTTP client: an append-only
	// statement log plus keyed state and profile documents.
	Store struct {
		mu         sync.RWMutex
		seq        int
		statements []entry
		states     map[string][]byte
		profiles   map[string][]byte
	}

	entry struct {
		seq  int
		stmt xapi.Statement
	}
)

var _ xapi.Client = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		states:   make(map[string][]byte),
		profiles: make(map[string][]byte),
	}
}

func (s *Store) About(ctx context.Context) error { return ctx.Err() }

func (s *Store) SaveStatement(ctx context.Context, stmt *xapi.Statement) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt.ID == "" {
		stmt.ID = uuid.New().String()
	} else {
		// re-sending an id is a retry; the log keeps the first copy
		for _, e := range s.statements {
			if e.stmt.ID == stmt.ID {
				return stmt.ID, nil
			}
		}
	}
	if stmt.Timestamp.IsZero() {
		stmt.Timestamp = time.Now().UTC()
	}
	stored := time.Now().UTC()
	stmt.Stored = &stored

	s.seq++
	s.statements = append(s.statements, entry{seq: s.seq, stmt: *stmt})
	return stmt.ID, nil
}

func (s *Store) Query(ctx context.Context, filter xapi.Filter) (xapi.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]entry, 0, len(s.statements))
	for _, e := range s.statements {
		if filter.Match(e.stmt) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].stmt.Timestamp, matched[j].stmt.Timestamp
		if ti.Equal(tj) {
			if filter.Ascending {
				return matched[i].seq < matched[j].seq
			}
			return matched[i].seq > matched[j].seq
		}
		if filter.Ascending {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	limit := filter.EffectiveLimit()
	if len(matched) > limit {
		matched = matched[:limit]
	}
	stmts := make([]xapi.Statement, len(matched))
	for i, e := range matched {
		stmts[i] = e.stmt
	}
	return xapi.NewSliceCursor(stmts), nil
}

func (s *Store) GetAgentProfile(ctx context.Context, agent xapi.Agent, profileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.profiles[profileKey(agent, profileID)]
	if !ok {
		return nil, xapi.ErrNotFound
	}
	return copyBytes(doc), nil
}

func (s *Store) SaveAgentProfile(ctx context.Context, agent xapi.Agent, profileID string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileKey(agent, profileID)] = copyBytes(doc)
	return nil
}

func (s *Store) GetActivityState(ctx context.Context, agent xapi.Agent, activityID, stateID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.states[stateKey(agent, activityID, stateID)]
	if !ok {
		return nil, xapi.ErrNotFound
	}
	return copyBytes(doc), nil
}

func (s *Store) SaveActivityState(ctx context.Context, agent xapi.Agent, activityID, stateID string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey(agent, activityID, stateID)] = copyBytes(doc)
	return nil
}

// Statements snapshots the whole log, oldest first. Test helper.
func (s *Store) Statements() []xapi.Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stmts := make([]xapi.Statement, len(s.statements))
	for i, e := range s.statements {
		stmts[i] = e.stmt
	}
	return stmts
}

// Reset drops all data. Test helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
	s.statements = nil
	s.states = make(map[string][]byte)
	s.profiles = make(map[string][]byte)
}

func profileKey(agent xapi.Agent, profileID string) string {
	return strings.ToLower(agent.Mbox) + "|" + profileID
}

func stateKey(agent xapi.Agent, activityID, stateID string) string {
	return strings.ToLower(agent.Mbox) + "|" + activityID + "|" + stateID
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
