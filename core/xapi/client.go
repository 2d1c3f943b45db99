package xapi

import (
	"context"
	"time"
)

// DefaultQueryLimit caps a query when the filter does not set one.
const DefaultQueryLimit = 100

type (
	// Client is the record store contract: an append-only statement log plus
	// two keyed document stores. It is the only persistence surface of the
	// application; there are no joins, no transactions and no compare-and-set.
	Client interface {
		// About checks connectivity and protocol support.
		About(ctx context.Context) error

		// SaveStatement appends a statement and returns its id. A zero ID or
		// Timestamp is assigned before the statement leaves the process, so
		// retries re-send the same id and the append stays idempotent.
		SaveStatement(ctx context.Context, stmt *Statement) (string, error)

		// Query returns a cursor over statements matching the filter,
		// most recent first unless Filter.Ascending is set. The cursor is
		// lazy, finite and cannot be restarted.
		Query(ctx context.Context, filter Filter) (Cursor, error)

		// GetAgentProfile fetches an agent-scoped document.
		// Returns ErrNotFound when absent.
		GetAgentProfile(ctx context.Context, agent Agent, profileID string) ([]byte, error)

		// SaveAgentProfile writes an agent-scoped document, unconditionally
		// replacing any previous content.
		SaveAgentProfile(ctx context.Context, agent Agent, profileID string, doc []byte) error

		// GetActivityState fetches a per-agent-per-activity document.
		// Returns ErrNotFound when absent.
		GetActivityState(ctx context.Context, agent Agent, activityID, stateID string) ([]byte, error)

		// SaveActivityState writes a per-agent-per-activity document,
		// unconditionally replacing any previous content.
		SaveActivityState(ctx context.Context, agent Agent, activityID, stateID string, doc []byte) error
	}

	// Filter selects statements. Zero fields do not constrain. Composite
	// queries beyond these axes are done by filtering client-side.
	Filter struct {
		Agent     *Agent    // statements whose actor matches
		Verb      string    // verb URI
		Activity  string    // exact object URI
		Since     time.Time // inclusive
		Until     time.Time // exclusive
		Limit     int       // max statements; DefaultQueryLimit when 0
		Ascending bool      // oldest first
	}

	// Cursor iterates a query result one statement at a time.
	//
	//	for cur.Next(ctx) {
	//		stmt := cur.Statement()
	//		...
	//	}
	//	if err := cur.Err(); err != nil { ... }
	Cursor interface {
		Next(ctx context.Context) bool
		Statement() Statement
		Err() error
	}
)

// EffectiveLimit resolves the filter limit against the default.
func (f Filter) EffectiveLimit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return DefaultQueryLimit
}

// Match reports whether a statement satisfies the filter, ignoring Limit and
// Ascending. Store implementations and client-side refinement share it.
func (f Filter) Match(stmt Statement) bool {
	if f.Agent != nil && !stmt.Actor.Equal(*f.Agent) {
		return false
	}
	if f.Verb != "" && stmt.Verb.ID != f.Verb {
		return false
	}
	if f.Activity != "" && stmt.Object.ID != f.Activity {
		return false
	}
	if !f.Since.IsZero() && stmt.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !stmt.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Collect drains a cursor into a slice, up to max statements (unbounded when
// max <= 0). The cursor's error, if any, comes back with what was read.
func Collect(ctx context.Context, cur Cursor, max int) ([]Statement, error) {
	var stmts []Statement
	for cur.Next(ctx) {
		stmts = append(stmts, cur.Statement())
		if max > 0 && len(stmts) >= max {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return stmts, err
	}
	return stmts, nil
}

// SliceCursor is a Cursor over an in-memory statement slice.
type SliceCursor struct {
	stmts []Statement
	pos   int
	err   error
}

var _ Cursor = (*SliceCursor)(nil)

func NewSliceCursor(stmts []Statement) *SliceCursor {
	return &SliceCursor{stmts: stmts}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil || c.pos >= len(c.stmts) {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = cursorCtxErr(err)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Statement() Statement {
	return c.stmts[c.pos-1]
}

func (c *SliceCursor) Err() error { return c.err }

func cursorCtxErr(err error) error {
	if err == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}
