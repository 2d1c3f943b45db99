package xapi

import (
	"strings"
	"time"
)

// The statement model below is wire-compatible with the xAPI 1.0.3 statement
// shape. Only the parts this application produces and consumes are modelled;
// unknown fields coming back from the record store are ignored on decode.

type (
	// Agent identifies a user by their verified email (mbox).
	Agent struct {
		ObjectType string `json:"objectType,omitempty"`
		Name       string `json:"name,omitempty"`
		Mbox       string `json:"mbox,omitempty"` // "mailto:<email>"
	}

	// Group is an anonymous group of agents, used as context.team on
	// collaboration statements.
	Group struct {
		ObjectType string  `json:"objectType"`
		Name       string  `json:"name,omitempty"`
		Member     []Agent `json:"member,omitempty"`
	}

	Verb struct {
		ID      string            `json:"id"`
		Display map[string]string `json:"display,omitempty"`
	}

	Definition struct {
		Type string            `json:"type,omitempty"`
		Name map[string]string `json:"name,omitempty"`
	}

	// Object is the statement target, always an Activity in this application.
	Object struct {
		ObjectType string      `json:"objectType,omitempty"`
		ID         string      `json:"id"`
		Definition *Definition `json:"definition,omitempty"`
	}

	Score struct {
		Scaled *float64 `json:"scaled,omitempty"`
		Raw    *float64 `json:"raw,omitempty"`
		Min    *float64 `json:"min,omitempty"`
		Max    *float64 `json:"max,omitempty"`
	}

	Result struct {
		Score      *Score `json:"score,omitempty"`
		Success    *bool  `json:"success,omitempty"`
		Completion *bool  `json:"completion,omitempty"`
		Response   string `json:"response,omitempty"`
	}

	ContextActivities struct {
		Parent   []Object `json:"parent,omitempty"`
		Grouping []Object `json:"grouping,omitempty"`
		Category []Object `json:"category,omitempty"`
		Other    []Object `json:"other,omitempty"`
	}

	// Context carries the statement's relational payload: the team group,
	// related activities and the extensions bag keyed by URI.
	Context struct {
		Registration      string                 `json:"registration,omitempty"`
		Team              *Group                 `json:"team,omitempty"`
		ContextActivities *ContextActivities     `json:"contextActivities,omitempty"`
		Extensions        map[string]interface{} `json:"extensions,omitempty"`
	}

	// Statement is an immutable activity record: actor did verb on object.
	// ID and Timestamp are assigned on save when absent; Stored is set by
	// the record store.
	Statement struct {
		ID        string     `json:"id,omitempty"`
		Actor     Agent      `json:"actor"`
		Verb      Verb       `json:"verb"`
		Object    Object     `json:"object"`
		Result    *Result    `json:"result,omitempty"`
		Context   *Context   `json:"context,omitempty"`
		Timestamp time.Time  `json:"timestamp"`
		Stored    *time.Time `json:"stored,omitempty"`
	}
)

// AgentFromEmail builds an Agent for a verified email address.
func AgentFromEmail(email string, name ...string) Agent {
	a := Agent{
		ObjectType: "Agent",
		Mbox:       "mailto:" + strings.ToLower(strings.TrimSpace(email)),
	}
	if len(name) > 0 {
		a.Name = name[0]
	}
	return a
}

// Email returns the agent's bare email address (mbox without the scheme).
func (a Agent) Email() string {
	return strings.TrimPrefix(a.Mbox, "mailto:")
}

// Equal compares agents by their mbox, case-insensitively.
func (a Agent) Equal(other Agent) bool {
	return strings.EqualFold(a.Mbox, other.Mbox)
}

func (a Agent) IsZero() bool { return a.Mbox == "" }

// NewTeam builds the context.team group for a set of member emails.
// The actor is expected to be included by the caller when they take part.
func NewTeam(name string, emails ...string) *Group {
	members := make([]Agent, 0, len(emails))
	for _, email := range emails {
		members = append(members, AgentFromEmail(email))
	}
	return &Group{ObjectType: "Group", Name: name, Member: members}
}

// NewActivity builds a statement object for an entity instance.
func NewActivity(id, typeURI, name string) Object {
	obj := Object{ObjectType: "Activity", ID: id}
	if typeURI != "" || name != "" {
		obj.Definition = &Definition{Type: typeURI}
		if name != "" {
			obj.Definition.Name = map[string]string{lang: name}
		}
	}
	return obj
}

// Extension reads a well-known context extension; ok is false when the
// statement has no context or the key is absent.
func (s *Statement) Extension(uri string) (interface{}, bool) {
	if s.Context == nil || s.Context.Extensions == nil {
		return nil, false
	}
	v, ok := s.Context.Extensions[uri]
	return v, ok
}

// StringExtension reads a string-valued context extension.
func (s *Statement) StringExtension(uri string) string {
	if v, ok := s.Extension(uri); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// StringsExtension reads a string-list context extension. Lists decoded from
// JSON come back as []interface{}; both shapes are accepted.
func (s *Statement) StringsExtension(uri string) []string {
	v, ok := s.Extension(uri)
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		strs := make([]string, 0, len(vals))
		for _, item := range vals {
			if str, ok := item.(string); ok {
				strs = append(strs, str)
			}
		}
		return strs
	}
	return nil
}

// SetExtension records a context extension, allocating the context on demand.
func (s *Statement) SetExtension(uri string, val interface{}) {
	if s.Context == nil {
		s.Context = &Context{}
	}
	if s.Context.Extensions == nil {
		s.Context.Extensions = make(map[string]interface{})
	}
	s.Context.Extensions[uri] = val
}
