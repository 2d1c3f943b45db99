package document

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// Statuses every mapped document can carry. Entity packages may add their
// own (e.g. invitation pending/accepted/declined).
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

var (
	// errors
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document was modified concurrently")
)

type (
	// Meta is the header every mapped document embeds. The mapper owns all
	// of its fields; entity code treats them as read-only.
	Meta struct {
		ID        string     `json:"id"`
		Status    string     `json:"status"`
		Version   int        `json:"version"`
		CreatedBy string     `json:"createdBy"` // owner email
		CreatedAt time.Time  `json:"createdAt"` // UTC
		UpdatedAt time.Time  `json:"updatedAt"` // UTC
		DeletedAt *time.Time `json:"deletedAt,omitempty"`
		DeletedBy string     `json:"deletedBy,omitempty"`
	}

	// Document is any entity managed by the Mapper: a struct embedding Meta.
	Document interface {
		DocMeta() *Meta
	}

	// Titled is implemented by documents with a human-readable name; the
	// mapper puts it on announce statements as the activity definition name.
	Titled interface {
		DocTitle() string
	}

	// Type describes where documents of one entity kind live: the state id
	// their bodies are written under and the activity URIs their announce
	// statements carry.
	Type struct {
		Name         string // entity kind, e.g. "project"
		StateID      string // state document id, e.g. "project-data"
		ActivityType string // activity-type URI
		ObjectPrefix string // object URI prefix of instances
	}

	// Snapshot is a document as seen by a listing: the parsed header, the
	// raw body for typed decoding, the owning agent and the time of the
	// most recent related statement.
	Snapshot struct {
		Meta         Meta
		Raw          json.RawMessage
		Owner        xapi.Agent
		LastActivity time.Time
	}
)

func (m *Meta) DocMeta() *Meta { return m }

func (m *Meta) IsDeleted() bool { return m.Status == StatusDeleted }

// NewType derives the conventional descriptor for an entity kind.
func NewType(kind string) Type {
	return Type{
		Name:         kind,
		StateID:      kind + "-data",
		ActivityType: xapi.ActivityTypeURI(kind),
		ObjectPrefix: xapi.ActivityPrefix(kind),
	}
}

// ActivityID returns the object URI of one document.
func (t Type) ActivityID(id string) string { return t.ObjectPrefix + id }

// DocumentID extracts the document id from an object URI of this type.
func (t Type) DocumentID(activityID string) (string, bool) {
	if !strings.HasPrefix(activityID, t.ObjectPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(activityID, t.ObjectPrefix)
	return id, id != ""
}

// NewSnapshot parses a stored document body into a Snapshot.
func NewSnapshot(raw []byte, owner xapi.Agent) (Snapshot, error) {
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Snapshot{}, pkgerrors.Wrap(err, "decoding document header")
	}
	body := make(json.RawMessage, len(raw))
	copy(body, raw)
	return Snapshot{Meta: meta, Raw: body, Owner: owner}, nil
}

// Decode unmarshals the snapshot body into a typed document.
func (s Snapshot) Decode(dst Document) error {
	return pkgerrors.Wrap(json.Unmarshal(s.Raw, dst), "decoding document")
}
