package xapi

import "strings"

// Verb and activity vocabulary. Standard ADL verbs keep their registry URIs;
// portal-specific verbs live under the hulab namespace. URIs are opaque
// identifiers and are compared verbatim.

const (
	lang = "en-US"

	verbBase     = "https://hulab.polyu.edu.hk/xapi/verbs/"
	adlVerbBase  = "http://adlnet.gov/expapi/verbs/"
	activityBase = "https://hulab.polyu.edu.hk/xapi/"
	extBase      = "https://hulab.polyu.edu.hk/xapi/extensions/"
)

var (
	VerbCreated      = newVerb(verbBase+"created", "created")
	VerbUpdated      = newVerb(verbBase+"updated", "updated")
	VerbDeleted      = newVerb(verbBase+"deleted", "deleted")
	VerbCollaborated = newVerb(verbBase+"collaborated", "collaborated")
	VerbQueried      = newVerb(verbBase+"queried", "queried")
	VerbInvited      = newVerb(verbBase+"invited", "invited")
	VerbJoined       = newVerb(verbBase+"joined", "joined")

	VerbAttempted   = newVerb(adlVerbBase+"attempted", "attempted")
	VerbCompleted   = newVerb(adlVerbBase+"completed", "completed")
	VerbShared      = newVerb(adlVerbBase+"shared", "shared")
	VerbCommented   = newVerb(adlVerbBase+"commented", "commented")
	VerbExperienced = newVerb(adlVerbBase+"experienced", "experienced")

	VerbLoggedIn = newVerb("https://w3id.org/xapi/adl/verbs/logged-in", "logged-in")
)

// collaborativeVerbs feed the collaboration index.
var collaborativeVerbs = map[string]bool{
	VerbCollaborated.ID: true,
	VerbShared.ID:       true,
	VerbCommented.ID:    true,
	VerbInvited.ID:      true,
	VerbJoined.ID:       true,
}

// Context extension URIs.
const (
	ExtRecipients = extBase + "recipients"  // []string of emails
	ExtPhase      = extBase + "phase"       // project phase at event time
	ExtTargetType = extBase + "target-type" // entity kind a comment addresses
	ExtTargetID   = extBase + "target-id"
	ExtStateID    = extBase + "state-id"   // state document holding the entity body
	ExtRole       = extBase + "role"       // role granted by an invitation
	ExtCommentID  = extBase + "comment-id" // comment document behind a commented statement
	ExtShareID    = extBase + "share-id"   // share record behind a shared statement
)

func newVerb(id, display string) Verb {
	return Verb{ID: id, Display: map[string]string{lang: display}}
}

// ActivityID returns the object URI of an entity instance, e.g.
// .../xapi/project/<uuid>.
func ActivityID(kind, id string) string {
	return activityBase + kind + "/" + id
}

// ActivityPrefix returns the object URI prefix shared by all instances of an
// entity kind, with the trailing slash.
func ActivityPrefix(kind string) string {
	return activityBase + kind + "/"
}

// ActivityTypeURI returns the activity-type URI of an entity kind.
func ActivityTypeURI(kind string) string {
	return activityBase + "activities/" + kind
}

// SplitActivityID breaks a portal object URI into entity kind and id; both
// come back empty for URIs outside the portal namespace.
func SplitActivityID(uri string) (kind, id string) {
	if !strings.HasPrefix(uri, activityBase) {
		return "", ""
	}
	rest := strings.TrimPrefix(uri, activityBase)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == "activities" {
		return "", ""
	}
	return parts[0], parts[1]
}

// IsCollaborative reports whether a verb URI counts toward collaboration
// metrics.
func IsCollaborative(verbID string) bool {
	return collaborativeVerbs[verbID]
}

// PortalActivity is the statement object for portal-level events such as
// logins, which target no particular entity.
func PortalActivity() Object {
	return NewActivity(activityBase+"portal", ActivityTypeURI("portal"), "HuLab Portal")
}
