package invite

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
)

// Kind is the entity kind invitations are stored under.
const Kind = "invitation"

// DocType describes where invitation documents live.
var DocType = document.NewType(Kind)

// Invitation lifecycle statuses, on top of the document statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Roles an invitation can grant on a project.
const (
	RoleCollaborator = "collaborator"
	RoleViewer       = "viewer"
)

// Invitation asks a user to join a project. The inviter owns the document
// (CreatedBy); the invitee finds it through the invited statement and
// responds with a signed token from the invitation email.
type Invitation struct {
	document.Meta
	ProjectID    string     `json:"projectId"`
	ProjectTitle string     `json:"projectTitle"`
	InviteeEmail string     `json:"inviteeEmail"`
	Role         string     `json:"role"`
	Message      string     `json:"message,omitempty"`
	RespondedAt  *time.Time `json:"respondedAt,omitempty"`
}

func (inv Invitation) DocTitle() string { return inv.ProjectTitle }

func (inv *Invitation) IsPending() bool { return inv.Status == StatusPending }

// InviterEmail is the agent who sent the invitation.
func (inv *Invitation) InviterEmail() string { return inv.CreatedBy }

// NewInvitation contains the information needed to invite a user.
type NewInvitation struct {
	ProjectID    string `json:"projectId" validate:"required"`
	ProjectTitle string `json:"projectTitle" validate:"required"`
	InviteeEmail string `json:"inviteeEmail" validate:"required,email"`
	Role         string `json:"role" validate:"required,oneof=collaborator viewer"`
	Message      string `json:"message" validate:"max=1000"`
}

func (ni *NewInvitation) Validate(validate *validator.Validate) error {
	ni.ProjectID = core.CleanString(ni.ProjectID)
	ni.ProjectTitle = core.CleanString(ni.ProjectTitle)
	ni.InviteeEmail = core.CleanString(ni.InviteeEmail, true /* lower */)
	ni.Role = core.CleanString(ni.Role, true /* lower */)
	ni.Message = core.CleanString(ni.Message)
	return validate.Struct(ni)
}
