package invite

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// maxScan bounds the invited-statement scan backing ListReceived.
const maxScan = 500

var (
	// errors
	ErrNotInvitee       = stderrors.New("invitation is addressed to someone else")
	ErrAlreadyResponded = stderrors.New("invitation has already been responded to")

	errSelfInvite = stderrors.New("cannot invite yourself")
)

// Service manages project invitations. The inviter owns the invitation
// document; the invitee holds no key to it and reaches it through the
// invited statement, plus a signed token from the invitation email proving
// they were the one asked.
type Service struct {
	client   xapi.Client
	mapper   *document.Mapper
	mailSvc  core.EmailService
	logger   core.Logger
	validate *validator.Validate
}

func NewService(conf *core.Config, client xapi.Client, mailSvc core.EmailService, logger core.Logger, validate *validator.Validate) *Service {
	secretKey = conf.SecretKey
	inviteTimeoutDelta = conf.InviteTimeoutDelta
	return &Service{
		client:   client,
		mapper:   document.NewMapper(client),
		mailSvc:  mailSvc,
		logger:   logger,
		validate: validate,
	}
}

// Create invites a user to a project: writes the pending invitation under
// the inviter, announces an invited statement carrying the invitee in the
// recipients extension, and mails the invitee a response link.
func (svc *Service) Create(ctx context.Context, inviter xapi.Agent, ni NewInvitation) (Invitation, error) {
	if err := ni.Validate(svc.validate); err != nil {
		return Invitation{}, err
	}
	if inviter.Equal(xapi.AgentFromEmail(ni.InviteeEmail)) {
		return Invitation{}, core.NewValidationError(errSelfInvite,
			core.FieldError{Field: "inviteeEmail", Error: errSelfInvite.Error()})
	}

	inv := Invitation{
		Meta:         document.Meta{Status: StatusPending},
		ProjectID:    ni.ProjectID,
		ProjectTitle: ni.ProjectTitle,
		InviteeEmail: ni.InviteeEmail,
		Role:         ni.Role,
		Message:      ni.Message,
	}
	if err := svc.mapper.Create(ctx, inviter, DocType, &inv); err != nil {
		return Invitation{}, err
	}

	project := xapi.NewActivity(xapi.ActivityID("project", inv.ProjectID), xapi.ActivityTypeURI("project"), inv.ProjectTitle)
	stmt := &xapi.Statement{
		Actor:  inviter,
		Verb:   xapi.VerbInvited,
		Object: xapi.NewActivity(DocType.ActivityID(inv.ID), DocType.ActivityType, inv.ProjectTitle),
		Context: &xapi.Context{
			ContextActivities: &xapi.ContextActivities{Grouping: []xapi.Object{project}},
		},
	}
	stmt.SetExtension(xapi.ExtRecipients, []string{inv.InviteeEmail})
	stmt.SetExtension(xapi.ExtRole, inv.Role)
	stmt.SetExtension(xapi.ExtStateID, DocType.StateID)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Invitation{}, errors.Wrap(err, "announcing invitation")
	}

	svc.sendInvitationMail(inv)
	return inv, nil
}

// Get loads one invitation by inviter and id.
func (svc *Service) Get(ctx context.Context, inviter xapi.Agent, id string) (Invitation, error) {
	var inv Invitation
	if err := svc.mapper.Get(ctx, inviter, DocType, id, &inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// Accept records the invitee joining the project and announces a joined
// statement against it.
func (svc *Service) Accept(ctx context.Context, invitee xapi.Agent, id, token string) (Invitation, error) {
	inv, err := svc.respond(ctx, invitee, id, token, StatusAccepted)
	if err != nil {
		return Invitation{}, err
	}

	project := xapi.NewActivity(xapi.ActivityID("project", inv.ProjectID), xapi.ActivityTypeURI("project"), inv.ProjectTitle)
	stmt := &xapi.Statement{
		Actor:  invitee,
		Verb:   xapi.VerbJoined,
		Object: project,
	}
	stmt.SetExtension(xapi.ExtRole, inv.Role)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Invitation{}, errors.Wrap(err, "announcing join")
	}
	return inv, nil
}

// Decline turns the invitation down. No statement is announced; the
// declined status on the document is the only trace.
func (svc *Service) Decline(ctx context.Context, invitee xapi.Agent, id, token string) (Invitation, error) {
	return svc.respond(ctx, invitee, id, token, StatusDeclined)
}

// Revoke withdraws a pending invitation; the inviter's own tokens out in
// the wild die with it since the document status changes.
func (svc *Service) Revoke(ctx context.Context, inviter xapi.Agent, id string) error {
	return svc.mapper.SoftDelete(ctx, inviter, DocType, id, inviter)
}

// ListReceived returns invitations addressed to the invitee, most recent
// first. Revoked ones are dropped; responded ones too unless pendingOnly is
// false.
func (svc *Service) ListReceived(ctx context.Context, invitee xapi.Agent, pendingOnly bool) ([]Invitation, error) {
	cur, err := svc.client.Query(ctx, xapi.Filter{Verb: xapi.VerbInvited.ID, Limit: maxScan})
	if err != nil {
		return nil, errors.Wrap(err, "scanning invitations")
	}
	stmts, err := xapi.Collect(ctx, cur, maxScan)
	if err != nil {
		return nil, errors.Wrap(err, "scanning invitations")
	}

	email := invitee.Email()
	seen := make(map[string]bool)
	var invs []Invitation
	for _, stmt := range stmts {
		if !containsFold(stmt.StringsExtension(xapi.ExtRecipients), email) {
			continue
		}
		kind, id := xapi.SplitActivityID(stmt.Object.ID)
		if kind != Kind || seen[id] {
			continue
		}
		seen[id] = true

		var inv Invitation
		if err := svc.mapper.Get(ctx, stmt.Actor, DocType, id, &inv); err != nil {
			svc.logger.Warn(fmt.Sprintf("listing invitations for %s: skipping %s: %v", email, id, err))
			continue
		}
		if inv.IsDeleted() || (pendingOnly && !inv.IsPending()) {
			continue
		}
		invs = append(invs, inv)
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
	return invs, nil
}

// respond locates the invitation through its invited statement, verifies the
// token and flips the status. Responding is final.
func (svc *Service) respond(ctx context.Context, invitee xapi.Agent, id, token, status string) (Invitation, error) {
	inviter, err := svc.findInviter(ctx, id)
	if err != nil {
		return Invitation{}, err
	}

	var inv Invitation
	if err := svc.mapper.Get(ctx, inviter, DocType, id, &inv); err != nil {
		return Invitation{}, err
	}
	if inv.IsDeleted() {
		return Invitation{}, document.ErrNotFound
	}
	if !strings.EqualFold(inv.InviteeEmail, invitee.Email()) {
		return Invitation{}, ErrNotInvitee
	}
	if err := verifyToken(inv, token); err != nil {
		return Invitation{}, err
	}
	if !inv.IsPending() {
		return Invitation{}, ErrAlreadyResponded
	}

	patch, err := json.Marshal(map[string]interface{}{
		"status":      status,
		"respondedAt": nowFunc().UTC(),
	})
	if err != nil {
		return Invitation{}, errors.Wrap(err, "encoding patch")
	}
	if err := svc.mapper.Update(ctx, inviter, DocType, id, patch, 0, &inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// findInviter recovers the invitation's owner key from its invited
// statement; without it the invitee has no way to address the blob.
func (svc *Service) findInviter(ctx context.Context, id string) (xapi.Agent, error) {
	cur, err := svc.client.Query(ctx, xapi.Filter{
		Verb:     xapi.VerbInvited.ID,
		Activity: DocType.ActivityID(id),
		Limit:    1,
	})
	if err != nil {
		return xapi.Agent{}, errors.Wrap(err, "locating invitation")
	}
	stmts, err := xapi.Collect(ctx, cur, 1)
	if err != nil {
		return xapi.Agent{}, errors.Wrap(err, "locating invitation")
	}
	if len(stmts) == 0 {
		return xapi.Agent{}, document.ErrNotFound
	}
	return stmts[0].Actor, nil
}

func (svc *Service) sendInvitationMail(inv Invitation) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: inv.InviteeEmail}},
		Subject:      fmt.Sprintf("%s invited you to join %q", inv.InviterEmail(), inv.ProjectTitle),
		TemplateName: "invitation",
		TemplateData: invitationMailData{
			Inviter:      inv.InviterEmail(),
			ProjectTitle: inv.ProjectTitle,
			Role:         inv.Role,
			Message:      inv.Message,
			RespondPath:  fmt.Sprintf("/invitations/%s/respond/%s", inv.ID, MakeToken(inv)),
		},
	})
}

type invitationMailData struct {
	Inviter      string
	ProjectTitle string
	Role         string
	Message      string
	RespondPath  string
}

func containsFold(ss []string, s string) bool {
	for _, v := range ss {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
