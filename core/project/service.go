package project

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/relation"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// Service manages research projects. Bodies live in the owner's state
// documents; discovery, progress and collaboration all travel through the
// statement log.
type Service struct {
	client   xapi.Client
	mapper   *document.Mapper
	resolver *relation.Resolver
	validate *validator.Validate
}

func NewService(client xapi.Client, resolver *relation.Resolver, validate *validator.Validate) *Service {
	return &Service{
		client:   client,
		mapper:   document.NewMapper(client),
		resolver: resolver,
		validate: validate,
	}
}

// Create starts a project in the planning phase.
func (svc *Service) Create(ctx context.Context, owner xapi.Agent, np NewProject) (Project, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Project{}, err
	}
	proj := Project{
		Title:       np.Title,
		Description: np.Description,
		Phase:       PhasePlanning,
		Tags:        np.Tags,
	}
	if err := svc.mapper.Create(ctx, owner, DocType, &proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

// Get loads one project by owner and id.
func (svc *Service) Get(ctx context.Context, owner xapi.Agent, id string) (Project, error) {
	var proj Project
	if err := svc.mapper.Get(ctx, owner, DocType, id, &proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

// Update patches the changed fields. With ExpectedVersion set a concurrent
// edit surfaces as document.ErrConflict; without it the later write wins.
func (svc *Service) Update(ctx context.Context, owner xapi.Agent, id string, up UpdateProject) (Project, error) {
	if err := up.Validate(svc.validate); err != nil {
		return Project{}, err
	}
	patch, err := json.Marshal(&up)
	if err != nil {
		return Project{}, errors.Wrap(err, "encoding patch")
	}
	var proj Project
	if err := svc.mapper.Update(ctx, owner, DocType, id, patch, up.ExpectedVersion, &proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

// SetPhase moves the project to a new inquiry phase and appends a progress
// statement: attempted when entering a phase, completed when the project
// reaches its end. The progress statements feed completion analytics.
func (svc *Service) SetPhase(ctx context.Context, owner xapi.Agent, id, phase string) (Project, error) {
	up := UpdateProject{Phase: phase}
	if err := up.Validate(svc.validate); err != nil {
		return Project{}, err
	}

	patch, err := json.Marshal(map[string]string{"phase": up.Phase})
	if err != nil {
		return Project{}, errors.Wrap(err, "encoding patch")
	}
	var proj Project
	if err := svc.mapper.Update(ctx, owner, DocType, id, patch, 0, &proj); err != nil {
		return Project{}, err
	}

	verb := xapi.VerbAttempted
	if up.Phase == PhaseComplete {
		verb = xapi.VerbCompleted
	}
	stmt := &xapi.Statement{
		Actor:  owner,
		Verb:   verb,
		Object: xapi.NewActivity(DocType.ActivityID(id), DocType.ActivityType, proj.Title),
	}
	stmt.SetExtension(xapi.ExtPhase, up.Phase)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Project{}, errors.Wrap(err, "announcing phase change")
	}
	return proj, nil
}

// AddAttachment links an uploaded artifact to the project.
func (svc *Service) AddAttachment(ctx context.Context, owner xapi.Agent, id string, att Attachment) (Project, error) {
	proj, err := svc.Get(ctx, owner, id)
	if err != nil {
		return Project{}, err
	}
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	atts := append(proj.Attachments, att)

	patch, err := json.Marshal(map[string]interface{}{"attachments": atts})
	if err != nil {
		return Project{}, errors.Wrap(err, "encoding patch")
	}
	if err := svc.mapper.Update(ctx, owner, DocType, id, patch, 0, &proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

// SoftDelete retires a project; the body stays readable, listings drop it.
func (svc *Service) SoftDelete(ctx context.Context, owner xapi.Agent, id string, deletedBy xapi.Agent) error {
	return svc.mapper.SoftDelete(ctx, owner, DocType, id, deletedBy)
}

// List returns the owner's projects, most recently active first.
func (svc *Service) List(ctx context.Context, owner xapi.Agent, status relation.StatusFilter, offset, limit int) ([]Project, error) {
	snaps, err := svc.resolver.ListOwned(ctx, owner, DocType, status, offset, limit)
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(snaps))
	for _, snap := range snaps {
		var proj Project
		if err := snap.Decode(&proj); err != nil {
			return nil, err
		}
		projects = append(projects, proj)
	}
	return projects, nil
}

// Collaborate records a working session on the project with the given
// collaborators. The statement carries the full member set as context.team
// and groups under the project, which is what team and network analytics
// are reconstructed from. Deleted projects cannot host sessions.
func (svc *Service) Collaborate(ctx context.Context, owner xapi.Agent, id string, collaborators []string) error {
	proj, err := svc.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if proj.IsDeleted() {
		return document.ErrNotFound
	}

	members := append([]string{owner.Email()}, collaborators...)
	activity := xapi.NewActivity(DocType.ActivityID(id), DocType.ActivityType, proj.Title)
	stmt := &xapi.Statement{
		Actor:  owner,
		Verb:   xapi.VerbCollaborated,
		Object: activity,
		Context: &xapi.Context{
			Team:              xapi.NewTeam(proj.Title, members...),
			ContextActivities: &xapi.ContextActivities{Grouping: []xapi.Object{activity}},
		},
	}
	stmt.SetExtension(xapi.ExtPhase, proj.Phase)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return errors.Wrap(err, "announcing collaboration")
	}
	return nil
}
