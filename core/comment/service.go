package comment

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// Service manages comments. Posting writes the comment body under the
// author, then announces a commented statement addressed to the target
// activity; the statement's extensions carry the back-references a reader
// needs to find the body again.
type Service struct {
	client   xapi.Client
	mapper   *document.Mapper
	validate *validator.Validate
}

func NewService(client xapi.Client, validate *validator.Validate) *Service {
	return &Service{
		client:   client,
		mapper:   document.NewMapper(client),
		validate: validate,
	}
}

// Create posts a comment by author on the target.
func (svc *Service) Create(ctx context.Context, author xapi.Agent, nc NewComment) (Comment, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Comment{}, err
	}

	cmt := Comment{TargetType: nc.TargetType, TargetID: nc.TargetID, Body: nc.Body}
	if err := svc.mapper.Create(ctx, author, DocType, &cmt); err != nil {
		return Comment{}, err
	}

	// address the target so thread queries are a single activity filter
	stmt := &xapi.Statement{
		Actor:  author,
		Verb:   xapi.VerbCommented,
		Object: xapi.NewActivity(xapi.ActivityID(nc.TargetType, nc.TargetID), xapi.ActivityTypeURI(nc.TargetType), ""),
		Result: &xapi.Result{Response: snippet(nc.Body)},
	}
	stmt.SetExtension(xapi.ExtTargetType, nc.TargetType)
	stmt.SetExtension(xapi.ExtTargetID, nc.TargetID)
	stmt.SetExtension(xapi.ExtStateID, DocType.StateID)
	stmt.SetExtension(xapi.ExtCommentID, cmt.ID)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Comment{}, errors.Wrap(err, "announcing comment")
	}
	return cmt, nil
}

// Get loads one comment by author and id.
func (svc *Service) Get(ctx context.Context, author xapi.Agent, id string) (Comment, error) {
	var cmt Comment
	if err := svc.mapper.Get(ctx, author, DocType, id, &cmt); err != nil {
		return Comment{}, err
	}
	return cmt, nil
}

// Update edits the comment body.
func (svc *Service) Update(ctx context.Context, author xapi.Agent, id string, uc UpdateComment) (Comment, error) {
	if err := uc.Validate(svc.validate); err != nil {
		return Comment{}, err
	}
	patch, err := json.Marshal(map[string]string{"body": uc.Body})
	if err != nil {
		return Comment{}, errors.Wrap(err, "encoding patch")
	}
	var cmt Comment
	if err := svc.mapper.Update(ctx, author, DocType, id, patch, uc.ExpectedVersion, &cmt); err != nil {
		return Comment{}, err
	}
	return cmt, nil
}

// SoftDelete retracts a comment; thread listings drop it, the body stays.
func (svc *Service) SoftDelete(ctx context.Context, author xapi.Agent, id string, deletedBy xapi.Agent) error {
	return svc.mapper.SoftDelete(ctx, author, DocType, id, deletedBy)
}

// snippet trims a comment body down to a short statement response.
func snippet(body string) string {
	const max = 120
	if len(body) <= max {
		return body
	}
	return body[:max-3] + "..."
}
