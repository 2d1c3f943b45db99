package share

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/document"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// Service manages share records. Sharing writes the record under the sharer,
// then announces a shared statement addressed to the resource; the
// recipients ride along as a context extension, which is the only index a
// "shared with me" listing has.
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

// Create shares a resource with the recipients.
func (svc *Service) Create(ctx context.Context, sharer xapi.Agent, ns NewShare) (Record, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Record{}, err
	}

	rec := Record{
		ResourceType: ns.ResourceType,
		ResourceID:   ns.ResourceID,
		ResourceName: ns.ResourceName,
		Recipients:   ns.Recipients,
		Message:      ns.Message,
	}
	if err := svc.mapper.Create(ctx, sharer, DocType, &rec); err != nil {
		return Record{}, err
	}

	stmt := &xapi.Statement{
		Actor:  sharer,
		Verb:   xapi.VerbShared,
		Object: xapi.NewActivity(xapi.ActivityID(ns.ResourceType, ns.ResourceID), xapi.ActivityTypeURI(ns.ResourceType), ns.ResourceName),
	}
	stmt.SetExtension(xapi.ExtRecipients, rec.Recipients)
	stmt.SetExtension(xapi.ExtShareID, rec.ID)
	stmt.SetExtension(xapi.ExtStateID, DocType.StateID)
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Record{}, errors.Wrap(err, "announcing share")
	}
	return rec, nil
}

// Get loads one share record by sharer and id.
func (svc *Service) Get(ctx context.Context, sharer xapi.Agent, id string) (Record, error) {
	var rec Record
	if err := svc.mapper.Get(ctx, sharer, DocType, id, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Revoke withdraws a share. The shared statement stays in the log; listings
// check the record's status and drop revoked grants.
func (svc *Service) Revoke(ctx context.Context, sharer xapi.Agent, id string) error {
	return svc.mapper.SoftDelete(ctx, sharer, DocType, id, sharer)
}
