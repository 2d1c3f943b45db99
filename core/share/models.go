package share

import (
	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
)

// Kind is the entity kind share records are stored under.
const Kind = "share"

// DocType describes where share records live.
var DocType = document.NewType(Kind)

// Record captures one act of sharing a resource with a set of recipients.
// Revoking soft-deletes the record; recipients' listings drop it.
type Record struct {
	document.Meta
	ResourceType string   `json:"resourceType"`
	ResourceID   string   `json:"resourceId"`
	ResourceName string   `json:"resourceName,omitempty"`
	Recipients   []string `json:"recipients"`
	Message      string   `json:"message,omitempty"`
}

func (r Record) DocTitle() string { return r.ResourceName }

// NewShare contains the information needed to share a resource.
type NewShare struct {
	ResourceType string   `json:"resourceType" validate:"required,alphanum_"`
	ResourceID   string   `json:"resourceId" validate:"required"`
	ResourceName string   `json:"resourceName"`
	Recipients   []string `json:"recipients" validate:"required,min=1,dive,email"`
	Message      string   `json:"message" validate:"max=1000"`
}

func (ns *NewShare) Validate(validate *validator.Validate) error {
	ns.ResourceType = core.CleanString(ns.ResourceType, true /* lower */)
	ns.ResourceID = core.CleanString(ns.ResourceID)
	ns.ResourceName = core.CleanString(ns.ResourceName)
	for i := range ns.Recipients {
		ns.Recipients[i] = core.CleanString(ns.Recipients[i], true /* lower */)
	}
	ns.Message = core.CleanString(ns.Message)
	return validate.Struct(ns)
}
