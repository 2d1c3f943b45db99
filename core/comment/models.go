package comment

import (
	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
)

// Kind is the entity kind comments are stored under.
const Kind = "comment"

// DocType describes where comment documents live.
var DocType = document.NewType(Kind)

// Comment is a remark on another entity (a project, a shared resource, ...).
// The target is referenced by kind and id; the comment does not assume the
// target still exists.
type Comment struct {
	document.Meta
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Body       string `json:"body"`
}

// NewComment contains the information needed to post a comment.
type NewComment struct {
	TargetType string `json:"targetType" validate:"required,alphanum_"`
	TargetID   string `json:"targetId" validate:"required"`
	Body       string `json:"body" validate:"required,max=4000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.TargetType = core.CleanString(nc.TargetType, true /* lower */)
	nc.TargetID = core.CleanString(nc.TargetID)
	nc.Body = core.CleanString(nc.Body)
	return validate.Struct(nc)
}

// UpdateComment edits the body; everything else about a comment is fixed.
type UpdateComment struct {
	Body            string `json:"body" validate:"required,max=4000"`
	ExpectedVersion int    `json:"-"`
}

func (uc *UpdateComment) Validate(validate *validator.Validate) error {
	uc.Body = core.CleanString(uc.Body)
	return validate.Struct(uc)
}
