package project

import (
	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/document"
)

// Kind is the entity kind projects are stored under.
const Kind = "project"

// DocType describes where project documents live.
var DocType = document.NewType(Kind)

// Phases of the inquiry cycle a research project moves through.
const (
	PhasePlanning      = "planning"
	PhaseInvestigation = "investigation"
	PhaseAnalysis      = "analysis"
	PhaseWriting       = "writing"
	PhaseComplete      = "complete"
)

var AllPhases = []string{PhasePlanning, PhaseInvestigation, PhaseAnalysis, PhaseWriting, PhaseComplete}

type (
	// Attachment is an uploaded artifact linked to a project. Upload and
	// download happen outside this layer; only the reference is kept.
	Attachment struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}

	// Project is a student research project.
	Project struct {
		document.Meta
		Title       string       `json:"title"`
		Description string       `json:"description"`
		Phase       string       `json:"phase"`
		Tags        []string     `json:"tags,omitempty"`
		Attachments []Attachment `json:"attachments,omitempty"`
	}
)

func (p Project) DocTitle() string { return p.Title }

// NewProject contains the information needed to start a project.
type NewProject struct {
	Title       string   `json:"title" validate:"required,min=3,max=200"`
	Description string   `json:"description" validate:"max=4000"`
	Tags        []string `json:"tags" validate:"omitempty,dive,alphanum_"`
}

func (np *NewProject) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanString(np.Description)
	for i := range np.Tags {
		np.Tags[i] = core.CleanString(np.Tags[i], true /* lower */)
	}
	return validate.Struct(np)
}

// UpdateProject defines what may change on a project. Omitted fields keep
// their stored values; Description distinguishes "absent" from "cleared".
type UpdateProject struct {
	Title       string       `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Description *string      `json:"description,omitempty"`
	Phase       string       `json:"phase,omitempty" validate:"omitempty,oneof=planning investigation analysis writing complete"`
	Tags        []string     `json:"tags,omitempty" validate:"omitempty,dive,alphanum_"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ExpectedVersion, when set, turns the update into an optimistic check:
	// the patch only applies if the stored version still matches.
	ExpectedVersion int `json:"-"`
}

func (up *UpdateProject) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	up.Phase = core.CleanString(up.Phase, true /* lower */)
	for i := range up.Tags {
		up.Tags[i] = core.CleanString(up.Tags[i], true /* lower */)
	}
	return validate.Struct(up)
}
