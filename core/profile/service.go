package profile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = stderrors.New("profile not found")
)

// Service manages user profiles. Identity comes from the portal's external
// auth layer: by the time a call reaches here the email is verified.
type Service struct {
	client   xapi.Client
	validate *validator.Validate
}

func NewService(client xapi.Client, validate *validator.Validate) *Service {
	return &Service{client: client, validate: validate}
}

// Get fetches a profile by email.
func (svc *Service) Get(ctx context.Context, email string) (Profile, error) {
	agent := xapi.AgentFromEmail(email)
	raw, err := svc.client.GetAgentProfile(ctx, agent, ProfileID)
	if err != nil {
		if errors.Cause(err) == xapi.ErrNotFound {
			return Profile{}, ErrNotFound
		}
		return Profile{}, errors.Wrap(err, "reading profile")
	}
	var prof Profile
	if err := json.Unmarshal(raw, &prof); err != nil {
		return Profile{}, errors.Wrap(err, "decoding profile")
	}
	return prof, nil
}

// GetOrCreate fetches a profile, materializing a default one on first
// contact. New users start as students with default preferences.
func (svc *Service) GetOrCreate(ctx context.Context, email, name string) (Profile, error) {
	prof, err := svc.Get(ctx, email)
	if err == nil {
		return prof, nil
	}
	if err != ErrNotFound {
		return Profile{}, err
	}

	now := nowFunc().UTC()
	prof = Profile{
		Email:       xapi.AgentFromEmail(email).Email(),
		Name:        name,
		Role:        RoleStudent,
		Permissions: PermissionsForRole(RoleStudent),
		Preferences: defaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := svc.save(ctx, &prof); err != nil {
		return Profile{}, err
	}
	return prof, nil
}

// Update applies the changed fields and saves the whole profile back.
// The profile document carries no version: two concurrent updates race and
// the later write wins.
func (svc *Service) Update(ctx context.Context, email string, up UpdateProfile) (Profile, error) {
	if err := up.Validate(svc.validate); err != nil {
		return Profile{}, err
	}

	prof, err := svc.Get(ctx, email)
	if err != nil {
		return Profile{}, err
	}
	if up.Name != "" {
		prof.Name = up.Name
	}
	if up.Role != "" {
		prof.Role = up.Role
		prof.Permissions = PermissionsForRole(up.Role)
	}
	if up.Preferences != nil {
		prof.Preferences = *up.Preferences
	}
	prof.UpdatedAt = nowFunc().UTC()

	if err := svc.save(ctx, &prof); err != nil {
		return Profile{}, err
	}
	return prof, nil
}

// RecordLogin bumps the login counter, stamps the login time and appends a
// logged-in statement for the analytics stream.
func (svc *Service) RecordLogin(ctx context.Context, email string) (Profile, error) {
	prof, err := svc.Get(ctx, email)
	if err != nil {
		return Profile{}, err
	}

	now := nowFunc().UTC()
	prof.LoginCount++
	prof.LastLogin = now
	prof.UpdatedAt = now
	if err := svc.save(ctx, &prof); err != nil {
		return Profile{}, err
	}

	stmt := &xapi.Statement{
		Actor:  xapi.AgentFromEmail(prof.Email, prof.Name),
		Verb:   xapi.VerbLoggedIn,
		Object: xapi.PortalActivity(),
	}
	if _, err := svc.client.SaveStatement(ctx, stmt); err != nil {
		return Profile{}, errors.Wrap(err, "recording login")
	}
	return prof, nil
}

func (svc *Service) save(ctx context.Context, prof *Profile) error {
	data, err := json.Marshal(prof)
	if err != nil {
		return errors.Wrap(err, "encoding profile")
	}
	agent := xapi.AgentFromEmail(prof.Email)
	return errors.Wrap(svc.client.SaveAgentProfile(ctx, agent, ProfileID, data), "writing profile")
}
