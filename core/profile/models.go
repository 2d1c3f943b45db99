package profile

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xiangenhu/polyuhulab-sub000/core"
)

// ProfileID is the agent-profile document id user profiles live under.
const ProfileID = "user-profile"

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	rolePermissions = map[string][]string{
		RoleStudent: {
			"project:read", "project:write",
			"comment:write", "share:write",
		},
		RoleTeacher: {
			"project:read", "project:write",
			"comment:write", "share:write",
			"invite:write", "analytics:read",
		},
		RoleAdmin: {
			"project:read", "project:write",
			"comment:write", "share:write",
			"invite:write", "analytics:read",
			"admin:all",
		},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// PermissionsForRole returns a copy of the permission set a role grants.
func PermissionsForRole(role string) []string {
	perms := rolePermissions[role]
	cp := make([]string, len(perms))
	copy(cp, perms)
	return cp
}

type (
	Preferences struct {
		Language      string `json:"language"`
		Notifications bool   `json:"notifications"`
		Theme         string `json:"theme"`
	}

	// Profile is a user's portal profile, stored wholesale as an
	// agent-profile document. There is no version field: concurrent saves
	// are last-writer-wins.
	Profile struct {
		Email       string      `json:"email"`
		Name        string      `json:"name"`
		Role        string      `json:"role"`
		Permissions []string    `json:"permissions"`
		Preferences Preferences `json:"preferences"`
		LoginCount  int         `json:"loginCount"`
		LastLogin   time.Time   `json:"lastLogin"` // UTC
		CreatedAt   time.Time   `json:"createdAt"` // UTC
		UpdatedAt   time.Time   `json:"updatedAt"` // UTC
	}
)

func (p *Profile) IsStudent() bool { return p.Role == RoleStudent }
func (p *Profile) IsTeacher() bool { return p.Role == RoleTeacher }
func (p *Profile) IsAdmin() bool   { return p.Role == RoleAdmin }

// HasPermission reports whether the profile's role grants a permission.
func (p *Profile) HasPermission(perm string) bool {
	for _, granted := range p.Permissions {
		if granted == perm || granted == "admin:all" {
			return true
		}
	}
	return false
}

func defaultPreferences() Preferences {
	return Preferences{Language: "en", Notifications: true, Theme: "light"}
}

// UpdateProfile defines what a user may change on their profile. Zero fields
// keep the stored values.
type UpdateProfile struct {
	Name        string       `json:"name"`
	Role        string       `json:"role" validate:"omitempty,role"`
	Preferences *Preferences `json:"preferences"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	up.Role = core.CleanString(up.Role, true /* lower */)
	return validate.Struct(up)
}
