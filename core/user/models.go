package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tchoudhury/pathshala/core"
)

// Roles map to the app's four dashboards.
const (
	RoleAdmin      = "admin"
	RoleLibrarian  = "librarian"
	RoleAccountant = "accountant"
	RoleStaff      = "staff"
)

var AllRoles = []string{RoleAdmin, RoleLibrarian, RoleAccountant, RoleStaff}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	LastLogin    time.Time `json:"last_login"` // UTC
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"required,min=4,alphanum"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,oneof=admin librarian accountant staff"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUsernameUniqueness(nu.Username, nu.Email)
}
