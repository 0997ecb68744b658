package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchoudhury/pathshala/core/user"
	dummydb "github.com/tchoudhury/pathshala/storage/database/dummy"
)

func setup(t *testing.T) *user.Service {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	return user.NewService(dummydb.NewUserRepository(db))
}

func newUser(pwd string) user.NewUser {
	return user.NewUser{
		Name:            "Awe Some",
		Username:        "awesome",
		Email:           "awe@test.bd",
		Role:            user.RoleStaff,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
}

func failedTags(t *testing.T, err error) []string {
	t.Helper()
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	tags := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		tags = append(tags, fe.Tag())
	}
	return tags
}

func TestNewUser_passwordPolicy(t *testing.T) {
	svc := setup(t)

	t.Run("ok", func(t *testing.T) {
		nu := newUser("g0Odpa$$w0rD")
		assert.NoError(t, nu.Validate(svc))
	})

	t.Run("too short", func(t *testing.T) {
		nu := newUser("short1")
		assert.Contains(t, failedTags(t, nu.Validate(svc)), "pwdminlen")
	})

	t.Run("entirely numeric", func(t *testing.T) {
		nu := newUser("123456789")
		assert.Contains(t, failedTags(t, nu.Validate(svc)), "pwdnotallnum")
	})

	t.Run("same as email", func(t *testing.T) {
		nu := newUser("awe@test.bd")
		assert.Contains(t, failedTags(t, nu.Validate(svc)), "pwdtoosim")
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		nu := newUser("g0Odpa$$w0rD")
		nu.PasswordConfirm = "different1!"
		assert.Contains(t, failedTags(t, nu.Validate(svc)), "eqfield")
	})

	t.Run("unknown role", func(t *testing.T) {
		nu := newUser("g0Odpa$$w0rD")
		nu.Role = "headmaster"
		assert.Contains(t, failedTags(t, nu.Validate(svc)), "oneof")
	})
}
