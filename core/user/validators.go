package user

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/tchoudhury/pathshala/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	core.Validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	core.RegisterCustomTranslation(pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(pwdAttrSimTag, pwdAttrSimText)
}

// newUserStructValidation does struct level validation on the NewUser struct.
func newUserStructValidation(sl validator.StructLevel) {
	if nu, ok := sl.Current().Interface().(NewUser); ok {
		validatePassword(nu.Password, []string{nu.Name, nu.Username, nu.Email}, sl)
	}
}

// validatePassword enforces the password policy: minimum length, not entirely
// numeric and not too similar to the user's own attributes.
func validatePassword(pwd string, userAttrs []string, sl validator.StructLevel) {
	if len(pwd) < pwdMinLen {
		sl.ReportError(pwd, "password", "Password", pwdMinLenTag, "")
		return
	}

	allNum := true
	for _, r := range pwd {
		if !unicode.IsDigit(r) {
			allNum = false
			break
		}
	}
	if allNum {
		sl.ReportError(pwd, "password", "Password", pwdNotAllNumTag, "")
	}

	lowerPwd := strings.ToLower(pwd)
	for _, attr := range userAttrs {
		if attr == "" {
			continue
		}
		matcher := difflib.NewMatcher(
			difflib.SplitLines(strings.ToLower(attr)), difflib.SplitLines(lowerPwd))
		if matcher.QuickRatio() >= pwdMaxSim {
			sl.ReportError(pwd, "password", "Password", pwdAttrSimTag, "")
			return
		}
	}
}
