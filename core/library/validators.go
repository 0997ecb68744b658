package library

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tchoudhury/pathshala/core"
)

var (
	// custom validation tags & texts
	isbnTag   = "isbn"
	isbnText  = "must be a valid 10 or 13 digit ISBN"
	isbnRegex = regexp.MustCompile(`^(\d{9}[\dXx]|\d{13})$`)

	errDueBeforeIssueText = "due date cannot be before the issue date"
	errDuePastText        = "due date cannot be in the past"
	errWaiveReasonText    = "a reason is required to waive a fine"
)

func init() {
	// register custom validators
	_ = core.Validate.RegisterValidation(isbnTag, isbnValidation)
	core.RegisterCustomTranslation(isbnTag, isbnText)
}

// cleanISBN strips separators so "978-0-13-468599-1" and "9780134685991" compare equal.
func cleanISBN(isbn string) string {
	isbn = core.CleanString(isbn)
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(isbn, " ", "")
}

// isbnValidation checks an already-cleaned ISBN-10 or ISBN-13.
func isbnValidation(fl validator.FieldLevel) bool {
	return isbnRegex.MatchString(fl.Field().String())
}
