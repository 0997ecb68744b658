package library

import (
	"time"

	"github.com/tchoudhury/pathshala/core"
)

// Book statuses
const (
	BookStatusActive   = "Active"
	BookStatusInactive = "Inactive"
)

// Issue statuses. An open issue is stored as Issued; Overdue is flipped
// eagerly by the nightly sweep and derived at read time for anything the
// sweep has not caught up with yet.
const (
	IssueStatusIssued   = "Issued"
	IssueStatusReturned = "Returned"
	IssueStatusOverdue  = "Overdue"
)

// Fine statuses
const (
	FineStatusPending = "Pending"
	FineStatusPaid    = "Paid"
	FineStatusWaived  = "Waived"
)

// Book is a title in the catalog. Copies are tracked as a count, not as
// individual physical copies; Available reflects Quantity minus open issues.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Category        string    `json:"category"`
	Publisher       string    `json:"publisher,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Quantity        int       `json:"quantity"`
	Available       int       `json:"available"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (b *Book) IsActive() bool {
	return b.Status == BookStatusActive
}

// Issue is one circulation ledger entry: a book copy lent to a student.
// Records are never deleted; a closed issue keeps its audit trail.
type Issue struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	StudentID  string    `json:"student_id"`
	IssueDate  Date      `json:"issue_date"`
	DueDate    Date      `json:"due_date"`
	ReturnDate Date      `json:"return_date"`
	Status     string    `json:"status"`
	Fine       int       `json:"fine"`
	Notes      string    `json:"notes,omitempty"`
	Remarks    string    `json:"remarks,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (i *Issue) IsOpen() bool {
	return i.Status == IssueStatusIssued || i.Status == IssueStatusOverdue
}

func (i *Issue) IsOverdue(today Date) bool {
	return i.IsOpen() && i.DueDate.Before(today)
}

// WithDerivedStatus returns a read-time view of the issue: open records past
// their due date are presented as Overdue. The stored status is untouched.
func (i Issue) WithDerivedStatus(today Date) Issue {
	if i.IsOverdue(today) {
		i.Status = IssueStatusOverdue
	}
	return i
}

// Fine is a monetary penalty for an overdue return. Amount is immutable once
// created; only the payment status, remarks and paid date may change.
type Fine struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	StudentID string    `json:"student_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	Remarks   string    `json:"remarks,omitempty"`
	PaidDate  Date      `json:"paid_date"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Stats are the dashboard aggregates, recomputed by scanning current
// catalog/ledger state on every call. No counters are persisted.
type Stats struct {
	TotalBooks     int `json:"total_books"`
	AvailableBooks int `json:"available_books"`
	IssuedBooks    int `json:"issued_books"`
	OverdueBooks   int `json:"overdue_books"`
	TodayReturns   int `json:"today_returns"`
	PendingFines   int `json:"pending_fines"`
}

// NewBook contains information needed to add a Book to the catalog.
type NewBook struct {
	Title           string `json:"title" validate:"required"`
	Author          string `json:"author" validate:"required"`
	ISBN            string `json:"isbn" validate:"required,isbn"`
	Category        string `json:"category" validate:"required"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year" validate:"omitempty,min=1500,max=2100"`
	Quantity        int    `json:"quantity" validate:"required,min=1"`
}

func (nb *NewBook) Validate(svc *Service) error {
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.ISBN = cleanISBN(nb.ISBN)
	nb.Category = core.CleanString(nb.Category)
	nb.Publisher = core.CleanString(nb.Publisher)

	if err := core.Validate.Struct(nb); err != nil {
		return err
	}
	return svc.CheckISBNUniqueness(nb.ISBN)
}

// UpdateBook contains information needed to edit a catalog entry.
// Empty fields keep their current value.
type UpdateBook struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn" validate:"omitempty,isbn"`
	Category        string `json:"category"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year" validate:"omitempty,min=1500,max=2100"`
	Quantity        int    `json:"quantity" validate:"omitempty,min=1"`
	Status          string `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

func (ub *UpdateBook) Validate(origBook Book, svc *Service) error {
	if title := core.CleanString(ub.Title); title != "" {
		ub.Title = title
	} else {
		ub.Title = origBook.Title
	}
	if author := core.CleanString(ub.Author); author != "" {
		ub.Author = author
	} else {
		ub.Author = origBook.Author
	}
	if isbn := cleanISBN(ub.ISBN); isbn != "" {
		ub.ISBN = isbn
	} else {
		ub.ISBN = origBook.ISBN
	}
	if cat := core.CleanString(ub.Category); cat != "" {
		ub.Category = cat
	} else {
		ub.Category = origBook.Category
	}
	ub.Publisher = core.CleanString(ub.Publisher)
	if ub.PublicationYear == 0 {
		ub.PublicationYear = origBook.PublicationYear
	}
	if ub.Quantity == 0 {
		ub.Quantity = origBook.Quantity
	}
	if ub.Status == "" {
		ub.Status = origBook.Status
	}

	if err := core.Validate.Struct(ub); err != nil {
		return err
	}
	return svc.CheckISBNUniqueness(ub.ISBN, origBook)
}

// NewIssue contains information needed to lend a book copy to a student.
type NewIssue struct {
	BookID    string `json:"book_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	IssueDate Date   `json:"issue_date"`
	DueDate   Date   `json:"due_date"`
	Notes     string `json:"notes"`
}

func (ni *NewIssue) Validate() error {
	ni.Notes = core.CleanString(ni.Notes)

	if err := core.Validate.Struct(ni); err != nil {
		return err
	}

	today := Today()
	if ni.IssueDate.IsZero() {
		ni.IssueDate = today
	}
	if ni.DueDate.IsZero() {
		ni.DueDate = ni.IssueDate.AddDays(core.Conf.Library.DefaultLoanDays)
	}
	if ni.DueDate.Before(ni.IssueDate) {
		return core.NewValidationError(
			ErrDueDateInPast, core.FieldError{Field: "due_date", Error: errDueBeforeIssueText})
	}
	if ni.DueDate.Before(today) {
		return core.NewValidationError(
			ErrDueDateInPast, core.FieldError{Field: "due_date", Error: errDuePastText})
	}
	return nil
}

// ReturnBook contains the optional remarks recorded when closing an issue.
type ReturnBook struct {
	Remarks string `json:"remarks" validate:"omitempty,max=500"`
}

func (rb *ReturnBook) Validate() error {
	rb.Remarks = core.CleanString(rb.Remarks)
	return core.Validate.Struct(rb)
}

// UpdateFine marks a pending fine as paid or waived.
type UpdateFine struct {
	Status  string `json:"status" validate:"required,oneof=Paid Waived"`
	Remarks string `json:"remarks" validate:"omitempty,max=500"`
}

func (uf *UpdateFine) Validate() error {
	uf.Remarks = core.CleanString(uf.Remarks)

	if err := core.Validate.Struct(uf); err != nil {
		return err
	}
	// waiving requires a reason; an auditor must be able to tell why money was let go
	if uf.Status == FineStatusWaived && uf.Remarks == "" {
		return core.NewValidationError(
			ErrWaiveReasonRequired, core.FieldError{Field: "remarks", Error: errWaiveReasonText})
	}
	return nil
}

// BookFilter applies AND operation on available fields.
// Search does a case-insensitive substring match on Title, Author or ISBN.
type BookFilter struct {
	Search   string `query:"search"`
	Category string `query:"category"`
	Status   string `query:"status"`
}

func (f *BookFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Category = core.CleanString(f.Category)
	f.Status = core.CleanString(f.Status)
}

// IssueFilter applies AND operation on available fields.
// Status matches the derived status: filtering on Issued excludes past-due
// records and filtering on Overdue includes them even before the sweep runs.
type IssueFilter struct {
	Status    string `query:"status"`
	StudentID string `query:"student_id"`
	BookID    string `query:"book_id"`
}

func (f *IssueFilter) Clean() {
	f.Status = core.CleanString(f.Status)
	f.StudentID = core.CleanString(f.StudentID)
	f.BookID = core.CleanString(f.BookID)
}

// FineFilter applies AND operation on available fields.
type FineFilter struct {
	Status    string `query:"status"`
	StudentID string `query:"student_id"`
}

func (f *FineFilter) Clean() {
	f.Status = core.CleanString(f.Status)
	f.StudentID = core.CleanString(f.StudentID)
}
