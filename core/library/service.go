package library

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/student"
)

var (
	// errors
	ErrBookNotFound        = errors.New("book not found")
	ErrIssueNotFound       = errors.New("issue record not found")
	ErrFineNotFound        = errors.New("fine not found")
	ErrISBNExists          = errors.New("a book with this ISBN already exists")
	ErrNoCopiesAvailable   = errors.New("no copies of this book are available")
	ErrAlreadyReturned     = errors.New("this book has already been returned")
	ErrBookHasOpenIssues   = errors.New("book still has open issue records")
	ErrBookInactive        = errors.New("this book is inactive")
	ErrStudentInactive     = errors.New("this student is inactive")
	ErrQuantityBelowIssued = errors.New("quantity cannot go below the number of issued copies")
	ErrDueDateInPast       = errors.New("invalid due date")
	ErrWaiveReasonRequired = errors.New("waive reason required")
	ErrFineNotPending      = errors.New("fine is not pending")
)

type (
	// Repository is the storage port for the catalog, the circulation ledger
	// and the fine ledger. CreateIssue and CloseIssue are compound operations:
	// adapters must apply the availability change and the ledger write as one
	// atomic unit so the availability invariant is never observed broken.
	Repository interface {
		CheckISBNUniqueness(ctx context.Context, isbn string, excluded ...Book) error
		CreateBook(ctx context.Context, book Book) (Book, error)
		GetBookByID(ctx context.Context, id string) (Book, error)
		// FilterBooks applies AND operation on available BookFilter fields.
		FilterBooks(ctx context.Context, filter BookFilter) ([]Book, error)
		UpdateBook(ctx context.Context, book Book) (Book, error)
		DeleteBook(ctx context.Context, id string) error

		CountOpenIssuesByBook(ctx context.Context, bookID string) (int, error)
		CountOpenIssuesByStudent(ctx context.Context, studentID string) (int, error)
		// CreateIssue atomically decrements the book's availability and
		// inserts the record; returns ErrNoCopiesAvailable when the book has
		// no copies left, without mutating anything.
		CreateIssue(ctx context.Context, rec Issue) (Issue, error)
		GetIssueByID(ctx context.Context, id string) (Issue, error)
		FilterIssues(ctx context.Context, filter IssueFilter) ([]Issue, error)
		// CloseIssue atomically saves the returned record, increments the
		// book's availability and, when fine is non-nil, inserts it.
		CloseIssue(ctx context.Context, rec Issue, fine *Fine) (Issue, error)
		// MarkIssuesOverdue flips open past-due records from Issued to
		// Overdue and reports how many were flipped.
		MarkIssuesOverdue(ctx context.Context, asOf Date) (int, error)

		GetFineByID(ctx context.Context, id string) (Fine, error)
		FilterFines(ctx context.Context, filter FineFilter) ([]Fine, error)
		UpdateFine(ctx context.Context, fine Fine) (Fine, error)

		LibraryStats(ctx context.Context, today Date) (Stats, error)
	}

	// Service is the only writer of catalog and ledger state; all compound
	// operations (issue, return, fine settlement) go through it.
	Service struct {
		repo     Repository
		students student.Repository
		mailSvc  core.EmailService
	}
)

func NewService(repo Repository, students student.Repository, mailSvc core.EmailService) *Service {
	return &Service{
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
	}
}

func (svc *Service) CheckISBNUniqueness(isbn string, exclBooks ...Book) error {
	if err := svc.repo.CheckISBNUniqueness(context.Background(), isbn, exclBooks...); err != nil {
		if err == ErrISBNExists {
			return core.NewValidationError(err, core.FieldError{Field: "isbn", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Catalog

func (svc *Service) CreateBook(ctx context.Context, nb NewBook) (Book, error) {
	now := time.Now().UTC()
	book := Book{
		ID:              uuid.NewString(),
		Title:           nb.Title,
		Author:          nb.Author,
		ISBN:            nb.ISBN,
		Category:        nb.Category,
		Publisher:       nb.Publisher,
		PublicationYear: nb.PublicationYear,
		Quantity:        nb.Quantity,
		Available:       nb.Quantity,
		Status:          BookStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateBook(ctx, book)
}

func (svc *Service) GetBook(ctx context.Context, id string) (Book, error) {
	book, err := svc.repo.GetBookByID(ctx, id)
	if err != nil {
		if err == ErrBookNotFound {
			return Book{}, core.NewNotFoundError(err)
		}
		return Book{}, err
	}
	return book, nil
}

func (svc *Service) FilterBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	filter.Clean()
	return svc.repo.FilterBooks(ctx, filter)
}

func (svc *Service) UpdateBook(ctx context.Context, id string, ub UpdateBook) (Book, error) {
	origBook, err := svc.GetBook(ctx, id)
	if err != nil {
		return Book{}, err
	}

	open, err := svc.repo.CountOpenIssuesByBook(ctx, id)
	if err != nil {
		return Book{}, errors.Wrap(err, "counting open issues")
	}
	if ub.Quantity < open {
		return Book{}, core.NewValidationError(
			ErrQuantityBelowIssued, core.FieldError{Field: "quantity", Error: ErrQuantityBelowIssued.Error()})
	}

	book := Book{
		ID:              id,
		Title:           ub.Title,
		Author:          ub.Author,
		ISBN:            ub.ISBN,
		Category:        ub.Category,
		Publisher:       ub.Publisher,
		PublicationYear: ub.PublicationYear,
		Quantity:        ub.Quantity,
		Available:       ub.Quantity - open, // availability invariant re-derived
		Status:          ub.Status,
		CreatedAt:       origBook.CreatedAt,
		UpdatedAt:       time.Now().UTC(),
	}
	return svc.repo.UpdateBook(ctx, book)
}

// DeleteBook removes a catalog entry. A book with open circulation records
// cannot be removed; deactivate it instead to stop further issues.
func (svc *Service) DeleteBook(ctx context.Context, id string) error {
	if _, err := svc.GetBook(ctx, id); err != nil {
		return err
	}
	open, err := svc.repo.CountOpenIssuesByBook(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting open issues")
	}
	if open > 0 {
		return core.NewConflictError(ErrBookHasOpenIssues)
	}
	return svc.repo.DeleteBook(ctx, id)
}

// Circulation

func (svc *Service) Issue(ctx context.Context, ni NewIssue) (Issue, error) {
	book, err := svc.GetBook(ctx, ni.BookID)
	if err != nil {
		return Issue{}, err
	}
	if !book.IsActive() {
		return Issue{}, core.NewValidationError(
			ErrBookInactive, core.FieldError{Field: "book_id", Error: ErrBookInactive.Error()})
	}

	std, err := svc.students.GetStudentByID(ctx, ni.StudentID)
	if err != nil {
		if err == student.ErrNotFound {
			return Issue{}, core.NewNotFoundError(err)
		}
		return Issue{}, err
	}
	if !std.IsActive {
		return Issue{}, core.NewValidationError(
			ErrStudentInactive, core.FieldError{Field: "student_id", Error: ErrStudentInactive.Error()})
	}

	now := time.Now().UTC()
	rec := Issue{
		ID:        uuid.NewString(),
		BookID:    book.ID,
		StudentID: std.ID,
		IssueDate: ni.IssueDate,
		DueDate:   ni.DueDate,
		Status:    IssueStatusIssued,
		Notes:     ni.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err = svc.repo.CreateIssue(ctx, rec)
	if err != nil {
		if err == ErrNoCopiesAvailable {
			return Issue{}, core.NewConflictError(err)
		}
		return Issue{}, err
	}
	return rec, nil
}

// Return closes an issue record: the return date is set, availability is
// restored and, when the book comes back past its due date, a pending Fine
// is created for the accrued amount and the student is notified.
func (svc *Service) Return(ctx context.Context, issueID string, rb ReturnBook) (Issue, error) {
	rec, err := svc.repo.GetIssueByID(ctx, issueID)
	if err != nil {
		if err == ErrIssueNotFound {
			return Issue{}, core.NewNotFoundError(err)
		}
		return Issue{}, err
	}
	if !rec.IsOpen() {
		return Issue{}, core.NewConflictError(ErrAlreadyReturned)
	}

	now := time.Now().UTC()
	today := Today()
	rec.ReturnDate = today
	rec.Status = IssueStatusReturned
	rec.Remarks = rb.Remarks
	rec.UpdatedAt = now

	var fine *Fine
	if daysLate := today.DaysSince(rec.DueDate); daysLate > 0 {
		amount := daysLate * core.Conf.Library.FinePerDay
		rec.Fine = amount
		fine = &Fine{
			ID:        uuid.NewString(),
			IssueID:   rec.ID,
			StudentID: rec.StudentID,
			Amount:    amount,
			Reason:    fmt.Sprintf("Returned %d day(s) after the due date", daysLate),
			Status:    FineStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	rec, err = svc.repo.CloseIssue(ctx, rec, fine)
	if err != nil {
		if err == ErrAlreadyReturned {
			return Issue{}, core.NewConflictError(err)
		}
		return Issue{}, err
	}

	if fine != nil {
		svc.sendFineNotice(ctx, rec, *fine)
	}
	return rec, nil
}

func (svc *Service) GetIssue(ctx context.Context, id string) (Issue, error) {
	rec, err := svc.repo.GetIssueByID(ctx, id)
	if err != nil {
		if err == ErrIssueNotFound {
			return Issue{}, core.NewNotFoundError(err)
		}
		return Issue{}, err
	}
	return rec.WithDerivedStatus(Today()), nil
}

func (svc *Service) FilterIssues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	filter.Clean()
	recs, err := svc.repo.FilterIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	today := Today()
	for i := range recs {
		recs[i] = recs[i].WithDerivedStatus(today)
	}
	return recs, nil
}

// SweepOverdue flips open past-due records to Overdue in stored state.
// Meant to run nightly (see the admin sweepoverdue command) so reports built
// on persisted status stay accurate between reads.
func (svc *Service) SweepOverdue(ctx context.Context) (int, error) {
	return svc.repo.MarkIssuesOverdue(ctx, Today())
}

// Fines

func (svc *Service) GetFine(ctx context.Context, id string) (Fine, error) {
	fine, err := svc.repo.GetFineByID(ctx, id)
	if err != nil {
		if err == ErrFineNotFound {
			return Fine{}, core.NewNotFoundError(err)
		}
		return Fine{}, err
	}
	return fine, nil
}

func (svc *Service) FilterFines(ctx context.Context, filter FineFilter) ([]Fine, error) {
	filter.Clean()
	return svc.repo.FilterFines(ctx, filter)
}

// SettleFine marks a pending fine Paid or Waived. The amount never changes;
// only the settlement status, remarks and paid date do.
func (svc *Service) SettleFine(ctx context.Context, id string, uf UpdateFine) (Fine, error) {
	fine, err := svc.GetFine(ctx, id)
	if err != nil {
		return Fine{}, err
	}
	if fine.Status != FineStatusPending {
		return Fine{}, core.NewConflictError(ErrFineNotPending)
	}

	fine.Status = uf.Status
	fine.Remarks = uf.Remarks
	fine.UpdatedAt = time.Now().UTC()
	if uf.Status == FineStatusPaid {
		fine.PaidDate = Today()
	}
	return svc.repo.UpdateFine(ctx, fine)
}

func (svc *Service) TotalPending(ctx context.Context) (int, error) {
	return svc.sumFines(ctx, FineStatusPending)
}

func (svc *Service) TotalPaid(ctx context.Context) (int, error) {
	return svc.sumFines(ctx, FineStatusPaid)
}

func (svc *Service) sumFines(ctx context.Context, status string) (int, error) {
	fines, err := svc.repo.FilterFines(ctx, FineFilter{Status: status})
	if err != nil {
		return 0, err
	}
	var total int
	for _, f := range fines {
		total += f.Amount
	}
	return total, nil
}

// Stats recomputes the dashboard aggregates from current state.
func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.LibraryStats(ctx, Today())
}

func (svc *Service) sendFineNotice(ctx context.Context, rec Issue, fine Fine) {
	std, err := svc.students.GetStudentByID(ctx, rec.StudentID)
	if err != nil || std.Email == "" {
		return
	}
	book, err := svc.repo.GetBookByID(ctx, rec.BookID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: std.Name, Address: std.Email}},
		Subject: "Library fine for an overdue return",
		Body: fmt.Sprintf(
			"Dear %s,\n\n%q was returned on %s, past its due date of %s.\n"+
				"A fine of %d has been recorded against your account and is payable at the library desk.\n",
			std.Name, book.Title, rec.ReturnDate, rec.DueDate, fine.Amount),
	})
}
