package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/student"
	dummydb "github.com/tchoudhury/pathshala/storage/database/dummy"
)

// mailerMock captures outgoing messages; dummy services send synchronously.
type mailerMock struct {
	sent []*core.EmailMessage
}

func (m *mailerMock) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

type testEnv struct {
	svc      *library.Service
	repo     library.Repository
	students student.Repository
	mailer   *mailerMock
}

func setup(t *testing.T) testEnv {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewLibraryRepository(db)
	students := dummydb.NewStudentRepository(db)
	mailer := &mailerMock{}
	return testEnv{
		svc:      library.NewService(repo, students, mailer),
		repo:     repo,
		students: students,
		mailer:   mailer,
	}
}

func createBook(t *testing.T, env testEnv, title, isbn string, qty int) library.Book {
	t.Helper()
	book, err := env.svc.CreateBook(context.Background(), library.NewBook{
		Title:    title,
		Author:   "Author",
		ISBN:     isbn,
		Category: "Fiction",
		Quantity: qty,
	})
	require.NoError(t, err)
	return book
}

func createStudent(t *testing.T, env testEnv, name, rollNo string, active bool) student.Student {
	t.Helper()
	now := time.Now().UTC()
	std, err := env.students.CreateStudent(context.Background(), student.Student{
		ID:        uuid.NewString(),
		Name:      name,
		RollNo:    rollNo,
		ClassName: "Class 7",
		Email:     rollNo + "@test.bd",
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return std
}

func issueBook(t *testing.T, env testEnv, book library.Book, std student.Student) library.Issue {
	t.Helper()
	ni := library.NewIssue{BookID: book.ID, StudentID: std.ID}
	require.NoError(t, ni.Validate())
	rec, err := env.svc.Issue(context.Background(), ni)
	require.NoError(t, err)
	return rec
}

// issueBookDue plants an open record with an arbitrary due date straight into
// the ledger, bypassing the due-date-in-past validation.
func issueBookDue(t *testing.T, env testEnv, book library.Book, std student.Student, due library.Date) library.Issue {
	t.Helper()
	now := time.Now().UTC()
	rec, err := env.repo.CreateIssue(context.Background(), library.Issue{
		ID:        uuid.NewString(),
		BookID:    book.ID,
		StudentID: std.ID,
		IssueDate: due.AddDays(-core.Conf.Library.DefaultLoanDays),
		DueDate:   due,
		Status:    library.IssueStatusIssued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return rec
}

func getBook(t *testing.T, env testEnv, id string) library.Book {
	t.Helper()
	book, err := env.svc.GetBook(context.Background(), id)
	require.NoError(t, err)
	return book
}

func TestService_CreateBook(t *testing.T) {
	env := setup(t)

	book := createBook(t, env, "Gitanjali", "9780140449884", 3)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, 3, book.Quantity)
	assert.Equal(t, 3, book.Available, "a new book starts with all copies available")
	assert.Equal(t, library.BookStatusActive, book.Status)

	t.Run("duplicate ISBN rejected", func(t *testing.T) {
		nb := library.NewBook{Title: "Copycat", Author: "A", ISBN: "978-0-14-044988-4", Category: "Fiction", Quantity: 1}
		err := nb.Validate(env.svc)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "isbn", vErr.Fields[0].Field)
	})

	t.Run("malformed ISBN rejected", func(t *testing.T) {
		nb := library.NewBook{Title: "Bad", Author: "A", ISBN: "12ab", Category: "Fiction", Quantity: 1}
		assert.Error(t, nb.Validate(env.svc))
	})
}

func TestService_Issue(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Pather Panchali", "9788171676712", 2)
	std := createStudent(t, env, "Apu Roy", "roll-01", true)

	rec := issueBook(t, env, book, std)
	assert.Equal(t, library.IssueStatusIssued, rec.Status)
	assert.Equal(t, library.Today(), rec.IssueDate)
	assert.Equal(t, library.Today().AddDays(core.Conf.Library.DefaultLoanDays), rec.DueDate)
	assert.Equal(t, 1, getBook(t, env, book.ID).Available, "issuing decrements availability")

	t.Run("unknown book", func(t *testing.T) {
		_, err := env.svc.Issue(ctx, library.NewIssue{BookID: uuid.NewString(), StudentID: std.ID})
		var nfErr *core.NotFoundError
		assert.ErrorAs(t, err, &nfErr)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.svc.Issue(ctx, library.NewIssue{BookID: book.ID, StudentID: uuid.NewString()})
		var nfErr *core.NotFoundError
		assert.ErrorAs(t, err, &nfErr)
	})

	t.Run("inactive student", func(t *testing.T) {
		lazy := createStudent(t, env, "Lazy Bones", "roll-02", false)
		_, err := env.svc.Issue(ctx, library.NewIssue{BookID: book.ID, StudentID: lazy.ID})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "student_id", vErr.Fields[0].Field)
	})

	t.Run("inactive book", func(t *testing.T) {
		shelved := createBook(t, env, "Shelved", "9780306406157", 1)
		_, err := env.svc.UpdateBook(ctx, shelved.ID, library.UpdateBook{
			Title: shelved.Title, Author: shelved.Author, ISBN: shelved.ISBN, Category: shelved.Category,
			Quantity: shelved.Quantity, Status: library.BookStatusInactive,
		})
		require.NoError(t, err)
		_, err = env.svc.Issue(ctx, library.NewIssue{BookID: shelved.ID, StudentID: std.ID})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "book_id", vErr.Fields[0].Field)
	})

	t.Run("no copies left", func(t *testing.T) {
		issueBook(t, env, book, std) // takes the last copy
		require.Equal(t, 0, getBook(t, env, book.ID).Available)

		_, err := env.svc.Issue(ctx, library.NewIssue{BookID: book.ID, StudentID: std.ID})
		var cErr *core.ConflictError
		require.ErrorAs(t, err, &cErr)
		assert.Equal(t, library.ErrNoCopiesAvailable, cErr.Err)
		assert.Equal(t, 0, getBook(t, env, book.ID).Available, "a failed issue must not touch availability")
	})
}

func TestNewIssue_dueDates(t *testing.T) {
	today := library.Today()

	t.Run("due before issue", func(t *testing.T) {
		ni := library.NewIssue{
			BookID: "b", StudentID: "s",
			IssueDate: today.AddDays(2), DueDate: today.AddDays(1),
		}
		var vErr *core.ValidationError
		require.ErrorAs(t, ni.Validate(), &vErr)
		assert.Equal(t, "due_date", vErr.Fields[0].Field)
	})

	t.Run("due in the past", func(t *testing.T) {
		ni := library.NewIssue{
			BookID: "b", StudentID: "s",
			IssueDate: today.AddDays(-5), DueDate: today.AddDays(-1),
		}
		var vErr *core.ValidationError
		require.ErrorAs(t, ni.Validate(), &vErr)
		assert.Equal(t, "due_date", vErr.Fields[0].Field)
	})

	t.Run("defaults applied", func(t *testing.T) {
		ni := library.NewIssue{BookID: "b", StudentID: "s"}
		require.NoError(t, ni.Validate())
		assert.Equal(t, today, ni.IssueDate)
		assert.Equal(t, today.AddDays(core.Conf.Library.DefaultLoanDays), ni.DueDate)
	})
}

func TestService_Return(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Chokher Bali", "9780679640981", 1)
	std := createStudent(t, env, "Binodini Devi", "roll-03", true)

	t.Run("on time", func(t *testing.T) {
		rec := issueBook(t, env, book, std)
		require.Equal(t, 0, getBook(t, env, book.ID).Available)

		rec, err := env.svc.Return(ctx, rec.ID, library.ReturnBook{Remarks: "good condition"})
		require.NoError(t, err)
		assert.Equal(t, library.IssueStatusReturned, rec.Status)
		assert.Equal(t, library.Today(), rec.ReturnDate)
		assert.Equal(t, 0, rec.Fine, "no fine on an on-time return")
		assert.Equal(t, 1, getBook(t, env, book.ID).Available, "returning restores availability")
		assert.Empty(t, env.mailer.sent)

		fines, err := env.svc.FilterFines(ctx, library.FineFilter{})
		require.NoError(t, err)
		assert.Empty(t, fines)

		t.Run("already returned", func(t *testing.T) {
			_, err := env.svc.Return(ctx, rec.ID, library.ReturnBook{})
			var cErr *core.ConflictError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, library.ErrAlreadyReturned, cErr.Err)
			assert.Equal(t, 1, getBook(t, env, book.ID).Available, "a rejected return must not touch availability")
		})
	})

	t.Run("late accrues a fine", func(t *testing.T) {
		rec := issueBookDue(t, env, book, std, library.Today().AddDays(-6))

		rec, err := env.svc.Return(ctx, rec.ID, library.ReturnBook{})
		require.NoError(t, err)
		wantAmount := 6 * core.Conf.Library.FinePerDay
		assert.Equal(t, wantAmount, rec.Fine)

		fines, err := env.svc.FilterFines(ctx, library.FineFilter{Status: library.FineStatusPending})
		require.NoError(t, err)
		require.Len(t, fines, 1)
		assert.Equal(t, rec.ID, fines[0].IssueID)
		assert.Equal(t, std.ID, fines[0].StudentID)
		assert.Equal(t, wantAmount, fines[0].Amount)

		require.Len(t, env.mailer.sent, 1, "the student gets a fine notice")
		assert.Equal(t, std.Email, env.mailer.sent[0].To[0].Address)
	})

	t.Run("unknown issue", func(t *testing.T) {
		_, err := env.svc.Return(ctx, uuid.NewString(), library.ReturnBook{})
		var nfErr *core.NotFoundError
		assert.ErrorAs(t, err, &nfErr)
	})
}

func TestService_UpdateBook(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Feluda Samagra", "9780143102588", 3)
	std := createStudent(t, env, "Topse Mitra", "roll-04", true)
	issueBook(t, env, book, std)
	issueBook(t, env, book, std)

	t.Run("quantity below issued copies", func(t *testing.T) {
		_, err := env.svc.UpdateBook(ctx, book.ID, library.UpdateBook{Quantity: 1})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "quantity", vErr.Fields[0].Field)
	})

	t.Run("availability re-derived", func(t *testing.T) {
		ub := library.UpdateBook{Quantity: 5}
		require.NoError(t, ub.Validate(getBook(t, env, book.ID), env.svc))
		updated, err := env.svc.UpdateBook(ctx, book.ID, ub)
		require.NoError(t, err)
		assert.Equal(t, 5, updated.Quantity)
		assert.Equal(t, 3, updated.Available, "available = quantity - open issues")
	})
}

func TestService_DeleteBook(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Aranyak", "9780141393391", 1)
	std := createStudent(t, env, "Satya Bose", "roll-05", true)
	rec := issueBook(t, env, book, std)

	err := env.svc.DeleteBook(ctx, book.ID)
	var cErr *core.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, library.ErrBookHasOpenIssues, cErr.Err)

	_, err = env.svc.Return(ctx, rec.ID, library.ReturnBook{})
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteBook(ctx, book.ID), "a book with only closed records can go")

	_, err = env.svc.GetBook(ctx, book.ID)
	var nfErr *core.NotFoundError
	assert.ErrorAs(t, err, &nfErr)

	closed, err := env.svc.GetIssue(ctx, rec.ID)
	require.NoError(t, err, "the ledger entry outlives the book")
	assert.Equal(t, book.ID, closed.BookID)
}

func TestService_SettleFine(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Devdas", "9780143031758", 1)
	std := createStudent(t, env, "Parbati Devi", "roll-06", true)
	rec := issueBookDue(t, env, book, std, library.Today().AddDays(-4))
	_, err := env.svc.Return(ctx, rec.ID, library.ReturnBook{})
	require.NoError(t, err)

	fines, err := env.svc.FilterFines(ctx, library.FineFilter{Status: library.FineStatusPending})
	require.NoError(t, err)
	require.Len(t, fines, 1)
	fine := fines[0]

	t.Run("waive requires remarks", func(t *testing.T) {
		uf := library.UpdateFine{Status: library.FineStatusWaived}
		var vErr *core.ValidationError
		require.ErrorAs(t, uf.Validate(), &vErr)
		assert.Equal(t, "remarks", vErr.Fields[0].Field)
	})

	t.Run("waived", func(t *testing.T) {
		waived, err := env.svc.SettleFine(ctx, fine.ID, library.UpdateFine{
			Status: library.FineStatusWaived, Remarks: "first offence, warned",
		})
		require.NoError(t, err)
		assert.Equal(t, library.FineStatusWaived, waived.Status)
		assert.Equal(t, fine.Amount, waived.Amount, "amount never changes")
		assert.True(t, waived.PaidDate.IsZero())
	})

	t.Run("already settled", func(t *testing.T) {
		_, err := env.svc.SettleFine(ctx, fine.ID, library.UpdateFine{Status: library.FineStatusPaid})
		var cErr *core.ConflictError
		require.ErrorAs(t, err, &cErr)
		assert.Equal(t, library.ErrFineNotPending, cErr.Err)
	})

	t.Run("paid sets paid date", func(t *testing.T) {
		rec2 := issueBookDue(t, env, book, std, library.Today().AddDays(-2))
		_, err := env.svc.Return(ctx, rec2.ID, library.ReturnBook{})
		require.NoError(t, err)

		pending, err := env.svc.FilterFines(ctx, library.FineFilter{Status: library.FineStatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)

		paid, err := env.svc.SettleFine(ctx, pending[0].ID, library.UpdateFine{Status: library.FineStatusPaid})
		require.NoError(t, err)
		assert.Equal(t, library.FineStatusPaid, paid.Status)
		assert.Equal(t, library.Today(), paid.PaidDate)
	})
}

func TestService_fineTotals(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Srikanta", "9780595344581", 3)
	std := createStudent(t, env, "Indranath Roy", "roll-07", true)

	daysLate := []int{2, 3, 7}
	var fineIDs []string
	for _, d := range daysLate {
		rec := issueBookDue(t, env, book, std, library.Today().AddDays(-d))
		_, err := env.svc.Return(ctx, rec.ID, library.ReturnBook{})
		require.NoError(t, err)
	}
	fines, err := env.svc.FilterFines(ctx, library.FineFilter{})
	require.NoError(t, err)
	require.Len(t, fines, len(daysLate))
	for _, f := range fines {
		fineIDs = append(fineIDs, f.ID)
	}

	perDay := core.Conf.Library.FinePerDay
	pending, err := env.svc.TotalPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, (2+3+7)*perDay, pending)

	_, err = env.svc.SettleFine(ctx, fineIDs[0], library.UpdateFine{Status: library.FineStatusPaid})
	require.NoError(t, err)

	pending, err = env.svc.TotalPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, (3+7)*perDay, pending)

	paid, err := env.svc.TotalPaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*perDay, paid)
}

func TestService_overdueHandling(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	book := createBook(t, env, "Gora", "9780143065838", 3)
	std := createStudent(t, env, "Gora Ghosh", "roll-08", true)

	onTime := issueBook(t, env, book, std)
	late := issueBookDue(t, env, book, std, library.Today().AddDays(-1))

	t.Run("derived on read", func(t *testing.T) {
		got, err := env.svc.GetIssue(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, library.IssueStatusOverdue, got.Status)

		stored, err := env.repo.GetIssueByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, library.IssueStatusIssued, stored.Status, "reads never write")

		overdue, err := env.svc.FilterIssues(ctx, library.IssueFilter{Status: library.IssueStatusOverdue})
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, late.ID, overdue[0].ID)

		open, err := env.svc.FilterIssues(ctx, library.IssueFilter{Status: library.IssueStatusIssued})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, onTime.ID, open[0].ID)
	})

	t.Run("sweep persists the flip", func(t *testing.T) {
		flipped, err := env.svc.SweepOverdue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, flipped)

		stored, err := env.repo.GetIssueByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, library.IssueStatusOverdue, stored.Status)

		flipped, err = env.svc.SweepOverdue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, flipped, "sweeping is idempotent")
	})
}

func TestService_Stats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	b1 := createBook(t, env, "Kapalkundala", "9781532738631", 3)
	b2 := createBook(t, env, "Durgeshnandini", "9781539094616", 2)
	std := createStudent(t, env, "Nabakumar Das", "roll-09", true)

	issueBook(t, env, b1, std)                                   // open, on time
	issueBookDue(t, env, b1, std, library.Today().AddDays(-3)) // open, overdue
	retRec := issueBook(t, env, b2, std)
	_, err := env.svc.Return(ctx, retRec.ID, library.ReturnBook{}) // returned today
	require.NoError(t, err)
	lateRet := issueBookDue(t, env, b2, std, library.Today().AddDays(-2))
	_, err = env.svc.Return(ctx, lateRet.ID, library.ReturnBook{}) // pending fine of 2 days
	require.NoError(t, err)

	stats, err := env.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalBooks)
	assert.Equal(t, 3, stats.AvailableBooks) // b1: 3-2=1, b2: 2-0=2
	assert.Equal(t, 2, stats.IssuedBooks)
	assert.Equal(t, 1, stats.OverdueBooks)
	assert.Equal(t, 2, stats.TodayReturns)
	assert.Equal(t, 2*core.Conf.Library.FinePerDay, stats.PendingFines)

	// settling the fine empties the pending bucket
	fines, err := env.svc.FilterFines(ctx, library.FineFilter{Status: library.FineStatusPending})
	require.NoError(t, err)
	require.Len(t, fines, 1)
	_, err = env.svc.SettleFine(ctx, fines[0].ID, library.UpdateFine{Status: library.FineStatusPaid})
	require.NoError(t, err)

	stats, err = env.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingFines)
}
