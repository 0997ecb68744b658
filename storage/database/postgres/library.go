package pgrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tchoudhury/pathshala/core/library"
)

type libraryRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) library.Repository {
	return &libraryRepository{db: db}
}

// Catalog

func (repo *libraryRepository) CheckISBNUniqueness(ctx context.Context, isbn string, excluded ...library.Book) error {
	stmt := pg.From("books").Select(goqu.COUNT("*")).Where(goqu.Ex{"isbn": isbn})
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, b := range excluded {
			ids = append(ids, b.ID)
		}
		stmt = stmt.Where(goqu.C("id").NotIn(ids))
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking ISBN uniqueness")
	}
	if count > 0 {
		return library.ErrISBNExists
	}
	return nil
}

func (repo *libraryRepository) CreateBook(ctx context.Context, book library.Book) (library.Book, error) {
	query, args, err := pg.Insert("books").Rows(bookRecord(book)).ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return library.Book{}, errors.Wrap(err, "inserting book")
	}
	return book, nil
}

func (repo *libraryRepository) GetBookByID(ctx context.Context, id string) (library.Book, error) {
	query, args, err := pg.From("books").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building query")
	}

	var row bookRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return library.Book{}, library.ErrBookNotFound
		}
		return library.Book{}, errors.Wrap(err, "getting book")
	}
	return row.toBook(), nil
}

func (repo *libraryRepository) FilterBooks(ctx context.Context, filter library.BookFilter) ([]library.Book, error) {
	stmt := pg.From("books").Order(goqu.I("created_at").Asc())
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		stmt = stmt.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("isbn").ILike(pattern),
		))
	}
	if filter.Category != "" {
		stmt = stmt.Where(goqu.Ex{"category": filter.Category})
	}
	if filter.Status != "" {
		stmt = stmt.Where(goqu.Ex{"status": filter.Status})
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []bookRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering books")
	}
	books := make([]library.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, nil
}

func (repo *libraryRepository) UpdateBook(ctx context.Context, book library.Book) (library.Book, error) {
	rec := bookRecord(book)
	delete(rec, "id")
	delete(rec, "created_at")
	query, args, err := pg.Update("books").Set(rec).Where(goqu.Ex{"id": book.ID}).ToSQL()
	if err != nil {
		return library.Book{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return library.Book{}, errors.Wrap(err, "updating book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.Book{}, library.ErrBookNotFound
	}
	return repo.GetBookByID(ctx, book.ID)
}

func (repo *libraryRepository) DeleteBook(ctx context.Context, id string) error {
	query, args, err := pg.Delete("books").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting book")
	}
	return nil
}

// Circulation ledger

var openStatuses = []string{library.IssueStatusIssued, library.IssueStatusOverdue}

func (repo *libraryRepository) CountOpenIssuesByBook(ctx context.Context, bookID string) (int, error) {
	return repo.countOpenIssues(ctx, goqu.Ex{"book_id": bookID})
}

func (repo *libraryRepository) CountOpenIssuesByStudent(ctx context.Context, studentID string) (int, error) {
	return repo.countOpenIssues(ctx, goqu.Ex{"student_id": studentID})
}

func (repo *libraryRepository) countOpenIssues(ctx context.Context, by goqu.Ex) (int, error) {
	query, args, err := pg.From("issues").
		Select(goqu.COUNT("*")).
		Where(by, goqu.C("status").In(openStatuses)).
		ToSQL()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}

	var count int
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting open issues")
	}
	return count, nil
}

// CreateIssue decrements the book's availability and inserts the ledger
// record in one transaction. The guarded UPDATE serializes concurrent issue
// attempts on the last copy: only one of two racing requests can pass
// `available > 0`.
func (repo *libraryRepository) CreateIssue(ctx context.Context, rec library.Issue) (library.Issue, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE books SET available = available - 1, updated_at = $1 WHERE id = $2 AND available > 0`,
			rec.CreatedAt, rec.BookID)
		if err != nil {
			return errors.Wrap(err, "decrementing availability")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var count int
			if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM books WHERE id = $1`, rec.BookID); err != nil {
				return errors.Wrap(err, "checking book")
			}
			if count == 0 {
				return library.ErrBookNotFound
			}
			return library.ErrNoCopiesAvailable
		}

		query, args, err := pg.Insert("issues").Rows(issueRecord(rec)).ToSQL()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "inserting issue")
		}
		return nil
	})
	if err != nil {
		return library.Issue{}, err
	}
	return rec, nil
}

func (repo *libraryRepository) GetIssueByID(ctx context.Context, id string) (library.Issue, error) {
	query, args, err := pg.From("issues").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return library.Issue{}, errors.Wrap(err, "building query")
	}

	var row issueRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return library.Issue{}, library.ErrIssueNotFound
		}
		return library.Issue{}, errors.Wrap(err, "getting issue")
	}
	return row.toIssue(), nil
}

func (repo *libraryRepository) FilterIssues(ctx context.Context, filter library.IssueFilter) ([]library.Issue, error) {
	stmt := pg.From("issues").Order(goqu.I("created_at").Asc())
	if filter.Status != "" {
		// match against the derived status: open past-due records count as
		// Overdue even before the nightly sweep has flipped them
		today := library.Today()
		switch filter.Status {
		case library.IssueStatusIssued:
			stmt = stmt.Where(goqu.Ex{"status": library.IssueStatusIssued}, goqu.C("due_date").Gte(today.Time))
		case library.IssueStatusOverdue:
			stmt = stmt.Where(goqu.Or(
				goqu.Ex{"status": library.IssueStatusOverdue},
				goqu.And(goqu.Ex{"status": library.IssueStatusIssued}, goqu.C("due_date").Lt(today.Time)),
			))
		default:
			stmt = stmt.Where(goqu.Ex{"status": filter.Status})
		}
	}
	if filter.StudentID != "" {
		stmt = stmt.Where(goqu.Ex{"student_id": filter.StudentID})
	}
	if filter.BookID != "" {
		stmt = stmt.Where(goqu.Ex{"book_id": filter.BookID})
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []issueRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering issues")
	}
	recs := make([]library.Issue, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toIssue())
	}
	return recs, nil
}

// CloseIssue saves the returned record, restores availability and inserts the
// fine (when any) in one transaction. The status guard on the UPDATE makes a
// double return a conflict rather than a double increment.
func (repo *libraryRepository) CloseIssue(ctx context.Context, rec library.Issue, fine *library.Fine) (library.Issue, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE issues SET return_date = $1, status = $2, fine = $3, remarks = $4, updated_at = $5
			 WHERE id = $6 AND status IN ($7, $8)`,
			rec.ReturnDate, rec.Status, rec.Fine, rec.Remarks, rec.UpdatedAt,
			rec.ID, library.IssueStatusIssued, library.IssueStatusOverdue)
		if err != nil {
			return errors.Wrap(err, "closing issue")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var count int
			if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM issues WHERE id = $1`, rec.ID); err != nil {
				return errors.Wrap(err, "checking issue")
			}
			if count == 0 {
				return library.ErrIssueNotFound
			}
			return library.ErrAlreadyReturned
		}

		if _, err = tx.ExecContext(ctx,
			`UPDATE books SET available = LEAST(available + 1, quantity), updated_at = $1 WHERE id = $2`,
			rec.UpdatedAt, rec.BookID); err != nil {
			return errors.Wrap(err, "incrementing availability")
		}

		if fine != nil {
			query, args, err := pg.Insert("fines").Rows(fineRecord(*fine)).ToSQL()
			if err != nil {
				return errors.Wrap(err, "building query")
			}
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return errors.Wrap(err, "inserting fine")
			}
		}
		return nil
	})
	if err != nil {
		return library.Issue{}, err
	}
	return rec, nil
}

func (repo *libraryRepository) MarkIssuesOverdue(ctx context.Context, asOf library.Date) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE issues SET status = $1, updated_at = NOW() WHERE status = $2 AND due_date < $3`,
		library.IssueStatusOverdue, library.IssueStatusIssued, asOf.Time)
	if err != nil {
		return 0, errors.Wrap(err, "marking issues overdue")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting marked issues")
}

// Fine ledger

func (repo *libraryRepository) GetFineByID(ctx context.Context, id string) (library.Fine, error) {
	query, args, err := pg.From("fines").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return library.Fine{}, errors.Wrap(err, "building query")
	}

	var row fineRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return library.Fine{}, library.ErrFineNotFound
		}
		return library.Fine{}, errors.Wrap(err, "getting fine")
	}
	return row.toFine(), nil
}

func (repo *libraryRepository) FilterFines(ctx context.Context, filter library.FineFilter) ([]library.Fine, error) {
	stmt := pg.From("fines").Order(goqu.I("created_at").Asc())
	if filter.Status != "" {
		stmt = stmt.Where(goqu.Ex{"status": filter.Status})
	}
	if filter.StudentID != "" {
		stmt = stmt.Where(goqu.Ex{"student_id": filter.StudentID})
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []fineRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering fines")
	}
	fines := make([]library.Fine, 0, len(rows))
	for _, row := range rows {
		fines = append(fines, row.toFine())
	}
	return fines, nil
}

func (repo *libraryRepository) UpdateFine(ctx context.Context, fine library.Fine) (library.Fine, error) {
	// amount stays untouched: it is immutable once the fine is created
	res, err := repo.db.ExecContext(ctx,
		`UPDATE fines SET status = $1, remarks = $2, paid_date = $3, updated_at = $4 WHERE id = $5`,
		fine.Status, fine.Remarks, fine.PaidDate, fine.UpdatedAt, fine.ID)
	if err != nil {
		return library.Fine{}, errors.Wrap(err, "updating fine")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.Fine{}, library.ErrFineNotFound
	}
	return repo.GetFineByID(ctx, fine.ID)
}

// Aggregates

func (repo *libraryRepository) LibraryStats(ctx context.Context, today library.Date) (library.Stats, error) {
	var stats library.Stats

	query, args, err := pg.From("books").
		Select(goqu.COUNT("*").As("total"), goqu.COALESCE(goqu.SUM("available"), 0).As("available")).
		ToSQL()
	if err != nil {
		return stats, errors.Wrap(err, "building query")
	}
	var books struct {
		Total     int `db:"total"`
		Available int `db:"available"`
	}
	if err = repo.db.GetContext(ctx, &books, query, args...); err != nil {
		return stats, errors.Wrap(err, "counting books")
	}
	stats.TotalBooks = books.Total
	stats.AvailableBooks = books.Available

	if err = repo.db.GetContext(ctx, &stats.IssuedBooks,
		`SELECT COUNT(*) FROM issues WHERE status IN ($1, $2)`,
		library.IssueStatusIssued, library.IssueStatusOverdue); err != nil {
		return stats, errors.Wrap(err, "counting open issues")
	}
	if err = repo.db.GetContext(ctx, &stats.OverdueBooks,
		`SELECT COUNT(*) FROM issues WHERE status IN ($1, $2) AND due_date < $3`,
		library.IssueStatusIssued, library.IssueStatusOverdue, today.Time); err != nil {
		return stats, errors.Wrap(err, "counting overdue issues")
	}
	if err = repo.db.GetContext(ctx, &stats.TodayReturns,
		`SELECT COUNT(*) FROM issues WHERE return_date = $1`, today.Time); err != nil {
		return stats, errors.Wrap(err, "counting today's returns")
	}
	if err = repo.db.GetContext(ctx, &stats.PendingFines,
		`SELECT COALESCE(SUM(amount), 0) FROM fines WHERE status = $1`,
		library.FineStatusPending); err != nil {
		return stats, errors.Wrap(err, "summing pending fines")
	}

	return stats, nil
}

// Row mapping

type bookRow struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	ISBN            string    `db:"isbn"`
	Category        string    `db:"category"`
	Publisher       string    `db:"publisher"`
	PublicationYear int       `db:"publication_year"`
	Quantity        int       `db:"quantity"`
	Available       int       `db:"available"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row bookRow) toBook() library.Book {
	return library.Book{
		ID:              row.ID,
		Title:           row.Title,
		Author:          row.Author,
		ISBN:            row.ISBN,
		Category:        row.Category,
		Publisher:       row.Publisher,
		PublicationYear: row.PublicationYear,
		Quantity:        row.Quantity,
		Available:       row.Available,
		Status:          row.Status,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func bookRecord(b library.Book) goqu.Record {
	return goqu.Record{
		"id":               b.ID,
		"title":            b.Title,
		"author":           b.Author,
		"isbn":             b.ISBN,
		"category":         b.Category,
		"publisher":        b.Publisher,
		"publication_year": b.PublicationYear,
		"quantity":         b.Quantity,
		"available":        b.Available,
		"status":           b.Status,
		"created_at":       b.CreatedAt,
		"updated_at":       b.UpdatedAt,
	}
}

type issueRow struct {
	ID         string       `db:"id"`
	BookID     string       `db:"book_id"`
	StudentID  string       `db:"student_id"`
	IssueDate  library.Date `db:"issue_date"`
	DueDate    library.Date `db:"due_date"`
	ReturnDate null.Time    `db:"return_date"`
	Status     string       `db:"status"`
	Fine       int          `db:"fine"`
	Notes      string       `db:"notes"`
	Remarks    string       `db:"remarks"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func (row issueRow) toIssue() library.Issue {
	rec := library.Issue{
		ID:        row.ID,
		BookID:    row.BookID,
		StudentID: row.StudentID,
		IssueDate: row.IssueDate,
		DueDate:   row.DueDate,
		Status:    row.Status,
		Fine:      row.Fine,
		Notes:     row.Notes,
		Remarks:   row.Remarks,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.ReturnDate.Valid {
		rec.ReturnDate = library.DateOf(row.ReturnDate.Time)
	}
	return rec
}

func issueRecord(rec library.Issue) goqu.Record {
	return goqu.Record{
		"id":          rec.ID,
		"book_id":     rec.BookID,
		"student_id":  rec.StudentID,
		"issue_date":  rec.IssueDate,
		"due_date":    rec.DueDate,
		"return_date": rec.ReturnDate,
		"status":      rec.Status,
		"fine":        rec.Fine,
		"notes":       rec.Notes,
		"remarks":     rec.Remarks,
		"created_at":  rec.CreatedAt,
		"updated_at":  rec.UpdatedAt,
	}
}

type fineRow struct {
	ID        string    `db:"id"`
	IssueID   string    `db:"issue_id"`
	StudentID string    `db:"student_id"`
	Amount    int       `db:"amount"`
	Reason    string    `db:"reason"`
	Status    string    `db:"status"`
	Remarks   string    `db:"remarks"`
	PaidDate  null.Time `db:"paid_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row fineRow) toFine() library.Fine {
	f := library.Fine{
		ID:        row.ID,
		IssueID:   row.IssueID,
		StudentID: row.StudentID,
		Amount:    row.Amount,
		Reason:    row.Reason,
		Status:    row.Status,
		Remarks:   row.Remarks,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.PaidDate.Valid {
		f.PaidDate = library.DateOf(row.PaidDate.Time)
	}
	return f
}

func fineRecord(f library.Fine) goqu.Record {
	return goqu.Record{
		"id":         f.ID,
		"issue_id":   f.IssueID,
		"student_id": f.StudentID,
		"amount":     f.Amount,
		"reason":     f.Reason,
		"status":     f.Status,
		"remarks":    f.Remarks,
		"paid_date":  f.PaidDate,
		"created_at": f.CreatedAt,
		"updated_at": f.UpdatedAt,
	}
}
