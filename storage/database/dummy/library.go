package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/tchoudhury/pathshala/core/library"
)

type libraryRepository struct {
	db *DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) library.Repository {
	return &libraryRepository{db: db}
}

// Catalog

func (repo *libraryRepository) queryBooks() []library.Book {
	books := make([]library.Book, 0, len(repo.db.books))
	for _, b := range repo.db.books {
		books = append(books, *b)
	}
	sort.Slice(books, func(i, j int) bool { return repo.db.ord[books[i].ID] < repo.db.ord[books[j].ID] })
	return books
}

func (repo *libraryRepository) CheckISBNUniqueness(_ context.Context, isbn string, excluded ...library.Book) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, b := range repo.db.books {
		if b.ISBN != isbn {
			continue
		}
		if !isExcludedBook(*b, excluded) {
			return library.ErrISBNExists
		}
	}
	return nil
}

func (repo *libraryRepository) CreateBook(_ context.Context, book library.Book) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.books[book.ID] = &book
	repo.db.track(book.ID)
	return book, nil
}

func (repo *libraryRepository) GetBookByID(_ context.Context, id string) (library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.books[id]; ok {
		return *b, nil
	}
	return library.Book{}, library.ErrBookNotFound
}

func (repo *libraryRepository) FilterBooks(_ context.Context, filter library.BookFilter) ([]library.Book, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	books := repo.queryBooks()

	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		var filtered []library.Book
		for _, b := range books {
			if strings.Contains(strings.ToLower(b.Title), search) ||
				strings.Contains(strings.ToLower(b.Author), search) ||
				strings.Contains(strings.ToLower(b.ISBN), search) {
				filtered = append(filtered, b)
			}
		}
		books = filtered
	}
	if books != nil && filter.Category != "" {
		var filtered []library.Book
		for _, b := range books {
			if b.Category == filter.Category {
				filtered = append(filtered, b)
			}
		}
		books = filtered
	}
	if books != nil && filter.Status != "" {
		var filtered []library.Book
		for _, b := range books {
			if b.Status == filter.Status {
				filtered = append(filtered, b)
			}
		}
		books = filtered
	}

	return books, nil
}

func (repo *libraryRepository) UpdateBook(_ context.Context, book library.Book) (library.Book, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.books[book.ID]
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	book.CreatedAt = orig.CreatedAt
	repo.db.books[book.ID] = &book
	return book, nil
}

func (repo *libraryRepository) DeleteBook(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.books, id)
	return nil
}

// Circulation ledger

func (repo *libraryRepository) queryIssues() []library.Issue {
	recs := make([]library.Issue, 0, len(repo.db.issues))
	for _, rec := range repo.db.issues {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return repo.db.ord[recs[i].ID] < repo.db.ord[recs[j].ID] })
	return recs
}

func (repo *libraryRepository) CountOpenIssuesByBook(_ context.Context, bookID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, rec := range repo.db.issues {
		if rec.BookID == bookID && rec.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (repo *libraryRepository) CountOpenIssuesByStudent(_ context.Context, studentID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, rec := range repo.db.issues {
		if rec.StudentID == studentID && rec.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (repo *libraryRepository) CreateIssue(_ context.Context, rec library.Issue) (library.Issue, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	book, ok := repo.db.books[rec.BookID]
	if !ok {
		return library.Issue{}, library.ErrBookNotFound
	}
	if book.Available <= 0 {
		return library.Issue{}, library.ErrNoCopiesAvailable
	}

	book.Available--
	book.UpdatedAt = rec.CreatedAt
	repo.db.issues[rec.ID] = &rec
	repo.db.track(rec.ID)
	return rec, nil
}

func (repo *libraryRepository) GetIssueByID(_ context.Context, id string) (library.Issue, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.issues[id]; ok {
		return *rec, nil
	}
	return library.Issue{}, library.ErrIssueNotFound
}

func (repo *libraryRepository) FilterIssues(_ context.Context, filter library.IssueFilter) ([]library.Issue, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := repo.queryIssues()

	if filter.Status != "" {
		today := library.Today()
		var filtered []library.Issue
		for _, rec := range recs {
			if rec.WithDerivedStatus(today).Status == filter.Status {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if recs != nil && filter.StudentID != "" {
		var filtered []library.Issue
		for _, rec := range recs {
			if rec.StudentID == filter.StudentID {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if recs != nil && filter.BookID != "" {
		var filtered []library.Issue
		for _, rec := range recs {
			if rec.BookID == filter.BookID {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	return recs, nil
}

func (repo *libraryRepository) CloseIssue(_ context.Context, rec library.Issue, fine *library.Fine) (library.Issue, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.issues[rec.ID]
	if !ok {
		return library.Issue{}, library.ErrIssueNotFound
	}
	if !orig.IsOpen() {
		return library.Issue{}, library.ErrAlreadyReturned
	}

	repo.db.issues[rec.ID] = &rec
	if book, ok := repo.db.books[rec.BookID]; ok && book.Available < book.Quantity {
		book.Available++
		book.UpdatedAt = rec.UpdatedAt
	}
	if fine != nil {
		f := *fine
		repo.db.fines[f.ID] = &f
		repo.db.track(f.ID)
	}
	return rec, nil
}

func (repo *libraryRepository) MarkIssuesOverdue(_ context.Context, asOf library.Date) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, rec := range repo.db.issues {
		if rec.Status == library.IssueStatusIssued && rec.DueDate.Before(asOf) {
			rec.Status = library.IssueStatusOverdue
			n++
		}
	}
	return n, nil
}

// Fine ledger

func (repo *libraryRepository) GetFineByID(_ context.Context, id string) (library.Fine, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.fines[id]; ok {
		return *f, nil
	}
	return library.Fine{}, library.ErrFineNotFound
}

func (repo *libraryRepository) FilterFines(_ context.Context, filter library.FineFilter) ([]library.Fine, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	fines := make([]library.Fine, 0, len(repo.db.fines))
	for _, f := range repo.db.fines {
		fines = append(fines, *f)
	}
	sort.Slice(fines, func(i, j int) bool { return repo.db.ord[fines[i].ID] < repo.db.ord[fines[j].ID] })

	if filter.Status != "" {
		var filtered []library.Fine
		for _, f := range fines {
			if f.Status == filter.Status {
				filtered = append(filtered, f)
			}
		}
		fines = filtered
	}
	if fines != nil && filter.StudentID != "" {
		var filtered []library.Fine
		for _, f := range fines {
			if f.StudentID == filter.StudentID {
				filtered = append(filtered, f)
			}
		}
		fines = filtered
	}

	return fines, nil
}

func (repo *libraryRepository) UpdateFine(_ context.Context, fine library.Fine) (library.Fine, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.fines[fine.ID]
	if !ok {
		return library.Fine{}, library.ErrFineNotFound
	}
	fine.CreatedAt = orig.CreatedAt
	fine.Amount = orig.Amount // immutable once created
	repo.db.fines[fine.ID] = &fine
	return fine, nil
}

// Aggregates

func (repo *libraryRepository) LibraryStats(_ context.Context, today library.Date) (library.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats library.Stats
	stats.TotalBooks = len(repo.db.books)
	for _, b := range repo.db.books {
		stats.AvailableBooks += b.Available
	}
	for _, rec := range repo.db.issues {
		if rec.IsOpen() {
			stats.IssuedBooks++
			if rec.IsOverdue(today) {
				stats.OverdueBooks++
			}
		} else if rec.ReturnDate.Equal(today) {
			stats.TodayReturns++
		}
	}
	for _, f := range repo.db.fines {
		if f.Status == library.FineStatusPending {
			stats.PendingFines += f.Amount
		}
	}
	return stats, nil
}

func isExcludedBook(b library.Book, excluded []library.Book) bool {
	for _, ex := range excluded {
		if ex.ID == b.ID {
			return true
		}
	}
	return false
}
