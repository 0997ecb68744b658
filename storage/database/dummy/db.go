package dummydb

import (
	"sync"

	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/student"
	"github.com/tchoudhury/pathshala/core/user"
)

// DB is the in-memory storage adapter used by tests and local development.
// A single lock guards all tables: compound circulation operations span the
// books, issues and fines tables and must be observed atomically.
type DB struct {
	sync.RWMutex

	books    map[string]*library.Book
	issues   map[string]*library.Issue
	fines    map[string]*library.Fine
	students map[string]*student.Student
	users    map[string]*user.User

	seq int // insertion order for stable listings
	ord map[string]int
}

func Open() (*DB, error) {
	db := &DB{
		books:    make(map[string]*library.Book),
		issues:   make(map[string]*library.Issue),
		fines:    make(map[string]*library.Fine),
		students: make(map[string]*student.Student),
		users:    make(map[string]*user.User),
		ord:      make(map[string]int),
	}
	return db, nil
}

// track records insertion order for id. Callers must hold the write lock.
func (db *DB) track(id string) {
	db.seq++
	db.ord[id] = db.seq
}
