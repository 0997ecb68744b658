package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/tchoudhury/pathshala/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) query() []student.Student {
	stds := make([]student.Student, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		stds = append(stds, *s)
	}
	sort.Slice(stds, func(i, j int) bool { return repo.db.ord[stds[i].ID] < repo.db.ord[stds[j].ID] })
	return stds
}

func (repo *studentRepository) CheckRollNoUniqueness(_ context.Context, rollNo, className string, excluded ...student.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.students {
		if s.RollNo != rollNo || s.ClassName != className {
			continue
		}
		if !isExcludedStudent(*s, excluded) {
			return student.ErrRollNoExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.students[std.ID] = &std
	repo.db.track(std.ID)
	return std, nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return *s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FilterStudents(_ context.Context, filter student.QueryFilter) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stds := repo.query()

	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		var filtered []student.Student
		for _, s := range stds {
			if strings.Contains(strings.ToLower(s.Name), search) ||
				strings.Contains(strings.ToLower(s.RollNo), search) ||
				strings.Contains(strings.ToLower(s.Email), search) {
				filtered = append(filtered, s)
			}
		}
		stds = filtered
	}
	if stds != nil && filter.ClassName != "" {
		var filtered []student.Student
		for _, s := range stds {
			if s.ClassName == filter.ClassName {
				filtered = append(filtered, s)
			}
		}
		stds = filtered
	}
	if stds != nil && filter.IsActive != nil {
		var filtered []student.Student
		for _, s := range stds {
			if s.IsActive == *filter.IsActive {
				filtered = append(filtered, s)
			}
		}
		stds = filtered
	}

	return stds, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student, isActive *bool) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.students[std.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	orig.Name = std.Name
	orig.RollNo = std.RollNo
	orig.ClassName = std.ClassName
	orig.Section = std.Section
	orig.Email = std.Email
	orig.Phone = std.Phone
	orig.UpdatedAt = std.UpdatedAt
	if isActive != nil {
		orig.IsActive = *isActive
	}
	return *orig, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.students, id)
	return nil
}

func isExcludedStudent(s student.Student, excluded []student.Student) bool {
	for _, ex := range excluded {
		if ex.ID == s.ID {
			return true
		}
	}
	return false
}
