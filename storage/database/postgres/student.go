package pgrepos

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/tchoudhury/pathshala/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CheckRollNoUniqueness(ctx context.Context, rollNo, className string, excluded ...student.Student) error {
	stmt := pg.From("students").
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{"roll_no": rollNo, "class_name": className})
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, s := range excluded {
			ids = append(ids, s.ID)
		}
		stmt = stmt.Where(goqu.C("id").NotIn(ids))
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "checking roll number uniqueness")
	}
	if count > 0 {
		return student.ErrRollNoExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	query, args, err := pg.Insert("students").Rows(studentRecord(std)).ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	query, args, err := pg.From("students").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building query")
	}

	var row studentRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	stmt := pg.From("students").Order(goqu.I("created_at").Asc())
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		stmt = stmt.Where(goqu.Or(
			goqu.C("name").ILike(pattern),
			goqu.C("roll_no").ILike(pattern),
			goqu.C("email").ILike(pattern),
		))
	}
	if filter.ClassName != "" {
		stmt = stmt.Where(goqu.Ex{"class_name": filter.ClassName})
	}
	if filter.IsActive != nil {
		stmt = stmt.Where(goqu.Ex{"is_active": *filter.IsActive})
	}
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []studentRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering students")
	}
	stds := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		stds = append(stds, row.toStudent())
	}
	return stds, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student, isActive *bool) (student.Student, error) {
	rec := goqu.Record{
		"name":       std.Name,
		"roll_no":    std.RollNo,
		"class_name": std.ClassName,
		"section":    std.Section,
		"email":      std.Email,
		"phone":      std.Phone,
		"updated_at": std.UpdatedAt,
	}
	if isActive != nil {
		rec["is_active"] = *isActive
	}
	query, args, err := pg.Update("students").Set(rec).Where(goqu.Ex{"id": std.ID}).ToSQL()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	query, args, err := pg.Delete("students").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return nil
}

type studentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	RollNo    string    `db:"roll_no"`
	ClassName string    `db:"class_name"`
	Section   string    `db:"section"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row studentRow) toStudent() student.Student {
	return student.Student{
		ID:        row.ID,
		Name:      row.Name,
		RollNo:    row.RollNo,
		ClassName: row.ClassName,
		Section:   row.Section,
		Email:     row.Email,
		Phone:     row.Phone,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func studentRecord(std student.Student) goqu.Record {
	return goqu.Record{
		"id":         std.ID,
		"name":       std.Name,
		"roll_no":    std.RollNo,
		"class_name": std.ClassName,
		"section":    std.Section,
		"email":      std.Email,
		"phone":      std.Phone,
		"is_active":  std.IsActive,
		"created_at": std.CreatedAt,
		"updated_at": std.UpdatedAt,
	}
}
