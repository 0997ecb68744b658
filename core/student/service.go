package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tchoudhury/pathshala/core"
)

var (
	// errors
	ErrNotFound      = errors.New("student not found")
	ErrRollNoExists  = errors.New("a student with this roll number already exists in this class")
	ErrHasOpenIssues = errors.New("student still has books issued")
)

type (
	Repository interface {
		CheckRollNoUniqueness(ctx context.Context, rollNo, className string, excluded ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		// FilterStudents applies AND operation on available QueryFilter fields.
		FilterStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student, isActive *bool) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
	}

	// OpenIssueChecker answers whether a student can be removed; the library
	// ledger implements it. Kept as a local interface so this package does
	// not depend on the circulation package.
	OpenIssueChecker interface {
		CountOpenIssuesByStudent(ctx context.Context, studentID string) (int, error)
	}

	Service struct {
		repo   Repository
		issues OpenIssueChecker
	}
)

func NewService(repo Repository, issues OpenIssueChecker) *Service {
	return &Service{repo: repo, issues: issues}
}

func (svc *Service) CheckRollNoUniqueness(rollNo, className string, exclStds ...Student) error {
	if err := svc.repo.CheckRollNoUniqueness(context.Background(), rollNo, className, exclStds...); err != nil {
		if err == ErrRollNoExists {
			return core.NewValidationError(err, core.FieldError{Field: "roll_no", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		ID:        uuid.NewString(),
		Name:      ns.Name,
		RollNo:    ns.RollNo,
		ClassName: ns.ClassName,
		Section:   ns.Section,
		Email:     ns.Email,
		Phone:     ns.Phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return Student{}, core.NewNotFoundError(err)
		}
		return Student{}, err
	}
	return std, nil
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Student, error) {
	filter.Clean()
	return svc.repo.FilterStudents(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std := Student{
		ID:        id,
		Name:      us.Name,
		RollNo:    us.RollNo,
		ClassName: us.ClassName,
		Section:   us.Section,
		Email:     us.Email,
		Phone:     us.Phone,
		UpdatedAt: time.Now().UTC(),
	}
	std, err := svc.repo.UpdateStudent(ctx, std, us.IsActive)
	if err != nil {
		if err == ErrNotFound {
			return Student{}, core.NewNotFoundError(err)
		}
		return Student{}, err
	}
	return std, nil
}

// Delete removes a student. A student with open circulation records cannot
// be removed; the ledger must be closed first.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetStudentByID(ctx, id); err != nil {
		if err == ErrNotFound {
			return core.NewNotFoundError(err)
		}
		return err
	}
	open, err := svc.issues.CountOpenIssuesByStudent(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting open issues")
	}
	if open > 0 {
		return core.NewConflictError(ErrHasOpenIssues)
	}
	return svc.repo.DeleteStudent(ctx, id)
}
