package student

import (
	"time"

	"github.com/tchoudhury/pathshala/core"
)

// Student is a borrower in the library and a pupil everywhere else.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RollNo    string    `json:"roll_no"`
	ClassName string    `json:"class_name"`
	Section   string    `json:"section,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to enroll a Student.
type NewStudent struct {
	Name      string `json:"name" validate:"required"`
	RollNo    string `json:"roll_no" validate:"required"`
	ClassName string `json:"class_name" validate:"required"`
	Section   string `json:"section"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,min=6,max=20"`
}

func (ns *NewStudent) Validate(svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.RollNo = core.CleanString(ns.RollNo, true /* lower */)
	ns.ClassName = core.CleanString(ns.ClassName)
	ns.Section = core.CleanString(ns.Section)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckRollNoUniqueness(ns.RollNo, ns.ClassName)
}

// UpdateStudent contains information needed to edit a Student.
// Empty fields keep their current value.
type UpdateStudent struct {
	Name      string `json:"name"`
	RollNo    string `json:"roll_no"`
	ClassName string `json:"class_name"`
	Section   string `json:"section"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,min=6,max=20"`
	IsActive  *bool  `json:"is_active"`
}

func (us *UpdateStudent) Validate(origStd Student, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = origStd.Name
	}
	if roll := core.CleanString(us.RollNo, true /* lower */); roll != "" {
		us.RollNo = roll
	} else {
		us.RollNo = origStd.RollNo
	}
	if class := core.CleanString(us.ClassName); class != "" {
		us.ClassName = class
	} else {
		us.ClassName = origStd.ClassName
	}
	us.Section = core.CleanString(us.Section)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.Phone = core.CleanString(us.Phone)

	if err := core.Validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckRollNoUniqueness(us.RollNo, us.ClassName, origStd)
}

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on Name, RollNo or Email.
type QueryFilter struct {
	Search    string `query:"search"`
	ClassName string `query:"class_name"`
	IsActive  *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassName = core.CleanString(qf.ClassName)
}
