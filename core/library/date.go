package library

import (
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with day granularity. Issue, due and return
// dates carry no time-of-day or timezone information; all overdue math
// compares whole days.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now())
}

func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of whole days between o and d; negative if d precedes o.
func (d Date) DaysSince(o Date) int {
	return int(d.Time.Sub(o.Time) / (24 * time.Hour))
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(`"`+dateLayout+`"`, s)
	if err != nil {
		return errors.Wrap(err, "parsing date")
	}
	*d = DateOf(t)
	return nil
}

// Value implements driver.Valuer; dates are stored in DATE columns.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = DateOf(v)
	case string:
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return errors.Wrap(err, "scanning date")
		}
		*d = DateOf(t)
	default:
		return errors.Errorf("cannot scan %T into Date", src)
	}
	return nil
}
