package model

import (
	"net/url"
	"strconv"
	"time"
)

// DateLayout is the wire format for date-range filters.
const DateLayout = "2006-01-02"

// Filter holds the optional query parameters recognised by list endpoints.
// A key is sent only when its field is set and non-empty.
type Filter struct {
	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" yaml:"end_date"`
	Page      *int       `json:"page,omitempty" yaml:"page"`
	PerPage   *int       `json:"per_page,omitempty" yaml:"per_page"`
	Status    *string    `json:"status,omitempty" yaml:"status"`
	Type      *string    `json:"type,omitempty" yaml:"type"`
	Search    *string    `json:"search,omitempty" yaml:"search"`
}

// Values encodes the set fields as URL query values.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.StartDate != nil && !f.StartDate.IsZero() {
		v.Set("start_date", f.StartDate.Format(DateLayout))
	}
	if f.EndDate != nil && !f.EndDate.IsZero() {
		v.Set("end_date", f.EndDate.Format(DateLayout))
	}
	if f.Page != nil && *f.Page > 0 {
		v.Set("page", strconv.Itoa(*f.Page))
	}
	if f.PerPage != nil && *f.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(*f.PerPage))
	}
	setString(v, "status", f.Status)
	setString(v, "type", f.Type)
	setString(v, "search", f.Search)
	return v
}

// Merge returns f overridden by every field set in o.
func (f Filter) Merge(o Filter) Filter {
	if o.StartDate != nil {
		f.StartDate = o.StartDate
	}
	if o.EndDate != nil {
		f.EndDate = o.EndDate
	}
	if o.Page != nil {
		f.Page = o.Page
	}
	if o.PerPage != nil {
		f.PerPage = o.PerPage
	}
	if o.Status != nil {
		f.Status = o.Status
	}
	if o.Type != nil {
		f.Type = o.Type
	}
	if o.Search != nil {
		f.Search = o.Search
	}
	return f
}

func setString(v url.Values, key string, s *string) {
	if s != nil && *s != "" {
		v.Set(key, *s)
	}
}

// Int returns a pointer to n, for building filters inline.
func Int(n int) *int { return &n }

// String returns a pointer to s, for building filters inline.
func String(s string) *string { return &s }

// Date returns a pointer to t truncated to the day, for building filters inline.
func Date(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return &d
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
