package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotEditable is returned when a field is not on the edit allow-list.
	ErrNotEditable = errors.New("field is not editable")
	// ErrTypeMismatch is returned when a numeric field gets a non-integer value.
	ErrTypeMismatch = errors.New("value does not match field type")
	// ErrInvalidValue is returned for well-typed values the field rejects,
	// such as an empty title or an implausible year.
	ErrInvalidValue = errors.New("invalid field value")
)

// FieldError describes a rejected edit.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("setting %s to %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsEditable reports whether field may be changed after extraction.
func IsEditable(field string) bool {
	switch field {
	case FieldTitle, FieldCreationYear, FieldCreator, FieldCreditline,
		FieldLocation, FieldMedium, FieldAccessionNumber:
		return true
	default:
		return false
	}
}

// SetField parses raw and stores it in field. On error the record is left
// untouched.
func (r *Record) SetField(field, raw string) error {
	fail := func(err error) error {
		return &FieldError{Field: field, Value: raw, Err: err}
	}

	switch field {
	case FieldTitle:
		title := strings.TrimSpace(raw)
		if title == "" {
			return fail(ErrInvalidValue)
		}
		r.Title = title
	case FieldCreationYear:
		s := strings.TrimSpace(raw)
		if s == "" {
			r.CreationYear = nil
			return nil
		}
		year, err := strconv.Atoi(s)
		if err != nil {
			return fail(ErrTypeMismatch)
		}
		if !PlausibleYear(year) {
			return fail(ErrInvalidValue)
		}
		r.CreationYear = &year
	case FieldCreator:
		r.Creator = strings.TrimSpace(raw)
	case FieldCreditline:
		r.Creditline = strings.TrimSpace(raw)
	case FieldLocation:
		r.Location = strings.TrimSpace(raw)
	case FieldMedium:
		r.Medium = strings.TrimSpace(raw)
	case FieldAccessionNumber:
		// Opaque identifier, stored exactly as given.
		r.AccessionNumber = raw
	default:
		return fail(ErrNotEditable)
	}
	return nil
}
