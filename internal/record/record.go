// Package record holds the metadata model for a single museum object as
// read from its wall label.
package record

import (
	"iter"
	"strconv"
	"time"
)

// Field names, as used in display entries, edits and the serialized form.
const (
	FieldTitle           = "title"
	FieldCreationYear    = "creation_year"
	FieldCreator         = "creator"
	FieldCreditline      = "creditline"
	FieldLocation        = "location"
	FieldMedium          = "medium"
	FieldAccessionNumber = "accession_number"

	// System-managed. Never displayed, never editable.
	FieldCapturedAt = "captured_at"
	FieldLatitude   = "latitude"
	FieldLongitude  = "longitude"
	FieldSourceText = "source_text"
)

// MinYear is the earliest creation year accepted.
const MinYear = -3000

// now is swapped out in tests that need a fixed "current year".
var now = time.Now

// GeoPoint is the position of the device when the label was scanned.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether p is a position on the globe. NaN and infinite
// coordinates are never valid.
func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Record represents the metadata for one physical object observed at one
// point in time. The exported fields are the user-facing ones; provenance is
// fixed by New and only readable through accessors.
type Record struct {
	Title           string
	CreationYear    *int
	Creator         string
	Creditline      string
	Location        string
	Medium          string
	AccessionNumber string

	capturedAt time.Time
	position   *GeoPoint
	sourceText string
}

// DisplayEntry is one (field, rendered value) row of a review surface.
type DisplayEntry struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// New creates an empty Record stamped with its provenance. capturedAt is
// kept at whole-second precision in UTC.
func New(sourceText string, capturedAt time.Time, position *GeoPoint) *Record {
	r := &Record{
		capturedAt: time.Unix(capturedAt.Unix(), 0).UTC(),
		sourceText: sourceText,
	}
	if position != nil {
		p := *position
		r.position = &p
	}
	return r
}

// SourceText returns the raw text the record was extracted from.
func (r *Record) SourceText() string {
	return r.sourceText
}

// CapturedAt returns the extraction time.
func (r *Record) CapturedAt() time.Time {
	return r.capturedAt
}

// Position returns the capture position, if one was known.
func (r *Record) Position() (GeoPoint, bool) {
	if r.position == nil {
		return GeoPoint{}, false
	}
	return *r.position, true
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	if r.CreationYear != nil {
		y := *r.CreationYear
		c.CreationYear = &y
	}
	if r.position != nil {
		p := *r.position
		c.position = &p
	}
	return &c
}

// displayOrder is the fixed order fields are shown to a reviewer in.
var displayOrder = []string{
	FieldTitle,
	FieldCreationYear,
	FieldCreator,
	FieldLocation,
	FieldMedium,
	FieldCreditline,
	FieldAccessionNumber,
}

// DisplayFields returns the field names in display order.
func DisplayFields() []string {
	return append([]string(nil), displayOrder...)
}

// DisplayEntries yields the user-facing fields in display order. The
// sequence reads the record at iteration time, so it can be ranged over
// again after an edit.
func (r *Record) DisplayEntries() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, field := range displayOrder {
			if !yield(field, r.render(field)) {
				return
			}
		}
	}
}

// Entries collects DisplayEntries into a slice.
func (r *Record) Entries() []DisplayEntry {
	entries := make([]DisplayEntry, 0, len(displayOrder))
	for field, value := range r.DisplayEntries() {
		entries = append(entries, DisplayEntry{Field: field, Value: value})
	}
	return entries
}

func (r *Record) render(field string) string {
	switch field {
	case FieldTitle:
		return r.Title
	case FieldCreationYear:
		if r.CreationYear == nil {
			return ""
		}
		return strconv.Itoa(*r.CreationYear)
	case FieldCreator:
		return r.Creator
	case FieldLocation:
		return r.Location
	case FieldMedium:
		return r.Medium
	case FieldCreditline:
		return r.Creditline
	case FieldAccessionNumber:
		return r.AccessionNumber
	}
	return ""
}

// PlausibleYear reports whether year is an acceptable creation year.
func PlausibleYear(year int) bool {
	return year >= MinYear && year <= now().Year()+1
}
