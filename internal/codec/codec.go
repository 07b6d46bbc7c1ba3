// Package codec converts records to and from their canonical JSON form.
//
// The key set and order are an interchange contract: downstream cataloguing
// tools read this payload out of exported images.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/registrar/internal/record"
)

var (
	// ErrUnencodable is returned for records holding values JSON cannot carry.
	ErrUnencodable = errors.New("record is not encodable")
	// ErrMalformed is returned when a payload is not a valid record.
	ErrMalformed = errors.New("malformed record")
)

// wireRecord fixes the key order of the encoding.
type wireRecord struct {
	Title           string   `json:"title"`
	CreationYear    *int     `json:"creation_year"`
	Creator         string   `json:"creator"`
	Creditline      string   `json:"creditline"`
	Location        string   `json:"location"`
	Medium          string   `json:"medium"`
	AccessionNumber string   `json:"accession_number"`
	CapturedAt      int64    `json:"captured_at"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	SourceText      string   `json:"source_text"`
}

const recordSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["title", "creation_year", "creator", "creditline", "location", "medium",
               "accession_number", "captured_at", "latitude", "longitude", "source_text"],
  "properties": {
    "title":            {"type": "string", "minLength": 1},
    "creation_year":    {"type": ["integer", "null"]},
    "creator":          {"type": "string"},
    "creditline":       {"type": "string"},
    "location":         {"type": "string"},
    "medium":           {"type": "string"},
    "accession_number": {"type": "string"},
    "captured_at":      {"type": "integer", "minimum": 0},
    "latitude":         {"type": ["number", "null"], "minimum": -90, "maximum": 90},
    "longitude":        {"type": ["number", "null"], "minimum": -180, "maximum": 180},
    "source_text":      {"type": "string"}
  }
}`

var recordSchema = jsonschema.MustCompileString("record.schema.json", recordSchemaJSON)

// Encode returns the canonical JSON encoding of r.
func Encode(r *record.Record) ([]byte, error) {
	w := wireRecord{
		Title:           r.Title,
		Creator:         r.Creator,
		Creditline:      r.Creditline,
		Location:        r.Location,
		Medium:          r.Medium,
		AccessionNumber: r.AccessionNumber,
		CapturedAt:      r.CapturedAt().Unix(),
		SourceText:      r.SourceText(),
	}
	if r.CreationYear != nil {
		y := *r.CreationYear
		w.CreationYear = &y
	}
	if w.CapturedAt < 0 {
		return nil, fmt.Errorf("%w: capture time %s before 1970", ErrUnencodable, r.CapturedAt().Format(time.RFC3339))
	}
	if p, ok := r.Position(); ok {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: position %v,%v out of range", ErrUnencodable, p.Latitude, p.Longitude)
		}
		w.Latitude = &p.Latitude
		w.Longitude = &p.Longitude
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnencodable, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// EncodeCompactString returns the encoding of r as printable ASCII, safe to
// embed in metadata containers that cannot carry UTF-8 or raw control bytes.
// The result is still valid JSON and is accepted by Decode.
func EncodeCompactString(r *record.Record) (string, error) {
	b, err := Encode(r)
	if err != nil {
		return "", err
	}
	return asciiEscape(b), nil
}

// asciiEscape rewrites every non-ASCII rune as a \uXXXX escape. The input
// is JSON from encoding/json, so non-ASCII runes only occur inside strings
// and control characters are already escaped.
func asciiEscape(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r < 0x7f:
			sb.WriteRune(r)
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&sb, `\u%04x`, r)
		}
	}
	return sb.String()
}

// Decode parses a canonical (or compact) encoding back into a Record.
func Decode(b []byte) (*record.Record, error) {
	var doc any
	numbers := json.NewDecoder(bytes.NewReader(b))
	numbers.UseNumber()
	if err := numbers.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := recordSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var w wireRecord
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if strings.TrimSpace(w.Title) == "" {
		return nil, fmt.Errorf("%w: empty title", ErrMalformed)
	}
	if w.CreationYear != nil && !record.PlausibleYear(*w.CreationYear) {
		return nil, fmt.Errorf("%w: implausible creation year %d", ErrMalformed, *w.CreationYear)
	}

	var position *record.GeoPoint
	switch {
	case w.Latitude == nil && w.Longitude == nil:
	case w.Latitude != nil && w.Longitude != nil:
		position = &record.GeoPoint{Latitude: *w.Latitude, Longitude: *w.Longitude}
	default:
		return nil, fmt.Errorf("%w: latitude and longitude must both be set or both be null", ErrMalformed)
	}

	r := record.New(w.SourceText, time.Unix(w.CapturedAt, 0), position)
	r.Title = w.Title
	r.CreationYear = w.CreationYear
	r.Creator = w.Creator
	r.Creditline = w.Creditline
	r.Location = w.Location
	r.Medium = w.Medium
	r.AccessionNumber = w.AccessionNumber
	return r, nil
}
