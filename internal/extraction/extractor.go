package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/registrar/internal/record"
)

var (
	// ErrBackendFailed is returned when the backend is unavailable or its
	// output is unusable. Retrying may succeed.
	ErrBackendFailed = errors.New("extraction backend failed")
	// ErrEmptyInput is returned when there is no text to extract from.
	ErrEmptyInput = errors.New("no text to extract from")
	// ErrInvalidProvenance is returned when the capture time or position
	// could not be carried by the serialized record.
	ErrInvalidProvenance = errors.New("invalid provenance")
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 60 * time.Second

// untitled replaces a title the backend could not find.
const untitled = "Untitled"

var leadingNumber = regexp.MustCompile(`^\d+\s+`)

// Extractor turns raw wall label text into records.
type Extractor struct {
	backend Backend
	schema  Schema

	// Timeout bounds each backend call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewExtractor creates an Extractor on top of backend.
func NewExtractor(backend Backend) *Extractor {
	return &Extractor{
		backend: backend,
		schema:  LabelSchema,
		Timeout: DefaultTimeout,
	}
}

// Extract asks the backend to structure rawText and returns a record stamped
// with the given provenance. Either a complete record or an error is
// returned, never both.
func (e *Extractor) Extract(ctx context.Context, rawText string, capturedAt time.Time, position *record.GeoPoint) (*record.Record, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyInput
	}
	if capturedAt.Unix() < 0 {
		return nil, fmt.Errorf("%w: capture time %s before 1970", ErrInvalidProvenance, capturedAt.Format(time.RFC3339))
	}
	if position != nil && !position.Valid() {
		return nil, fmt.Errorf("%w: position %v,%v out of range", ErrInvalidProvenance, position.Latitude, position.Longitude)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.backend.Generate(ctx, labelInstructions, rawText, e.schema)
	if err != nil {
		slog.Error("Failed to extract record",
			"text_len", len(rawText),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrBackendFailed, err)
	}

	fields, dropped, err := parseFields(raw, e.schema)
	if err != nil {
		slog.Error("Failed to parse extraction response",
			"response", string(raw),
			"error", err,
		)
		return nil, fmt.Errorf("%w: parsing response: %w", ErrBackendFailed, err)
	}
	if len(dropped) > 0 {
		slog.Warn("Dropped unexpected response fields", "dropped", dropped)
	}

	rec := record.New(rawText, capturedAt, position)
	populate(rec, fields)

	slog.Info("Extracted record",
		"title", rec.Title,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// populate maps backend fields onto rec, normalising as it goes.
func populate(rec *record.Record, f *Fields) {
	rec.Title = normalizeTitle(f.Title)
	if f.CreationYear != nil && *f.CreationYear != 0 {
		if record.PlausibleYear(*f.CreationYear) {
			y := *f.CreationYear
			rec.CreationYear = &y
		} else {
			slog.Warn("Discarding implausible creation year", "year", *f.CreationYear)
		}
	}
	rec.Creator = strings.TrimSpace(f.Creator)
	rec.Creditline = strings.TrimSpace(f.Creditline)
	rec.Location = strings.TrimSpace(f.Location)
	rec.Medium = strings.TrimSpace(f.Medium)
	rec.AccessionNumber = f.AccessionNumber
}

// normalizeTitle strips the "<digits><space>" hanging key some labels put in
// front of the title.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.TrimSpace(leadingNumber.ReplaceAllString(title, ""))
	if title == "" {
		return untitled
	}
	return title
}
