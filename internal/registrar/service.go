// Package registrar owns the review session: the single active record, its
// display projection, and the export and archive of finished records.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/registrar/internal/catalog"
	"github.com/zombor/registrar/internal/export"
	"github.com/zombor/registrar/internal/record"
)

var (
	// ErrNoActiveRecord is returned by operations that need a record when
	// the session has none.
	ErrNoActiveRecord = errors.New("no active record")

	// ErrSuperseded is returned to an extraction whose result arrived after
	// a newer extraction or a reset replaced it.
	ErrSuperseded = errors.New("extraction superseded")
)

// Extractor turns raw label text into a Record
type Extractor interface {
	Extract(ctx context.Context, rawText string, capturedAt time.Time, position *record.GeoPoint) (*record.Record, error)
}

// Exporter writes a Record into a batch of images
type Exporter interface {
	Export(ctx context.Context, r *record.Record, images []export.ImageAsset) []export.Result
}

// IDGenerator generates unique IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.New().String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// State is the extraction state of the session
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ExportReport is the outcome of exporting the active record
type ExportReport struct {
	RecordID string
	Results  []export.Result
}

// Service handles the review session and the record archive
type Service struct {
	extractor   Extractor
	exporter    Exporter
	db          catalog.DB
	store       export.Store
	idGenerator IDGenerator
	timeSource  TimeSource

	mu         sync.Mutex
	state      State
	active     *record.Record
	entries    []record.DisplayEntry
	generation uint64
	cancel     context.CancelFunc
}

// NewService creates a new Service with default dependencies
func NewService(extractor Extractor, exporter Exporter, db catalog.DB, store export.Store) *Service {
	return NewServiceWithDeps(extractor, exporter, db, store, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor Extractor, exporter Exporter, db catalog.DB, store export.Store, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		extractor:   extractor,
		exporter:    exporter,
		db:          db,
		store:       store,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Extract replaces the active record with one extracted from rawText. An
// extraction already in flight is cancelled and its result discarded.
func (s *Service) Extract(ctx context.Context, rawText string, position *record.GeoPoint) (*record.Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.state = StateExtracting
	s.setActive(nil)
	capturedAt := s.timeSource.Now()
	s.mu.Unlock()

	rec, err := s.extractor.Extract(ctx, rawText, capturedAt, position)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		slog.Debug("Discarding superseded extraction", "generation", gen)
		return nil, ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.state = StateSucceeded
	s.setActive(rec)
	return rec.Clone(), nil
}

// setActive swaps the active record and regenerates the projection.
// Callers hold s.mu.
func (s *Service) setActive(r *record.Record) {
	s.active = r
	if r == nil {
		s.entries = nil
		return
	}
	s.entries = r.Entries()
}

// State returns the extraction state of the session
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns a copy of the active record
func (s *Service) Active() (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNoActiveRecord
	}
	return s.active.Clone(), nil
}

// Entries returns the display projection of the active record
func (s *Service) Entries() ([]record.DisplayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNoActiveRecord
	}
	return append([]record.DisplayEntry(nil), s.entries...), nil
}

// Edit applies one user correction to the active record and returns the
// regenerated projection. A rejected edit leaves record and projection as
// they were.
func (s *Service) Edit(field, value string) ([]record.DisplayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNoActiveRecord
	}

	regenerate, err := record.ApplyEdit(s.active, field, value)
	if err != nil {
		return nil, err
	}
	if regenerate {
		s.entries = s.active.Entries()
	}
	return append([]record.DisplayEntry(nil), s.entries...), nil
}

// Reset discards the active record and cancels any extraction in flight
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = StateIdle
	s.setActive(nil)
}

// Export embeds the active record into images and archives it when at least
// one image was stored, or when there were no images to store.
func (s *Service) Export(ctx context.Context, images []export.ImageAsset) (*ExportReport, error) {
	snapshot, err := s.Active()
	if err != nil {
		return nil, err
	}

	results := s.exporter.Export(ctx, snapshot, images)

	stored := make([]string, 0, len(results))
	for _, res := range results {
		if res.OK() {
			stored = append(stored, res.Key)
		}
	}

	report := &ExportReport{Results: results}
	if len(images) > 0 && len(stored) == 0 {
		slog.Warn("No images exported, record not archived", "images", len(images))
		return report, nil
	}

	entry, err := catalog.NewEntry(s.idGenerator.Generate(), s.timeSource.Now(), stored, snapshot)
	if err != nil {
		return report, fmt.Errorf("archiving record: %w", err)
	}
	if err := s.db.SaveEntry(entry); err != nil {
		return report, fmt.Errorf("archiving record: %w", err)
	}
	report.RecordID = entry.ID

	slog.Info("Exported record",
		"id", entry.ID,
		"images", len(images),
		"stored", len(stored),
	)
	return report, nil
}

// ListRecords returns all archived records
func (s *Service) ListRecords() ([]*catalog.Entry, error) {
	return s.db.ListEntries()
}

// GetRecord retrieves an archived record by ID
func (s *Service) GetRecord(id string) (*catalog.Entry, error) {
	return s.db.GetEntry(id)
}

// DeleteRecord removes an archived record and its stored images
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	entry, err := s.db.GetEntry(id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteEntry(id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	for _, key := range entry.Images {
		if err := s.store.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete image", "id", id, "key", key, "error", err)
		}
	}
	return nil
}

// ExportSpreadsheet writes every archived record to w as XLSX
func (s *Service) ExportSpreadsheet(w io.Writer) error {
	entries, err := s.db.ListEntries()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	return catalog.WriteXLSX(entries, w)
}

// GetImage returns a stored image by key
func (s *Service) GetImage(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, key)
}
