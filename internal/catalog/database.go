package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/registrar/internal/codec"
	"github.com/zombor/registrar/internal/record"
)

const bucketName = "records"

// ErrNotFound is returned when no entry has the requested ID
var ErrNotFound = errors.New("record not found")

// Entry is one exported record together with the images it was written to
type Entry struct {
	ID         string          `json:"id"`
	ExportedAt time.Time       `json:"exported_at"`
	Images     []string        `json:"images"`
	Record     json.RawMessage `json:"record"`
}

// NewEntry encodes r into a new Entry
func NewEntry(id string, exportedAt time.Time, images []string, r *record.Record) (*Entry, error) {
	data, err := codec.Encode(r)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	if images == nil {
		images = []string{}
	}
	return &Entry{
		ID:         id,
		ExportedAt: exportedAt.UTC(),
		Images:     images,
		Record:     data,
	}, nil
}

// Decode returns the archived record
func (e *Entry) Decode() (*record.Record, error) {
	return codec.Decode(e.Record)
}

// DB defines the interface for catalog operations
type DB interface {
	// SaveEntry saves an entry to the database
	SaveEntry(entry *Entry) error

	// GetEntry retrieves an entry by ID
	GetEntry(id string) (*Entry, error)

	// ListEntries returns all entries, oldest export first
	ListEntries() ([]*Entry, error)

	// DeleteEntry removes an entry from the database
	DeleteEntry(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveEntry saves an entry to the database
func (b *BoltDB) SaveEntry(entry *Entry) error {
	if entry.ID == "" {
		return errors.New("entry id is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return bucket.Put([]byte(entry.ID), data)
	})
}

// GetEntry retrieves an entry by ID
func (b *BoltDB) GetEntry(id string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns all entries ordered by export time
func (b *BoltDB) ListEntries() ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return a.ExportedAt.Compare(b.ExportedAt)
	})
	return entries, nil
}

// DeleteEntry removes an entry from the database
func (b *BoltDB) DeleteEntry(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
