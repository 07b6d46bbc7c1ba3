package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/registrar/internal/codec"
	"github.com/zombor/registrar/internal/record"
)

// DefaultConcurrency is the number of images processed at once when
// Coordinator.Concurrency is not set.
const DefaultConcurrency = 4

// ImageAsset is one image to receive the record
type ImageAsset struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the outcome for one ImageAsset
type Result struct {
	Image string
	Key   string
	Err   error
}

// OK reports whether the image was stored.
func (r Result) OK() bool {
	return r.Err == nil
}

// Coordinator embeds a record into images and persists them
type Coordinator struct {
	store       Store
	Concurrency int
}

// NewCoordinator creates a Coordinator writing to store
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{
		store:       store,
		Concurrency: DefaultConcurrency,
	}
}

// Export writes r into the UserComment of every image and saves each one.
// Results are returned in the order of images; one failure does not stop the
// others. If r cannot be encoded every result carries that error.
func (c *Coordinator) Export(ctx context.Context, r *record.Record, images []ImageAsset) []Result {
	results := make([]Result, len(images))
	for i, img := range images {
		results[i].Image = img.Name
	}
	if len(images) == 0 {
		return results
	}

	snapshot := r.Clone()
	comment, err := codec.EncodeCompactString(snapshot)
	if err != nil {
		for i := range results {
			results[i].Err = fmt.Errorf("encoding record: %w", err)
		}
		return results
	}

	limit := c.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, img := range images {
		key := exportKey(snapshot.CapturedAt(), snapshot.Title, i, img.Name)
		g.Go(func() error {
			results[i].Key = key
			stored, err := c.exportOne(ctx, comment, key, img)
			if err != nil {
				slog.Warn("Failed to export image", "image", img.Name, "key", key, "error", err)
				results[i].Err = err
				return nil
			}
			results[i].Key = stored
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// exportOne stores one image and returns the key the store assigned.
func (c *Coordinator) exportOne(ctx context.Context, comment, key string, img ImageAsset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	jpegData, converted, err := toJPEG(bytes.Clone(img.Data), img.ContentType)
	if err != nil {
		return "", fmt.Errorf("normalising image: %w", err)
	}
	if converted {
		slog.Debug("Converted image to JPEG", "image", img.Name, "content_type", img.ContentType)
	}

	tagged, err := embedUserComment(jpegData, comment)
	if err != nil {
		return "", fmt.Errorf("embedding record: %w", err)
	}

	// A write that has started runs to completion.
	stored, err := c.store.Save(context.WithoutCancel(ctx), key, tagged)
	if err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	return stored, nil
}
