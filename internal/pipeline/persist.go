package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/csvout"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/hash/sha256"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// persistTimeout bounds one persistence attempt.
const persistTimeout = 60 * time.Second

// Gateway hands finished records to object storage, the CSV side output and
// the upload topic. Every collaborator is optional.
type Gateway struct {
	Blobs     extract.BlobStore
	CSV       *csvout.Writer
	Publisher extract.Publisher
	Topic     string
	Clock     extract.Clock
	Logger    *zap.Logger
}

// Persisted records where a result ended up.
type Persisted struct {
	ObjectURI string `json:"object_uri,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	CSVPath   string `json:"csv_path,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// UploadNotice is published after a successful upload.
type UploadNotice struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Department string    `json:"department,omitempty"`
	Object     string    `json:"object"`
	URI        string    `json:"uri"`
	Checksum   string    `json:"checksum"`
	Count      int       `json:"count"`
	Timestamp  time.Time `json:"timestamp"`
}

func persist[T any](
	ctx context.Context,
	g *Gateway,
	r *run,
	schema structured.Schema[T],
	object string,
	records []T,
) (*Persisted, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	out := &Persisted{}
	var errs []error

	if g.CSV != nil {
		path, err := csvout.Write(g.CSV, csvout.FileName(r.job.Mode, r.job.Department), schema, records)
		if err != nil {
			errs = append(errs, fmt.Errorf("csv side output: %w", err))
		} else {
			out.CSVPath = path
		}
	}

	if g.Blobs != nil {
		uri, checksum, err := upload(ctx, g.Blobs, object, records)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.ObjectURI, out.Checksum = uri, checksum
			if id, err := g.notify(ctx, r, object, uri, checksum, len(records)); err != nil {
				errs = append(errs, err)
			} else {
				out.MessageID = id
			}
		}
	}

	r.logger.Info("records persisted",
		zap.String("object_uri", out.ObjectURI),
		zap.String("csv_path", out.CSVPath),
		zap.Int("records", len(records)),
	)
	return out, errors.Join(errs...)
}

// upload writes records as one JSON array and returns its URI and checksum.
func upload[T any](ctx context.Context, blobs extract.BlobStore, object string, records []T) (string, string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", "", fmt.Errorf("marshal %s: %w", object, err)
	}
	uri, err := blobs.PutObject(ctx, object, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("upload %s: %w", object, err)
	}
	return uri, sha256.Sum(data), nil
}

func (g *Gateway) notify(ctx context.Context, r *run, object, uri, checksum string, count int) (string, error) {
	if g.Publisher == nil || g.Topic == "" {
		return "", nil
	}
	now := time.Now().UTC()
	if g.Clock != nil {
		now = g.Clock.Now()
	}
	id, err := g.Publisher.Publish(ctx, g.Topic, UploadNotice{
		RunID:      r.id,
		Mode:       string(r.job.Mode),
		Department: r.job.Department,
		Object:     object,
		URI:        uri,
		Checksum:   checksum,
		Count:      count,
		Timestamp:  now,
	})
	if err != nil {
		return "", fmt.Errorf("publish upload notice: %w", err)
	}
	return id, nil
}
