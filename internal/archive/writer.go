// Package archive writes the summary of each crawl invocation to a blob store
// as JSON, alongside a SHA-256 digest of the document.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrNoBlobStore is returned by New when no blob store is supplied.
var ErrNoBlobStore = errors.New("archive: blob store is required")

// Hasher digests archive documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Path returns the object path for a run: <prefix>/<yyyy-mm-dd>/<run_id>.json,
// dated by the run's UTC start.
func Path(prefix string, startedAt time.Time, runID string) string {
	prefix = strings.Trim(prefix, "/")
	return path.Join(prefix, startedAt.UTC().Format("2006-01-02"), runID+".json")
}

// Writer implements crawler.RunArchiver.
type Writer struct {
	blobs  crawler.BlobStore
	hasher Hasher
	prefix string
	logger *zap.Logger
}

// New builds a Writer. hasher may be nil to skip digests.
func New(blobs crawler.BlobStore, hasher Hasher, prefix string, logger *zap.Logger) (*Writer, error) {
	if blobs == nil {
		return nil, ErrNoBlobStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{blobs: blobs, hasher: hasher, prefix: prefix, logger: logger}, nil
}

// Archive marshals doc, stores it and returns the blob URI.
func (w *Writer) Archive(ctx context.Context, doc crawler.RunArchive) (string, error) {
	if strings.TrimSpace(doc.RunID) == "" {
		return "", fmt.Errorf("archive: run id is required")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run archive: %w", err)
	}

	objectPath := Path(w.prefix, doc.StartedAt, doc.RunID)
	uri, err := w.blobs.PutObject(ctx, objectPath, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("put run archive: %w", err)
	}

	if w.hasher != nil {
		digest, herr := w.hasher.Hash(data)
		if herr != nil {
			return "", fmt.Errorf("digest run archive: %w", herr)
		}
		if _, err := w.blobs.PutObject(ctx, objectPath+".sha256", "text/plain", []byte(digest+"\n")); err != nil {
			w.logger.Warn("write archive digest failed", zap.String("path", objectPath), zap.Error(err))
		}
		w.logger.Debug("run archive written", zap.String("uri", uri), zap.String("sha256", digest))
	}
	return uri, nil
}
