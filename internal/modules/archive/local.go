package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/reportkey"
	"go.uber.org/zap"
)

const (
	getMaxAttempts = 3
	getBackoffBase = 100 * time.Millisecond
	getBackoffCap  = time.Second
)

// Local is the filesystem blob archive. Blobs live at
// {dir}/{key[0:2]}/{key[2:4]}/{key}.zip, each holding one report.json.
type Local struct {
	dir    string
	mirror Blob // optional write-through mirror, nil when disabled
	logger *zap.Logger
}

// NewLocal creates the archive rooted at dir. mirror may be nil.
func NewLocal(dir string, mirror Blob, logger *zap.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Local{dir: dir, mirror: mirror, logger: logger}, nil
}

func (l *Local) blobPath(key reportkey.Key) string {
	return filepath.Join(l.dir, filepath.FromSlash(key.ShardPath()))
}

// Put writes the zipped payload atomically (temp file + rename) and
// mirrors it best-effort.
func (l *Local) Put(ctx context.Context, key reportkey.Key, payload []byte) error {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	f, err := w.Create(entryName)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("write zip entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}

	path := l.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}

	if l.mirror != nil {
		if err := l.mirror.Put(ctx, key, buf.Bytes()); err != nil {
			l.logger.Warn("blob mirror upload failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return nil
}

// Get reads and unwraps the blob. Transient read faults are retried with
// capped exponential backoff; NotFound and corrupt archives are terminal.
func (l *Local) Get(ctx context.Context, key reportkey.Key) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < getMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := getBackoffBase << (attempt - 1)
			if backoff > getBackoffCap {
				backoff = getBackoffCap
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		payload, err := l.readBlob(key)
		if err == nil {
			return payload, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (l *Local) readBlob(key reportkey.Key) ([]byte, error) {
	data, err := os.ReadFile(l.blobPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrCorruptArchive, err)
	}
	for _, f := range r.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrCorruptArchive, err)
		}
		defer rc.Close()
		payload, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrCorruptArchive, err)
		}
		return payload, nil
	}
	return nil, fmt.Errorf("%w: missing %s entry", fault.ErrCorruptArchive, entryName)
}

// Delete removes the blob locally and from the mirror. A missing blob is
// not an error.
func (l *Local) Delete(ctx context.Context, key reportkey.Key) error {
	if err := os.Remove(l.blobPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}
	if l.mirror != nil {
		if err := l.mirror.Delete(ctx, key); err != nil {
			l.logger.Warn("blob mirror delete failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, fault.ErrTransientStorage)
}
