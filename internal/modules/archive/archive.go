// Package archive is the blob tier of the durable store: one compressed
// zip per report, sharded by key prefix, with an optional S3 mirror.
package archive

import (
	"context"

	"github.com/appsight/core/internal/pkg/reportkey"
)

// Blob stores and retrieves serialized report payloads by key.
type Blob interface {
	Put(ctx context.Context, key reportkey.Key, payload []byte) error
	Get(ctx context.Context, key reportkey.Key) ([]byte, error)
	Delete(ctx context.Context, key reportkey.Key) error
}

// entryName is the single file inside each report zip.
const entryName = "report.json"
