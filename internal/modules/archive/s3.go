package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/appsight/core/internal/config"
	"github.com/appsight/core/internal/pkg/reportkey"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror write-through-mirrors blobs to an S3-compatible bucket.
// The read path never touches the mirror; it exists for durability and
// for serving the archive from a CDN.
type S3Mirror struct {
	client *s3.Client
	bucket string
}

// NewS3Mirror builds the mirror from config. Returns an error on
// incomplete credentials so a misconfigured mirror fails at startup, not
// on the first upload.
func NewS3Mirror(opts config.S3MirrorOptions) (*S3Mirror, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	region := strings.TrimSpace(opts.Region)
	accessKey := strings.TrimSpace(opts.AccessKeyID)
	secretKey := strings.TrimSpace(opts.SecretAccessKey)
	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("incomplete s3 config: bucket/region/access_key_id/secret_access_key are required")
	}

	s3opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		s3opts.BaseEndpoint = aws.String(strings.TrimSuffix(endpoint, "/"))
		s3opts.UsePathStyle = true
	}
	if opts.PathStyleAccess {
		s3opts.UsePathStyle = true
	}

	return &S3Mirror{client: s3.New(s3opts), bucket: bucket}, nil
}

// Put uploads the already-zipped payload under the sharded object key.
func (m *S3Mirror) Put(ctx context.Context, key reportkey.Key, payload []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key.ShardPath()),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/zip"),
	})
	return err
}

// Get is unused on the mirror; reads are always served locally.
func (m *S3Mirror) Get(ctx context.Context, key reportkey.Key) ([]byte, error) {
	return nil, fmt.Errorf("s3 mirror is write-only")
}

// Delete removes the mirrored object.
func (m *S3Mirror) Delete(ctx context.Context, key reportkey.Key) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key.ShardPath()),
	})
	return err
}
