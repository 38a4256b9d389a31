package storage

import (
	"context"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"google.golang.org/api/option"
)

// transcripts are small JSON documents; one request per object is enough
const uploadChunkSize = 256 << 10

// GCSUploader stores call archives in a private bucket.
type GCSUploader struct {
	client *gcs.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSUploader, error) {
	const op = "storage.NewGCSUploader"

	bucket = strings.TrimPrefix(strings.TrimSpace(bucket), "gs://")
	if bucket == "" {
		return nil, utils.E(utils.CodeMisconfigured, op, "TRANSCRIPT_BUCKET is not set", nil)
	}
	c, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, utils.E(utils.CodeMisconfigured, op, "failed to create storage client", err)
	}
	return &GCSUploader{client: c, bucket: bucket}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

// Upload writes r to gs://bucket/objectName and returns that path. Re-uploading a call
// replaces its archive.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	const op = "GCSUploader.Upload"

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, no-store"
	w.ChunkSize = uploadChunkSize

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", utils.E(utils.CodeUpstream, op, "failed to write archive", err)
	}
	if err := w.Close(); err != nil {
		return "", utils.E(utils.CodeUpstream, op, "failed to finish archive", err)
	}
	return "gs://" + u.bucket + "/" + objectName, nil
}
