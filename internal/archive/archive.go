package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/flowrun/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobArchive stores terminal flow runs, together with their task runs, as
// JSON objects in a gocloud.dev bucket. S3, GCS, Azure Blob Storage and local
// file buckets are supported through their URL schemes
type BlobArchive struct {
	bucket *blob.Bucket
	prefix string
}

const (
	flowRunFolder = "flowrun"
	objectSuffix  = ".json"
	contentType   = "application/json"
)

var (
	ErrNotArchived     = errors.New("flow run not archived")
	ErrBucketRequired  = errors.New("bucket is required")
	ErrDetailRequired  = errors.New("flow run detail is required")
	ErrRunNotTerminal  = errors.New("flow run is not terminal")
	ErrInvalidArchived = errors.New("invalid archived flow run")
)

// Open opens the bucket at bucketURL and returns an archive writing under
// prefix
func Open(ctx context.Context, bucketURL, prefix string) (*BlobArchive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return New(bucket, prefix)
}

// New wraps an already opened bucket
func New(bucket *blob.Bucket, prefix string) (*BlobArchive, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	return &BlobArchive{
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Put writes a terminal flow run detail, replacing any previous copy
func (a *BlobArchive) Put(
	ctx context.Context, detail *api.FlowRunDetail,
) error {
	if detail == nil || detail.FlowRun == nil {
		return ErrDetailRequired
	}
	if !detail.FlowRun.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunNotTerminal, detail.FlowRun.ID)
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	opts := &blob.WriterOptions{ContentType: contentType}
	return a.bucket.WriteAll(ctx, a.keyFor(detail.FlowRun.ID), data, opts)
}

// Get reads an archived flow run detail
func (a *BlobArchive) Get(
	ctx context.Context, id api.FlowRunID,
) (*api.FlowRunDetail, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotArchived, id)
		}
		return nil, err
	}

	var res api.FlowRunDetail
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchived, err)
	}
	if res.FlowRun == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArchived, id)
	}
	return &res, nil
}

// Delete removes an archived flow run. Deleting a missing run is not an error
func (a *BlobArchive) Delete(ctx context.Context, id api.FlowRunID) error {
	err := a.bucket.Delete(ctx, a.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Close releases the underlying bucket
func (a *BlobArchive) Close() error {
	return a.bucket.Close()
}

func (a *BlobArchive) keyFor(id api.FlowRunID) string {
	return buildKey(a.prefix, id)
}

func buildKey(prefix string, id api.FlowRunID) string {
	key := flowRunFolder + "/" + string(id) + objectSuffix
	if prefix == "" {
		return key
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + key
}
