// Package upload drives UploadRecord rows to completion: it groups
// Queued/InProgress rows by import_id, streams each file's chunks to
// object storage through a resumable multipart upload, reports
// progress to the store and StatusHub, and closes out the group with
// the platform's complete-upload call.
//
// Grounded on the teacher's pkg/payload/offloader (bounded-semaphore
// parallel block upload, per-group error accumulation) and
// pkg/store/content/s3's multipart trio, generalized from fixed-size
// content blocks to a resumable per-record chunk stream.
package upload

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pennsieve/agent/internal/agenterrors"
)

// ObjectStore is the multipart-upload surface UploadEngine needs from
// object storage. Modeled directly on the teacher's
// BeginMultipartUpload/UploadPart/CompleteMultipartUpload trio so a
// real aws-sdk-go-v2 client and a test double share one shape.
type ObjectStore interface {
	CreateMultipartUpload(ctx context.Context, bucket, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (etag string, err error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []types.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}

// S3ObjectStore is the real ObjectStore, backed by aws-sdk-go-v2.
type S3ObjectStore struct {
	client *s3.Client
}

// NewS3ObjectStore wraps an aws-sdk-go-v2 S3 client.
func NewS3ObjectStore(client *s3.Client) *S3ObjectStore {
	return &S3ObjectStore{client: client}
}

func (o *S3ObjectStore) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	out, err := o.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", agenterrors.Wrap(agenterrors.CodeUnavailable, "creating multipart upload", err)
	}
	return aws.ToString(out.UploadId), nil
}

func (o *S3ObjectStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (string, error) {
	out, err := o.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", translateS3Error(err)
	}
	return aws.ToString(out.ETag), nil
}

func (o *S3ObjectStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []types.CompletedPart) error {
	_, err := o.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeUnavailable, "completing multipart upload", err)
	}
	return nil
}

func (o *S3ObjectStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := o.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeUnavailable, "aborting multipart upload", err)
	}
	return nil
}

// translateS3Error maps an S3 401/403 into CodeAuthRequired so the
// engine's retry-with-session-refresh path can recognize it; every
// other failure becomes CodeUnavailable.
func translateS3Error(err error) error {
	if isUnauthorized(err) {
		return agenterrors.Wrap(agenterrors.CodeAuthRequired, "object storage rejected credentials", err)
	}
	return agenterrors.Wrap(agenterrors.CodeUnavailable, "uploading part", err)
}

// isUnauthorized reports whether err carries an S3 AccessDenied/
// 401-style response code. AWS SDK errors don't expose a plain HTTP
// status without an extra import, so this checks the well-known S3
// error codes instead.
func isUnauthorized(err error) bool {
	msg := err.Error()
	return contains(msg, "AccessDenied") || contains(msg, "InvalidAccessKeyId") || contains(msg, "ExpiredToken")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

