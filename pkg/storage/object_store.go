package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FrameArchive stores full-resolution captured frames in object storage.
// The history record keeps the bytes it needs for rendering; the archive is
// an optional durable copy.
type FrameArchive interface {
	PutFrame(ctx context.Context, scanID string, jpegBytes []byte) error
	PresignFrame(ctx context.Context, scanID string, expiry time.Duration) (string, error)
}

// MinioArchive implements FrameArchive for MinIO/S3 compatible storage.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to MinIO and ensures the bucket exists.
func NewMinioArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

func frameKey(scanID string) string {
	return "scans/" + scanID + ".jpg"
}

// PutFrame uploads the frame under a key derived from the scan ID.
func (m *MinioArchive) PutFrame(ctx context.Context, scanID string, jpegBytes []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, frameKey(scanID),
		bytes.NewReader(jpegBytes), int64(len(jpegBytes)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return fmt.Errorf("put frame: %w", err)
	}
	return nil
}

// PresignFrame generates a pre-signed GET URL for the archived frame.
func (m *MinioArchive) PresignFrame(ctx context.Context, scanID string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, frameKey(scanID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign frame: %w", err)
	}
	return url.String(), nil
}
