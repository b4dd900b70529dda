package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore using a MinIO (or any S3-compatible)
// backend. Swapping providers is a matter of changing STORAGE_ENDPOINT and
// credentials — no code changes are needed.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a MinIO client, ensures the bucket exists with a
// public-read policy, and returns a ready-to-use MinioStore.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Printf("storage: created bucket %q", bucket)
	}

	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put streams reader to the store under key. size must be the exact byte
// count (pass -1 only if the size is genuinely unknown — MinIO will buffer it).
func (s *MinioStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType, cacheControl string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Get opens the object at key. The Stat round trip surfaces a missing key
// eagerly instead of on first read.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("get object %q: %w", key, mapMinioErr(err))
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, mapMinioErr(err))
	}
	return obj, ObjectInfo{ContentType: stat.ContentType, Size: stat.Size}, nil
}

// Stat returns object metadata without reading the body.
func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, mapMinioErr(err))
	}
	return ObjectInfo{ContentType: stat.ContentType, Size: stat.Size}, nil
}

// Remove deletes the object at key. S3 returns success for absent keys, so
// a missing key is checked explicitly to report ErrNotFound.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("stat before remove %q: %w", key, mapMinioErr(err))
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// PresignPut returns a presigned URL scoped to a single PUT of the given
// content type at key.
func (s *MinioStore) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	headers := http.Header{"Content-Type": []string{contentType}}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, expiry, nil, headers)
	if err != nil {
		return "", fmt.Errorf("presign put %q: %w", key, err)
	}
	return u.String(), nil
}

// mapMinioErr converts a MinIO "NoSuchKey" response into ErrNotFound.
func mapMinioErr(err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
