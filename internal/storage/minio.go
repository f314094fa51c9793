package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const textContentType = "text/plain; charset=utf-8"

// MinioConfig describes the bucket a MinioStore writes to.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Folder    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// MinioStore keeps content as objects under Folder in a MinIO (or any S3) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	folder string
}

// NewMinioStore creates a MinIO client with a tuned transport.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Transport:    tr,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return NewMinioStoreWithClient(client, cfg.Bucket, cfg.Folder), nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, folder string) *MinioStore {
	folder = strings.Trim(folder, "/")
	if folder != "" {
		folder += "/"
	}
	return &MinioStore{client: client, bucket: bucket, folder: folder}
}

func (s *MinioStore) objectName(name string) string {
	return s.folder + flatten(name)
}

// Put buffers the content so the object is uploaded with a known size;
// notes are small and an unknown size makes the client reserve a full part.
func (s *MinioStore) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	content, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", name, err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.objectName(name),
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: textContentType})
	if err != nil {
		if minioErr, ok := err.(minio.ErrorResponse); ok {
			return 0, fmt.Errorf("failed to upload %s: %s (%s)", name, minioErr.Message, minioErr.Code)
		}
		return 0, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if info.Size != int64(len(content)) {
		return 0, fmt.Errorf("uploaded size mismatch for %s: expected %d, got %d", name, len(content), info.Size)
	}
	return info.Size, nil
}

func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", name, err)
	}
	return obj, nil
}

func (s *MinioStore) Remove(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(name), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
