package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore provides access to container-scoped object storage.
// A container maps to one bucket; object names are the logical file names.
type ObjectStore interface {
	EnsureContainer(ctx context.Context, container string) error
	ListContainers(ctx context.Context) ([]string, error)
	ListObjects(ctx context.Context, container string) ([]string, error)
	Put(ctx context.Context, container, name string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, container, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, container, name string) error
	PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error)
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to MinIO.
func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// EnsureContainer creates the container bucket when it does not exist.
func (m *MinioStore) EnsureContainer(ctx context.Context, container string) error {
	exists, err := m.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("check container: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create container: %w", err)
		}
	}
	return nil
}

// ListContainers returns all container names.
func (m *MinioStore) ListContainers(ctx context.Context) ([]string, error) {
	buckets, err := m.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

// ListObjects returns the object names present in a container.
func (m *MinioStore) ListObjects(ctx context.Context, container string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, container, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// Put uploads an object into a container.
func (m *MinioStore) Put(ctx context.Context, container, name string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, container, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get opens an object for reading. The caller must close the reader.
func (m *MinioStore) Get(ctx context.Context, container, name string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, container, name string) error {
	if err := m.client.RemoveObject(ctx, container, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, container, name, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}
