// Package minio provides the MinIO-backed asset store.
package minio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StoreConfig controls the MinIO client and the buckets ensured at startup.
type StoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Buckets   []string
}

// Store uploads binary assets to MinIO and returns direct object URLs.
type Store struct {
	client   *minio.Client
	endpoint string
	useSSL   bool
}

// NewStore connects to MinIO and creates any missing buckets.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio.endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	s := &Store{client: client, endpoint: cfg.Endpoint, useSSL: cfg.UseSSL}
	for _, bucket := range cfg.Buckets {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return s, nil
}

// Put uploads data under bucket/objectName and returns the object URL.
func (s *Store) Put(ctx context.Context, bucket, objectName, contentType string, data []byte) (string, error) {
	if bucket == "" || objectName == "" {
		return "", fmt.Errorf("bucket and object name are required")
	}
	_, err := s.client.PutObject(ctx, bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, objectName, err)
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, bucket, objectName), nil
}
