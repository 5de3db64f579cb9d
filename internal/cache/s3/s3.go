// Package s3 is a Cache Store keeping entries as objects in an
// S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"realm/internal/cache"
)

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix namespaces the objects inside the bucket.
	Prefix string
	UseSSL bool
}

// Complete reports whether cfg has enough to build a client.
func (c Config) Complete() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	initOnce   sync.Once
	initErr    error
}

func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("cache(s3): endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("cache(s3): access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("cache(s3): bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "realm-cache"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("cache(s3): init client: %w", err)
	}
	return &Store{client: client, bucketName: bucket, region: region, prefix: prefix}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// ObjectKey maps a cache key to its object name. Page urls carry query
// strings, so names are hashed.
func (s *Store) ObjectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.prefix + "/" + hex.EncodeToString(sum[:])
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, false, fmt.Errorf("cache(s3): ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, s.ObjectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("cache(s3): get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache(s3): read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("cache(s3): ensure bucket: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	_, err = s.client.PutObject(ctx, s.bucketName, s.ObjectKey(key), bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"realm-key": key},
	})
	if err != nil {
		return fmt.Errorf("cache(s3): put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("cache(s3): ensure bucket: %w", err)
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, s.ObjectKey(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("cache(s3): delete %s: %w", key, err)
	}
	return nil
}

var _ cache.Store = (*Store)(nil)
