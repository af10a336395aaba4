package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// AliyunStore delegates to an Aliyun OSS bucket.
type AliyunStore struct {
	bucket *oss.Bucket
}

func NewAliyunStore(endpoint, region, bucketName, accessKey, secretKey string) (*AliyunStore, error) {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://oss-%s.aliyuncs.com", region)
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun oss client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}
	return &AliyunStore{bucket: bucket}, nil
}

func (s *AliyunStore) Exists(ctx context.Context, path string) (bool, error) {
	key, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	return s.bucket.IsObjectExist(key, oss.WithContext(ctx))
}

func (s *AliyunStore) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	key, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return s.bucket.SignURL(key, oss.HTTPGet, seconds, oss.WithContext(ctx))
}

func (s *AliyunStore) Open(ctx context.Context, path string) (*Object, error) {
	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	meta, err := s.bucket.GetObjectDetailedMeta(key, oss.WithContext(ctx))
	if err != nil {
		return nil, mapAliyunError(err)
	}
	body, err := s.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		return nil, mapAliyunError(err)
	}

	size, _ := strconv.ParseInt(meta.Get("Content-Length"), 10, 64)
	return &Object{
		Body:        body,
		ContentType: meta.Get("Content-Type"),
		Size:        size,
	}, nil
}

func mapAliyunError(err error) error {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	return err
}
