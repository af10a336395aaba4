package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// TencentStore delegates to a Tencent Cloud COS bucket.
type TencentStore struct {
	client    *cos.Client
	secretID  string
	secretKey string
}

func NewTencentStore(endpoint, region, bucket, secretID, secretKey string) (*TencentStore, error) {
	bucketURL := fmt.Sprintf("https://%s.cos.%s.myqcloud.com", bucket, region)
	if endpoint != "" {
		bucketURL = endpoint
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &TencentStore{client: client, secretID: secretID, secretKey: secretKey}, nil
}

func (s *TencentStore) Exists(ctx context.Context, path string) (bool, error) {
	key, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	_, err = s.client.Object.Head(ctx, key, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *TencentStore) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	key, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	u, err := s.client.Object.GetPresignedURL(ctx, http.MethodGet, key, s.secretID, s.secretKey, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *TencentStore) Open(ctx context.Context, path string) (*Object, error) {
	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &Object{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}
