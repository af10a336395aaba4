package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qclient "github.com/qiniu/go-sdk/v7/client"
	qstorage "github.com/qiniu/go-sdk/v7/storage"
)

// QiniuStore delegates to a Qiniu Kodo private bucket served from domain.
type QiniuStore struct {
	mac     *qbox.Mac
	bucket  string
	domain  string
	manager *qstorage.BucketManager
	client  *http.Client
	now     func() time.Time
}

func NewQiniuStore(bucket, domain, accessKey, secretKey string) (*QiniuStore, error) {
	if domain == "" {
		return nil, fmt.Errorf("qiniu storage requires a bucket domain")
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}

	mac := qbox.NewMac(accessKey, secretKey)
	return &QiniuStore{
		mac:     mac,
		bucket:  bucket,
		domain:  strings.TrimRight(domain, "/"),
		manager: qstorage.NewBucketManager(mac, &qstorage.Config{UseHTTPS: true}),
		client:  &http.Client{},
		now:     time.Now,
	}, nil
}

// Exists calls Stat, which has no context parameter in the SDK.
func (s *QiniuStore) Exists(_ context.Context, path string) (bool, error) {
	key, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	if _, err := s.manager.Stat(s.bucket, key); err != nil {
		if isQiniuNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *QiniuStore) SignURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	key, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	deadline := s.now().Add(ttl).Unix()
	return qstorage.MakePrivateURL(s.mac, s.domain, key, deadline), nil
}

func (s *QiniuStore) Open(ctx context.Context, path string) (*Object, error) {
	signed, err := s.SignURL(ctx, path, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrBlobNotFound
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("qiniu download failed: %s", resp.Status)
	}

	return &Object{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// qiniuNoSuchFile is Kodo's status code for a missing key.
const qiniuNoSuchFile = 612

func isQiniuNotFound(err error) bool {
	var info *qclient.ErrorInfo
	return errors.As(err, &info) && info.Code == qiniuNoSuchFile
}
