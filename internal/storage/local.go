package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore serves blobs from a directory. Signed URLs point back at this
// process under /blobs and carry an HMAC over path and expiry.
type LocalStore struct {
	baseDir    string
	signingKey []byte
	baseURL    string
	now        func() time.Time
}

func NewLocalStore(baseDir, signingKey, publicBaseURL string) (*LocalStore, error) {
	if signingKey == "" {
		return nil, errors.New("local storage signing key must not be empty")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve blob dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{
		baseDir:    abs,
		signingKey: []byte(signingKey),
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
		now:        time.Now,
	}, nil
}

// cleanPath normalises a blob path and rejects anything escaping the store root.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

func (s *LocalStore) resolve(p string) (string, string, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return rel, filepath.Join(s.baseDir, filepath.FromSlash(rel)), nil
}

func (s *LocalStore) Exists(_ context.Context, p string) (bool, error) {
	_, full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *LocalStore) SignURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	ok, err := s.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBlobNotFound
	}

	rel, _ := cleanPath(p)
	expires := s.now().Add(ttl).Unix()

	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(rel, expires))
	return fmt.Sprintf("%s/blobs/%s?%s", s.baseURL, strings.Join(segments, "/"), q.Encode()), nil
}

func (s *LocalStore) Open(_ context.Context, p string) (*Object, error) {
	rel, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrBlobNotFound
	}

	return &Object{
		Body:        f,
		ContentType: detectContentType(f, rel),
		Size:        info.Size(),
	}, nil
}

// Verify checks a signature produced by SignURL.
func (s *LocalStore) Verify(p string, expires int64, signature string) bool {
	rel, err := cleanPath(p)
	if err != nil {
		return false
	}
	if s.now().Unix() >= expires {
		return false
	}
	expected := s.sign(rel, expires)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (s *LocalStore) sign(rel string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(rel))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func detectContentType(f *os.File, name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_, _ = f.Seek(0, io.SeekStart)
	return http.DetectContentType(buf[:n])
}
