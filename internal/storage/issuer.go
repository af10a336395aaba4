package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"linkvault/internal/logger"
)

var (
	storageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkvault_storage_requests_total",
		Help: "Blob storage operations by operation and result.",
	}, []string{"op", "result"})

	storageRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkvault_storage_request_duration_seconds",
		Help:    "Blob storage operation latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	existsCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkvault_storage_exists_cache_total",
		Help: "Blob existence cache lookups by result.",
	}, []string{"result"})
)

// Delivery selects how IssueAccess hands content to the caller.
type Delivery string

const (
	DeliverURL    Delivery = "url"
	DeliverStream Delivery = "stream"
)

// Access is either a signed URL or an open stream, depending on delivery.
type Access struct {
	URL         string
	ExpiresAt   time.Time
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// IsStream reports whether the caller must copy Body to the client.
func (a *Access) IsStream() bool { return a.Body != nil }

type IssuerConfig struct {
	Delivery        Delivery
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	CacheSize       int
	CacheTTL        time.Duration
}

// Issuer adds per-call timeouts, bounded retries and an existence cache in front of a BlobStore.
type Issuer struct {
	store BlobStore
	cfg   IssuerConfig
	cache *expirable.LRU[string, struct{}]
	now   func() time.Time
}

func NewIssuer(store BlobStore, cfg IssuerConfig) *Issuer {
	if cfg.Delivery == "" {
		cfg.Delivery = DeliverURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}

	i := &Issuer{store: store, cfg: cfg, now: time.Now}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		i.cache = expirable.NewLRU[string, struct{}](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return i
}

func (i *Issuer) Delivery() Delivery { return i.cfg.Delivery }

// Exists reports blob presence. Only positive answers are cached, so a blob
// uploaded after a miss is seen on the next call.
func (i *Issuer) Exists(ctx context.Context, path string) (bool, error) {
	if i.cache != nil {
		if _, ok := i.cache.Get(path); ok {
			existsCacheTotal.WithLabelValues("hit").Inc()
			return true, nil
		}
		existsCacheTotal.WithLabelValues("miss").Inc()
	}

	var exists bool
	err := i.do(ctx, "exists", true, func(ctx context.Context) error {
		ok, err := i.store.Exists(ctx, path)
		exists = ok
		return err
	})
	if err != nil {
		return false, err
	}
	if exists && i.cache != nil {
		i.cache.Add(path, struct{}{})
	}
	return exists, nil
}

// IssueAccess mints a signed URL or opens a stream for path, depending on delivery.
func (i *Issuer) IssueAccess(ctx context.Context, path string, ttl time.Duration) (*Access, error) {
	if i.cfg.Delivery == DeliverStream {
		var obj *Object
		// Streams outlive this call, so only the request context bounds them.
		err := i.do(ctx, "open", false, func(ctx context.Context) error {
			o, err := i.store.Open(ctx, path)
			obj = o
			return err
		})
		if err != nil {
			i.forget(path, err)
			return nil, err
		}
		return &Access{Body: obj.Body, ContentType: obj.ContentType, Size: obj.Size}, nil
	}

	exists, err := i.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBlobNotFound
	}

	var signed string
	err = i.do(ctx, "sign", true, func(ctx context.Context) error {
		u, err := i.store.SignURL(ctx, path, ttl)
		signed = u
		return err
	})
	if err != nil {
		i.forget(path, err)
		return nil, err
	}
	return &Access{URL: signed, ExpiresAt: i.now().Add(ttl)}, nil
}

func (i *Issuer) forget(path string, err error) {
	if i.cache != nil && errors.Is(err, ErrBlobNotFound) {
		i.cache.Remove(path)
	}
}

// do runs fn with retries. ErrBlobNotFound and ErrInvalidPath are permanent;
// every other failure, timeouts included, is reported as ErrStorageUnavailable.
func (i *Issuer) do(ctx context.Context, op string, withTimeout bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() { storageRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = i.cfg.InitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(i.cfg.MaxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if withTimeout {
			callCtx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		}
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrInvalidPath) {
			return backoff.Permanent(err)
		}
		logger.Component("storage").WithField("op", op).WithField("attempt", attempt).WithError(err).Warn("storage call failed")
		return err
	}, policy)

	switch {
	case err == nil:
		storageRequestsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	case errors.Is(err, ErrBlobNotFound):
		storageRequestsTotal.WithLabelValues(op, "not_found").Inc()
		return ErrBlobNotFound
	case errors.Is(err, ErrInvalidPath):
		storageRequestsTotal.WithLabelValues(op, "invalid").Inc()
		return err
	default:
		storageRequestsTotal.WithLabelValues(op, "unavailable").Inc()
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
	}
}
