package accesslog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"linkvault/internal/database"
	"linkvault/internal/domain/link"
	"linkvault/internal/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Discard()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:accesslog_test_%s?mode=memory&cache=shared", name)
	db, err := database.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := database.Migrate(db, dsn, &AccessLog{}); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

var baseTime = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func accessEvent(code string, n int64) link.Event {
	return link.Event{
		Type:        link.EventAccess,
		LinkID:      1,
		ShortCode:   code,
		OwnerID:     7,
		AccessCount: n,
		VisitorIP:   "192.0.2.10",
		UserAgent:   "curl/8",
		OccurredAt:  baseTime.Add(time.Duration(n) * time.Second),
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Create(context.Context, *AccessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("disk full")
}

func (s *failingStore) ListByShortCode(context.Context, string, int, int) ([]*AccessLog, error) {
	return nil, nil
}

func TestRecorder_PersistsEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	rec := NewRecorder(repo, NewHub(), 16, 2)
	rec.Start(context.Background())

	for i := int64(1); i <= 3; i++ {
		rec.Record(accessEvent("CODE00001", i))
	}
	rec.Record(link.Event{Type: link.EventRevoke, ShortCode: "CODE00001", OwnerID: 7, OccurredAt: baseTime.Add(time.Minute)})
	rec.Close()

	logs, err := repo.ListByShortCode(context.Background(), "CODE00001", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, "revoke", logs[0].Event)
	assert.Equal(t, int64(3), logs[1].AccessCount)
	assert.Equal(t, int64(1), logs[3].AccessCount)
	assert.Equal(t, "192.0.2.10", logs[1].VisitorIP)
	assert.NotEmpty(t, logs[0].ID)

	page, err := repo.ListByShortCode(context.Background(), "CODE00001", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].AccessCount)
}

func TestRecorder_FullBufferDropsWithoutBlocking(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	rec := NewRecorder(repo, nil, 2, 1)
	before := testutil.ToFloat64(droppedTotal)

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			rec.Record(accessEvent("CODE00002", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(droppedTotal)-before)

	rec.Start(context.Background())
	rec.Close()

	logs, err := repo.ListByShortCode(context.Background(), "CODE00002", 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "buffered events are drained on close")
}

func TestRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	rec := NewRecorder(repo, nil, 4, 1)
	rec.Start(context.Background())
	rec.Close()
	rec.Close()

	before := testutil.ToFloat64(droppedTotal)
	assert.NotPanics(t, func() { rec.Record(accessEvent("CODE00003", 1)) })
	assert.Equal(t, float64(1), testutil.ToFloat64(droppedTotal)-before)
}

func TestRecorder_ContextCancelCloses(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	rec := NewRecorder(repo, nil, 4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)

	rec.Record(accessEvent("CODE00004", 1))
	cancel()

	require.Eventually(t, func() bool {
		rec.mu.RLock()
		defer rec.mu.RUnlock()
		return rec.closed
	}, 2*time.Second, 10*time.Millisecond)
	rec.Close()

	logs, err := repo.ListByShortCode(context.Background(), "CODE00004", 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, NewHub(), 4, 1)
	rec.Start(context.Background())

	assert.NotPanics(t, func() {
		rec.Record(accessEvent("CODE00005", 1))
		rec.Record(accessEvent("CODE00005", 2))
	})
	rec.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 2, store.calls)
}
