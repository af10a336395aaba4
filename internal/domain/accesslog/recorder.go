package accesslog

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"linkvault/internal/domain/link"
	"linkvault/internal/logger"
)

var (
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkvault_access_log_dropped_total",
		Help: "Link events dropped because the recorder buffer was full or closed.",
	})

	persistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkvault_access_log_persisted_total",
		Help: "Link events written to the access log by result.",
	}, []string{"result"})
)

const writeTimeout = 3 * time.Second

// Recorder is a buffered, fire-and-forget link.EventSink. Workers persist
// events and push them to the owner's live connections.
type Recorder struct {
	store   Store
	hub     *Hub
	events  chan link.Event
	workers int
	log     *logrus.Entry

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewRecorder(store Store, hub *Hub, buffer, workers int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Recorder{
		store:   store,
		hub:     hub,
		events:  make(chan link.Event, buffer),
		workers: workers,
		log:     logger.Component("accesslog"),
	}
}

// Record never blocks. A full buffer drops the event.
func (r *Recorder) Record(e link.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		droppedTotal.Inc()
		return
	}
	select {
	case r.events <- e:
	default:
		droppedTotal.Inc()
		r.log.WithField("short_code", e.ShortCode).WithField("event", e.Type).Warn("access log buffer full, event dropped")
	}
}

// Start launches the workers. Cancelling ctx closes the recorder.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	base := context.WithoutCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for e := range r.events {
				r.handle(base, e)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		r.Close()
	}()
}

// Close stops intake, drains buffered events and waits for the workers.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) handle(ctx context.Context, e link.Event) {
	entry := fromEvent(e)

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.Create(wctx, entry); err != nil {
		persistedTotal.WithLabelValues("error").Inc()
		r.log.WithError(err).WithFields(logrus.Fields{
			"short_code": e.ShortCode,
			"event":      e.Type,
		}).Warn("persist access log failed")
	} else {
		persistedTotal.WithLabelValues("ok").Inc()
	}

	if r.hub != nil {
		r.hub.Publish(e.OwnerID, &LiveEvent{Type: "link." + string(e.Type), Payload: entry})
	}
}
