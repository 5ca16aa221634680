package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// Store persists login history entries.
type Store interface {
	Create(ctx context.Context, entry *domain.LoginHistoryEntry) error
	List(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error)
}

// Options tunes the recorder queue.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Recorder appends login history entries off the request path. A single
// worker drains the queue so entries are written in the order they were
// accepted. When the queue is full, Record waits up to the write timeout for
// room and then abandons the entry with an error log and a metric.
type Recorder struct {
	store        Store
	logger       *zap.Logger
	metrics      *observability.Metrics
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan domain.LoginHistoryEntry
	abandon chan struct{}
	done    chan struct{}

	// written by the worker only, read after done is closed
	abandoned int
}

// NewRecorder starts the background writer.
func NewRecorder(store Store, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		store:        store,
		logger:       logger.Named("audit"),
		metrics:      metrics,
		writeTimeout: opts.WriteTimeout,
		now:          time.Now,
		queue:        make(chan domain.LoginHistoryEntry, opts.QueueSize),
		abandon:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Record validates and enqueues an entry. Store failures are reported by the
// recorder itself and never returned to the caller.
func (r *Recorder) Record(ctx context.Context, entry domain.LoginHistoryEntry) error {
	if !entry.Outcome.Valid() {
		return fmt.Errorf("record login history: unknown outcome %q", entry.Outcome)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	entry.Username = strings.TrimSpace(entry.Username)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		// Queued entries are flushed or abandoned before done closes, so a
		// late inline write cannot overtake them.
		<-r.done
		r.write(context.WithoutCancel(ctx), entry)
		return nil
	}
	enqueued := r.enqueue(entry)
	depth := len(r.queue)
	r.mu.RUnlock()

	if !enqueued {
		r.logger.Error("login history queue full, entry abandoned",
			zap.String("code", apperrors.CodeAuditWriteFailed),
			zap.String("id", entry.ID),
			zap.String("username", entry.Username),
			zap.String("outcome", string(entry.Outcome)),
			zap.Duration("waited", r.writeTimeout))
		r.metrics.RecordAuditAbandoned(1)
		return nil
	}
	r.metrics.SetAuditQueueDepth(depth)
	return nil
}

// enqueue waits up to the write timeout for room in the queue. Entries never
// bypass the queue while it is open, so insertion order is preserved.
func (r *Recorder) enqueue(entry domain.LoginHistoryEntry) bool {
	select {
	case r.queue <- entry:
		return true
	default:
	}

	timer := time.NewTimer(r.writeTimeout)
	defer timer.Stop()
	select {
	case r.queue <- entry:
		return true
	case <-timer.C:
		return false
	}
}

// List returns entries newest first. Authorization is the caller's job.
func (r *Recorder) List(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error) {
	return r.store.List(ctx, filter.Normalize())
}

// Close stops accepting queued entries and waits for the worker. Entries still
// pending when ctx ends are abandoned with a warning.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
	}

	close(r.abandon)
	<-r.done
	r.metrics.RecordAuditAbandoned(r.abandoned)
	if r.abandoned == 0 {
		return nil
	}
	return fmt.Errorf("audit drain: %d entries abandoned: %w", r.abandoned, ctx.Err())
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		select {
		case <-r.abandon:
			r.abandoned++
			r.logger.Warn("abandoning login history entry",
				zap.String("id", entry.ID),
				zap.String("username", entry.Username),
				zap.String("outcome", string(entry.Outcome)))
			continue
		default:
		}
		r.write(context.Background(), entry)
		r.metrics.SetAuditQueueDepth(len(r.queue))
	}
}

func (r *Recorder) write(parent context.Context, entry domain.LoginHistoryEntry) {
	ctx, cancel := context.WithTimeout(parent, r.writeTimeout)
	defer cancel()

	err := r.store.Create(ctx, &entry)
	if err == nil {
		return
	}

	fields := []zap.Field{
		zap.String("code", apperrors.CodeAuditWriteFailed),
		zap.String("id", entry.ID),
		zap.String("username", entry.Username),
		zap.String("outcome", string(entry.Outcome)),
		zap.Error(err),
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fields = append(fields, zap.Duration("timeout", r.writeTimeout))
	}
	r.logger.Error("login history write failed", fields...)
	r.metrics.RecordAuditFailure()
}
