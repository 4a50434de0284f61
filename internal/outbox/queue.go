package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scan-licences/internal/checkin"
	"scan-licences/internal/licence"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
)

const (
	DefaultMaxAttempts = 25
	DefaultInterval    = 15 * time.Second
	firstDrainDelay    = time.Second
)

var ErrDrainInProgress = errors.New("outbox drain already in progress")

// Submitter runs the full check-in for one URL.
type Submitter interface {
	Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result
}

// DropEvent reports an item given up after too many attempts.
type DropEvent struct {
	Item Item
	Last checkin.Result
}

// Report sums up one drain pass.
type Report struct {
	Resolved int
	Retried  int
	Dropped  int
}

type Queue struct {
	store       Store
	pipeline    Submitter
	conn        Connectivity
	maxAttempts int
	interval    time.Duration
	onDrop      func(DropEvent)
	now         func() time.Time

	drainMu sync.Mutex
	syncNow chan struct{}
}

type Option func(*Queue)

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// WithDropHandler observes dropped items. It is called synchronously from
// the drain pass.
func WithDropHandler(fn func(DropEvent)) Option {
	return func(q *Queue) { q.onDrop = fn }
}

// NewQueue wires a queue. conn may be nil, in which case the backend is
// assumed reachable and only pipeline failures enqueue.
func NewQueue(store Store, pipeline Submitter, conn Connectivity, opts ...Option) *Queue {
	q := &Queue{
		store:       store,
		pipeline:    pipeline,
		conn:        conn,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		now:         time.Now,
		syncNow:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Submit is the front door for a scan. Offline, or when the pipeline fails
// for lack of network, the scan is queued and the outcome is Queued.
func (q *Queue) Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result {
	lic, ok := licence.Extract(rawURL)
	if !ok || sessionID <= 0 {
		return checkin.Result{Outcome: checkin.InvalidInput, Err: fmt.Errorf("submit %q: %w", rawURL, model.ErrInvalidInput)}
	}

	if q.online() {
		res := q.pipeline.Submit(ctx, sessionID, rawURL)
		if !res.Offline() {
			return res
		}
		if s, ok := q.conn.(interface{ Set(online bool) }); ok {
			s.Set(false)
		}
	}

	if _, err := q.Enqueue(ctx, sessionID, rawURL); err != nil {
		return checkin.Result{Outcome: checkin.Failed, LicenceNo: lic, Err: err}
	}
	return checkin.Result{Outcome: checkin.Queued, LicenceNo: lic}
}

func (q *Queue) Enqueue(ctx context.Context, sessionID int64, rawURL string) (*Item, error) {
	it := &Item{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		URL:        rawURL,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.store.Append(ctx, it); err != nil {
		return nil, err
	}
	logger.Info("outbox.enqueued", "id", it.ID, "seq", it.Seq, "session_id", sessionID)
	return it, nil
}

// Drain replays a snapshot of the queue in Seq order. Items enqueued while
// it runs wait for the next pass. Only one pass runs at a time; a
// concurrent call returns ErrDrainInProgress.
func (q *Queue) Drain(ctx context.Context) (Report, error) {
	var rep Report
	if !q.drainMu.TryLock() {
		return rep, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	items, err := q.store.List(ctx)
	if err != nil {
		return rep, err
	}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := q.pipeline.Submit(ctx, it.SessionID, it.URL)
		if res.Outcome.Resolved() {
			if err := q.store.Remove(ctx, it.ID); err != nil {
				return rep, err
			}
			rep.Resolved++
			continue
		}

		attempts, err := q.store.Bump(ctx, it.ID)
		if err != nil {
			return rep, err
		}
		if attempts < q.maxAttempts {
			rep.Retried++
			continue
		}
		if err := q.store.Remove(ctx, it.ID); err != nil {
			return rep, err
		}
		rep.Dropped++
		it.Attempts = attempts
		q.drop(DropEvent{Item: it, Last: res})
	}
	if len(items) > 0 {
		logger.Info("outbox.drained", "resolved", rep.Resolved, "retried", rep.Retried, "dropped", rep.Dropped)
	}
	return rep, nil
}

func (q *Queue) drop(ev DropEvent) {
	logger.Warn("outbox.dropped",
		"id", ev.Item.ID,
		"session_id", ev.Item.SessionID,
		"url", ev.Item.URL,
		"attempts", ev.Item.Attempts,
		"outcome", ev.Last.Outcome,
		"error", ev.Last.Err,
	)
	if q.onDrop != nil {
		q.onDrop(ev)
	}
}

// SyncNow asks Run for an immediate pass.
func (q *Queue) SyncNow() {
	select {
	case q.syncNow <- struct{}{}:
	default:
	}
}

func (q *Queue) Len(ctx context.Context) (int, error) { return q.store.Len(ctx) }

// Run drains shortly after start, whenever connectivity comes back, on
// every tick while online and on SyncNow, until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	first := time.NewTimer(firstDrainDelay)
	defer first.Stop()

	var restored <-chan struct{}
	if q.conn != nil {
		restored = q.conn.Restored()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-first.C:
			if q.online() {
				q.pass(ctx, "start")
			}
		case <-restored:
			q.pass(ctx, "restored")
		case <-q.syncNow:
			q.pass(ctx, "manual")
		case <-ticker.C:
			if q.online() {
				q.pass(ctx, "tick")
			}
		}
	}
}

func (q *Queue) online() bool { return q.conn == nil || q.conn.Online() }

func (q *Queue) pass(ctx context.Context, trigger string) {
	if _, err := q.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) && ctx.Err() == nil {
		logger.Error("outbox.drain_failed", "trigger", trigger, "error", err)
	}
}
