package outbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-licences/internal/checkin"
	"scan-licences/internal/config"
	"scan-licences/internal/model"
)

type fakePipeline struct {
	mu     sync.Mutex
	calls  []string
	result func(url string) checkin.Result
}

func (f *fakePipeline) Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	fn := f.result
	f.mu.Unlock()
	if fn == nil {
		return checkin.Result{Outcome: checkin.Recorded}
	}
	return fn(rawURL)
}

func (f *fakePipeline) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeConn struct {
	mu       sync.Mutex
	online   bool
	restored chan struct{}
}

func newFakeConn(online bool) *fakeConn {
	return &fakeConn{online: online, restored: make(chan struct{}, 1)}
}

func (c *fakeConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) Restored() <-chan struct{} { return c.restored }

func (c *fakeConn) Set(online bool) {
	c.mu.Lock()
	was := c.online
	c.online = online
	c.mu.Unlock()
	if online && !was {
		c.restored <- struct{}{}
	}
}

func offline(string) checkin.Result {
	return checkin.Result{Outcome: checkin.Failed, Err: model.ErrNetworkUnavailable}
}

func newTestStore(t *testing.T, path string) *SQLStore {
	t.Helper()
	db, err := config.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	return s
}

func url(lic string) string { return "https://itac.pro/F.aspx?C=" + lic }

func TestStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	db, err := config.OpenSQLite(path)
	require.NoError(t, err)
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	q := NewQueue(s, &fakePipeline{}, newFakeConn(false))
	for _, lic := range []string{"AAA111", "BBB222"} {
		res := q.Submit(ctx, 7, url(lic))
		require.Equal(t, checkin.Queued, res.Outcome)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	reopened := newTestStore(t, path)
	items, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, url("AAA111"), items[0].URL)
	assert.Equal(t, int64(7), items[1].SessionID)
	assert.Less(t, items[0].Seq, items[1].Seq)
	assert.Len(t, items[0].ID, 36)
}

func TestOfflineThenReconnect(t *testing.T) {
	ctx := context.Background()
	pipe := &fakePipeline{}
	conn := newFakeConn(false)
	q := NewQueue(newTestStore(t, ":memory:"), pipe, conn)

	res := q.Submit(ctx, 1, url("ABC123"))
	assert.Equal(t, checkin.Queued, res.Outcome)
	assert.Equal(t, "ABC123", res.LicenceNo)
	assert.Empty(t, pipe.Calls())

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	conn.Set(true)
	rep, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Resolved: 1}, rep)
	assert.Equal(t, []string{url("ABC123")}, pipe.Calls())

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitQueuesOnNetworkFailure(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn(true)
	q := NewQueue(newTestStore(t, ":memory:"), &fakePipeline{result: offline}, conn)

	res := q.Submit(ctx, 1, url("ABC123"))
	assert.Equal(t, checkin.Queued, res.Outcome)
	assert.False(t, conn.Online())

	res = NewQueue(newTestStore(t, ":memory:"), &fakePipeline{
		result: func(string) checkin.Result { return checkin.Result{Outcome: checkin.EnrichmentNotFound, Err: model.ErrNotFound} },
	}, nil).Submit(ctx, 1, url("ABC123"))
	assert.Equal(t, checkin.EnrichmentNotFound, res.Outcome)

	res = q.Submit(ctx, 1, "??")
	assert.Equal(t, checkin.InvalidInput, res.Outcome)
}

func TestDrainIsFIFOAndIndependent(t *testing.T) {
	ctx := context.Background()
	pipe := &fakePipeline{result: func(u string) checkin.Result {
		switch u {
		case url("BAD222"):
			return checkin.Result{Outcome: checkin.Failed, Err: errors.New("boom")}
		case url("DUP333"):
			return checkin.Result{Outcome: checkin.Duplicate}
		}
		return checkin.Result{Outcome: checkin.Recorded}
	}}
	conn := newFakeConn(false)
	q := NewQueue(newTestStore(t, ":memory:"), pipe, conn)
	for _, lic := range []string{"AAA111", "BAD222", "DUP333", "CCC444"} {
		q.Submit(ctx, 1, url(lic))
	}
	conn.Set(true)

	rep, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Resolved: 3, Retried: 1}, rep)
	assert.Equal(t, []string{url("AAA111"), url("BAD222"), url("DUP333"), url("CCC444")}, pipe.Calls())

	items, err := q.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
}

func TestDrainDropsAfterBudget(t *testing.T) {
	ctx := context.Background()
	var dropped []DropEvent
	q := NewQueue(newTestStore(t, ":memory:"), &fakePipeline{result: offline}, newFakeConn(false),
		WithMaxAttempts(3),
		WithDropHandler(func(ev DropEvent) { dropped = append(dropped, ev) }),
	)
	q.Submit(ctx, 1, url("ABC123"))

	for i := 0; i < 2; i++ {
		rep, err := q.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, Report{Retried: 1}, rep)
	}
	assert.Empty(t, dropped)

	rep, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Dropped: 1}, rep)
	require.Len(t, dropped, 1)
	assert.Equal(t, 3, dropped[0].Item.Attempts)
	assert.Equal(t, url("ABC123"), dropped[0].Item.URL)
	assert.ErrorIs(t, dropped[0].Last.Err, model.ErrNetworkUnavailable)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainDefaultBudget(t *testing.T) {
	ctx := context.Background()
	var dropped int
	q := NewQueue(newTestStore(t, ":memory:"), &fakePipeline{result: offline}, newFakeConn(false),
		WithDropHandler(func(DropEvent) { dropped++ }))
	q.Submit(ctx, 1, url("ABC123"))

	for i := 1; i < DefaultMaxAttempts; i++ {
		_, err := q.Drain(ctx)
		require.NoError(t, err)
	}
	assert.Zero(t, dropped)
	_, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
}

func TestConcurrentDrainIsExcluded(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	pipe := &fakePipeline{result: func(string) checkin.Result {
		once.Do(func() { close(entered) })
		<-release
		return checkin.Result{Outcome: checkin.Recorded}
	}}
	q := NewQueue(newTestStore(t, ":memory:"), pipe, newFakeConn(false))
	q.Submit(ctx, 1, url("ABC123"))

	done := make(chan error, 1)
	go func() {
		_, err := q.Drain(ctx)
		done <- err
	}()
	<-entered

	_, err := q.Drain(ctx)
	assert.ErrorIs(t, err, ErrDrainInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, pipe.Calls(), 1)
}

func TestItemsEnqueuedMidPassWait(t *testing.T) {
	ctx := context.Background()
	var q *Queue
	pipe := &fakePipeline{}
	pipe.result = func(u string) checkin.Result {
		if u == url("AAA111") {
			_, err := q.Enqueue(ctx, 1, url("LATE99"))
			require.NoError(t, err)
		}
		return checkin.Result{Outcome: checkin.Recorded}
	}
	q = NewQueue(newTestStore(t, ":memory:"), pipe, newFakeConn(false))
	q.Submit(ctx, 1, url("AAA111"))

	rep, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Resolved)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunDrainsOnRestoreAndSyncNow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipe := &fakePipeline{}
	conn := newFakeConn(false)
	q := NewQueue(newTestStore(t, ":memory:"), pipe, conn, WithInterval(time.Hour))
	q.Submit(ctx, 1, url("AAA111"))

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	conn.Set(true)
	assert.Eventually(t, func() bool {
		n, err := q.Len(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err := q.Enqueue(ctx, 1, url("BBB222"))
	require.NoError(t, err)
	q.SyncNow()
	assert.Eventually(t, func() bool { return len(pipe.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestProber(t *testing.T) {
	healthy := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	p := NewProber(srv.URL+"/healthz", time.Hour, time.Second)
	assert.True(t, p.Check(context.Background()))

	mu.Lock()
	healthy = false
	mu.Unlock()
	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.Online())

	mu.Lock()
	healthy = true
	mu.Unlock()
	assert.True(t, p.Check(context.Background()))
	select {
	case <-p.Restored():
	default:
		t.Fatal("expected a restored signal")
	}
}
