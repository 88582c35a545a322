package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/event"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/reaction"
	"github.com/qb20nh/duckhunt/internal/session"
)

type fakeLocker struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLocker) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeLocker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	worker   *Worker
	queue    *event.Queue
	cfg      *config.Store
	monitor  *session.Simulated
	locker   *fakeLocker
	notifier *fakeNotifier
	cancel   context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	queue := event.NewQueue(256)
	cfg := config.NewStore(config.DefaultDetection(), true)
	monitor := session.NewSimulated()
	require.NoError(t, monitor.Start(context.Background()))

	locker := &fakeLocker{}
	notifier := &fakeNotifier{}
	reactor := reaction.NewController(locker, notifier, logging.Default())

	worker := New(queue, cfg, monitor, reactor, nil, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Serve(ctx)
	t.Cleanup(cancel)
	t.Cleanup(func() { monitor.Stop() })

	return &fixture{
		worker:   worker,
		queue:    queue,
		cfg:      cfg,
		monitor:  monitor,
		locker:   locker,
		notifier: notifier,
		cancel:   cancel,
	}
}

// pushBurst enqueues n events spaced by interval, starting at base.
func (f *fixture) pushBurst(base time.Time, n int, interval time.Duration) {
	for i := 0; i < n; i++ {
		f.queue.Push(event.KeyEvent{Timestamp: base.Add(time.Duration(i) * interval)})
	}
}

func TestInjectionLocksWorkstation(t *testing.T) {
	f := newFixture(t)

	// Well under the 30ms threshold with the full default window.
	f.pushBurst(time.Now(), 30, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.locker.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "sustained 5ms typing should lock")

	stats := f.worker.Snapshot()
	assert.NotZero(t, stats.Anomalies)
	assert.Equal(t, "threshold_breach", stats.LastReason)
}

func TestHumanTypingIsClean(t *testing.T) {
	f := newFixture(t)

	f.pushBurst(time.Now(), 40, 120*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Processed == 40
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, f.locker.count())
	assert.Zero(t, f.worker.Snapshot().Anomalies)
}

func TestOneLockPerEpisode(t *testing.T) {
	f := newFixture(t)

	// Two full anomalous windows back to back: still one episode.
	f.pushBurst(time.Now(), 60, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Processed == 60
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.locker.count())
}

func TestUnlockDiscardsBacklogAndNotifies(t *testing.T) {
	f := newFixture(t)

	f.pushBurst(time.Now(), 30, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.locker.count() == 1 && f.worker.Snapshot().Processed == 30
	}, 2*time.Second, 10*time.Millisecond)

	f.monitor.Lock()
	// Events arriving at the lock screen must not be classified.
	f.pushBurst(time.Now(), 20, 1*time.Millisecond)

	f.monitor.Unlock()
	assert.Eventually(t, func() bool {
		return f.notifier.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := f.worker.Snapshot()
	assert.Equal(t, uint64(30), stats.Processed, "lock-screen backlog must be discarded, not classified")
	assert.Equal(t, 1, f.locker.count())
}

func TestWindowsResetAfterUnlock(t *testing.T) {
	f := newFixture(t)

	base := time.Now()
	f.pushBurst(base, 20, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Processed == 20
	}, 2*time.Second, 10*time.Millisecond)

	f.monitor.Lock()
	f.monitor.Unlock()
	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().AvgIntervalMs == 0
	}, 2*time.Second, 10*time.Millisecond, "interval window should be empty after unlock")
}

func TestDisabledDiscardsWithoutClassifying(t *testing.T) {
	f := newFixture(t)
	f.cfg.SetEnabled(false)

	f.pushBurst(time.Now(), 30, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Discarded == 30
	}, 2*time.Second, 10*time.Millisecond)

	stats := f.worker.Snapshot()
	assert.Zero(t, stats.Processed)
	assert.Zero(t, f.locker.count())
}

func TestDisableEnablePreservesWindows(t *testing.T) {
	f := newFixture(t)

	// 25 events at 20ms = 24 intervals: one short of a full default
	// window, anomalous on average but too slow to trip the burst check.
	base := time.Now()
	f.pushBurst(base, 25, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Processed == 25
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, f.locker.count(), "window not yet full, no verdict expected")

	// Events arriving while disabled are discarded unclassified.
	f.cfg.SetEnabled(false)
	f.pushBurst(base.Add(600*time.Millisecond), 10, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.worker.Snapshot().Discarded == 10
	}, 2*time.Second, 10*time.Millisecond)

	// A single event can only breach if the 24 intervals survived the
	// disable round trip.
	f.cfg.SetEnabled(true)
	f.queue.Push(event.KeyEvent{Timestamp: base.Add(500 * time.Millisecond)})

	assert.Eventually(t, func() bool {
		return f.locker.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "retained history should fill the window on the next event")

	stats := f.worker.Snapshot()
	assert.Equal(t, "threshold_breach", stats.LastReason)
	assert.Equal(t, uint64(26), stats.Processed)
}

func TestConfigSwapTakesEffect(t *testing.T) {
	f := newFixture(t)

	// Raise the threshold so 50ms typing becomes anomalous.
	d := f.cfg.Detection()
	d.ThresholdMs = 80
	require.NoError(t, f.cfg.SwapDetection(d))

	f.pushBurst(time.Now(), 30, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.locker.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
