package reaction

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qb20nh/duckhunt/internal/detect"
	"github.com/qb20nh/duckhunt/internal/logging"
)

type fakeLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLocker) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeLocker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

func (f *fakeNotifier) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

func newTestController(l Locker, n Notifier) *Controller {
	return NewController(l, n, logging.Default())
}

func anomaly(reason detect.Reason) detect.Verdict {
	return detect.Verdict{
		Anomaly:     true,
		Reason:      reason,
		AvgInterval: 5 * time.Millisecond,
		WindowFill:  25,
	}
}

func TestFirstAnomalyLocksOnce(t *testing.T) {
	locker := &fakeLocker{}
	notifier := &fakeNotifier{}
	c := newTestController(locker, notifier)

	require.True(t, c.OnAnomaly(anomaly(detect.ReasonThresholdBreach)))
	assert.Equal(t, 1, locker.count())
	assert.True(t, c.Armed())
}

func TestRepeatAnomaliesSuppressedWhileArmed(t *testing.T) {
	locker := &fakeLocker{}
	c := newTestController(locker, &fakeNotifier{})

	require.True(t, c.OnAnomaly(anomaly(detect.ReasonThresholdBreach)))
	assert.False(t, c.OnAnomaly(anomaly(detect.ReasonBurstBreach)))
	assert.False(t, c.OnAnomaly(anomaly(detect.ReasonThresholdBreach)))
	assert.Equal(t, 1, locker.count(), "one episode locks exactly once")
}

func TestUnlockNotifiesAndDisarms(t *testing.T) {
	notifier := &fakeNotifier{}
	c := newTestController(&fakeLocker{}, notifier)

	c.OnAnomaly(anomaly(detect.ReasonBurstBreach))
	c.OnUnlock()

	assert.Equal(t, 1, notifier.count())
	assert.False(t, c.Armed())
}

func TestUnlockWhileIdleIsNoop(t *testing.T) {
	notifier := &fakeNotifier{}
	c := newTestController(&fakeLocker{}, notifier)

	c.OnUnlock()
	assert.Zero(t, notifier.count(), "routine unlock without an episode must not notify")
}

func TestNewEpisodeAfterDisarm(t *testing.T) {
	locker := &fakeLocker{}
	c := newTestController(locker, &fakeNotifier{})

	c.OnAnomaly(anomaly(detect.ReasonThresholdBreach))
	c.OnUnlock()
	require.True(t, c.OnAnomaly(anomaly(detect.ReasonThresholdBreach)))

	assert.Equal(t, 2, locker.count())
	assert.Equal(t, uint64(2), c.LocksTotal())
}

func TestLockFailureSurfacedNotRetried(t *testing.T) {
	locker := &fakeLocker{err: errors.New("access denied")}
	c := newTestController(locker, &fakeNotifier{})

	c.OnAnomaly(anomaly(detect.ReasonThresholdBreach))

	assert.Equal(t, 1, locker.count())
	assert.True(t, c.Armed(), "episode stays armed even when the lock call fails")
	assert.Error(t, c.LastLockError())

	// Suppression still applies, so no retry storm.
	c.OnAnomaly(anomaly(detect.ReasonThresholdBreach))
	assert.Equal(t, 1, locker.count())
}

func TestNotificationNamesTheReason(t *testing.T) {
	cases := []struct {
		reason detect.Reason
		want   string
	}{
		{detect.ReasonThresholdBreach, "typing speed above human limits"},
		{detect.ReasonBurstBreach, "keystroke burst"},
		{detect.ReasonSyntheticInput, "synthetic input device"},
	}

	for _, tc := range cases {
		notifier := &fakeNotifier{}
		c := newTestController(&fakeLocker{}, notifier)

		c.OnAnomaly(anomaly(tc.reason))
		c.OnUnlock()

		require.Equal(t, 1, notifier.count())
		assert.Contains(t, notifier.lastBody(), tc.want, "reason %v", tc.reason)
	}
}

func TestNotifyFailureIsBestEffort(t *testing.T) {
	c := newTestController(&fakeLocker{}, &fakeNotifier{err: errors.New("no session bus")})

	c.OnAnomaly(anomaly(detect.ReasonSyntheticInput))
	c.OnUnlock()

	assert.False(t, c.Armed(), "notification failure must not keep the controller armed")
}
