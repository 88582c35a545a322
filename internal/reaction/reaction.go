// Package reaction turns detection verdicts into workstation defense
// actions. The controller is a two-state machine: Idle until an anomaly
// arrives, Armed from the lock call until the user unlocks again. Repeat
// anomalies while Armed are suppressed so one injection episode produces
// exactly one lock and one notification.
package reaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/qb20nh/duckhunt/internal/detect"
	"github.com/qb20nh/duckhunt/internal/logging"
)

// Locker locks the interactive workstation session.
type Locker interface {
	Lock() error
}

// Notifier shows a user-facing message. Delivery is best effort; a
// failed notification never blocks or retries.
type Notifier interface {
	Notify(title, body string) error
}

// stateIdle/stateArmed are the two controller phases.
type state int

const (
	stateIdle state = iota
	stateArmed
)

// Controller arms on the first anomaly of an episode and disarms on
// unlock. Safe for use from the pipeline goroutine plus Status readers.
type Controller struct {
	locker   Locker
	notifier Notifier
	log      *logging.Logger

	mu         sync.Mutex
	state      state
	armedAt    time.Time
	armedWhy   detect.Reason
	lockErr    error
	locksTotal uint64
}

// NewController wires the platform capabilities together.
func NewController(locker Locker, notifier Notifier, log *logging.Logger) *Controller {
	return &Controller{
		locker:   locker,
		notifier: notifier,
		log:      log.WithComponent("reaction"),
	}
}

// OnAnomaly reacts to an anomalous verdict. The first anomaly of an
// episode locks the workstation and arms the controller; anything after
// that is suppressed until OnUnlock. Returns true when this call armed.
func (c *Controller) OnAnomaly(v detect.Verdict) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateArmed {
		c.log.Debug("anomaly while armed, suppressed", "reason", v.Reason)
		return false
	}

	c.state = stateArmed
	c.armedAt = time.Now()
	c.armedWhy = v.Reason
	c.locksTotal++

	c.log.Warn("keystroke anomaly, locking workstation",
		"reason", v.Reason,
		"avg_interval", v.AvgInterval,
		"window_fill", v.WindowFill)

	if err := c.locker.Lock(); err != nil {
		// Keep the armed state: the episode happened even if the lock
		// call failed, and the operator needs the failure surfaced.
		c.lockErr = err
		c.log.Error("workstation lock failed", "error", err)
	} else {
		c.lockErr = nil
	}
	return true
}

// OnUnlock completes the episode: if armed, deliver the deferred
// notification and return to Idle.
func (c *Controller) OnUnlock() {
	c.mu.Lock()
	if c.state != stateArmed {
		c.mu.Unlock()
		return
	}
	reason := c.armedWhy
	at := c.armedAt
	c.state = stateIdle
	c.mu.Unlock()

	body := fmt.Sprintf("Keystroke injection blocked at %s (%s). The workstation was locked to stop it.",
		at.Format("15:04:05"), reasonText(reason))
	if err := c.notifier.Notify("Keystroke injection blocked", body); err != nil {
		c.log.Warn("unlock notification failed", "error", err)
	}
	c.log.Info("episode closed", "reason", reason, "armed_for", time.Since(at))
}

// Armed reports whether an episode is in progress.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateArmed
}

// LastLockError returns the most recent lock failure, nil after a
// successful lock.
func (c *Controller) LastLockError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockErr
}

// LocksTotal returns how many episodes have armed the controller.
func (c *Controller) LocksTotal() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locksTotal
}

func reasonText(r detect.Reason) string {
	switch r {
	case detect.ReasonThresholdBreach:
		return "typing speed above human limits"
	case detect.ReasonBurstBreach:
		return "keystroke burst"
	case detect.ReasonSyntheticInput:
		return "synthetic input device"
	default:
		return r.String()
	}
}
