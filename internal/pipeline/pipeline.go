// Package pipeline runs the analysis worker: the single goroutine that
// drains the event queue, classifies keystroke timing, and drives the
// reaction controller. Hook callbacks only ever enqueue; everything
// heavier than a queue push happens here.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/detect"
	"github.com/qb20nh/duckhunt/internal/event"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/reaction"
	"github.com/qb20nh/duckhunt/internal/session"
	"github.com/qb20nh/duckhunt/internal/store"
)

// Stats is a point-in-time snapshot of the worker counters, read by the
// IPC status handler.
type Stats struct {
	Processed     uint64    `json:"processed"`
	Discarded     uint64    `json:"discarded"`
	Dropped       uint64    `json:"dropped"`
	Anomalies     uint64    `json:"anomalies"`
	LastAnomaly   time.Time `json:"last_anomaly,omitzero"`
	LastReason    string    `json:"last_reason,omitempty"`
	AvgIntervalMs float64   `json:"avg_interval_ms"`
	EventsPerMin  float64   `json:"events_per_minute"`
	QueueLen      int       `json:"queue_len"`
	SessionState  string    `json:"session_state"`
}

// Worker consumes the event queue, gated by session state and the
// enabled flag. Implements suture.Service.
type Worker struct {
	queue   *event.Queue
	engine  *detect.Engine
	cfg     *config.Store
	monitor session.Monitor
	reactor *reaction.Controller
	journal *store.Journal
	log     *logging.Logger

	mu          sync.Mutex
	processed   uint64
	discarded   uint64
	anomalies   uint64
	lastAnomaly time.Time
	lastReason  detect.Reason
	avgInterval time.Duration
	rateStart   time.Time
	rateCount   int
	ratePerMin  float64
}

// New assembles the worker. journal may be nil to disable incident
// recording.
func New(queue *event.Queue, cfg *config.Store, monitor session.Monitor, reactor *reaction.Controller, journal *store.Journal, log *logging.Logger) *Worker {
	return &Worker{
		queue:   queue,
		engine:  detect.NewEngine(),
		cfg:     cfg,
		monitor: monitor,
		reactor: reactor,
		journal: journal,
		log:     log.WithComponent("pipeline"),
	}
}

// String names the service in supervisor logs.
func (w *Worker) String() string { return "pipeline" }

// Serve runs the analysis loop until the context is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info("analysis worker started",
		"queue_capacity", w.queue.Cap(),
		"enabled", w.cfg.Enabled())

	for {
		// While locked, leave the queue alone; the backlog gets drained
		// and discarded on the unlock transition, never classified.
		var wake <-chan struct{}
		if w.monitor.State() == session.Active {
			wake = w.queue.Wait()
		}

		select {
		case <-ctx.Done():
			w.log.Info("analysis worker stopping")
			return ctx.Err()
		case s := <-w.monitor.Transitions():
			w.onTransition(s)
		case <-wake:
			w.consume()
		}
	}
}

// onTransition handles a session state change.
func (w *Worker) onTransition(s session.State) {
	switch s {
	case session.Locked:
		w.log.Info("session locked, detection paused")
	case session.Active:
		n := w.queue.Drain()
		w.engine.Reset()
		if n > 0 {
			w.log.Info("session unlocked, queued events discarded", "discarded", n)
		} else {
			w.log.Info("session unlocked, windows reset")
		}
		w.mu.Lock()
		w.discarded += uint64(n)
		w.avgInterval = 0
		w.rateStart = time.Time{}
		w.rateCount = 0
		w.ratePerMin = 0
		w.mu.Unlock()
		w.reactor.OnUnlock()
	}
}

// consume pops everything currently queued. Each event is re-gated
// individually so a transition landing mid-batch takes effect at once.
func (w *Worker) consume() {
	for {
		if w.monitor.State() == session.Locked {
			return
		}

		ev, ok := w.queue.Pop()
		if !ok {
			return
		}

		if !w.cfg.Enabled() {
			// Detection off: events are discarded unclassified and the
			// timing windows keep their contents for re-enable.
			w.mu.Lock()
			w.discarded++
			w.mu.Unlock()
			continue
		}

		w.classify(ev)
	}
}

func (w *Worker) classify(ev event.KeyEvent) {
	verdict := w.engine.Classify(ev, w.cfg.Detection())

	w.mu.Lock()
	w.processed++
	w.avgInterval = w.engine.AvgInterval()
	if w.rateStart.IsZero() {
		w.rateStart = ev.Timestamp
	}
	w.rateCount++
	if elapsed := ev.Timestamp.Sub(w.rateStart); elapsed >= time.Minute {
		w.ratePerMin = float64(w.rateCount) / elapsed.Minutes()
		w.rateStart = ev.Timestamp
		w.rateCount = 0
	}
	if verdict.Anomaly {
		w.anomalies++
		w.lastAnomaly = ev.Timestamp
		w.lastReason = verdict.Reason
	}
	w.mu.Unlock()

	if !verdict.Anomaly {
		return
	}

	armed := w.reactor.OnAnomaly(verdict)
	if armed && w.journal != nil {
		w.record(ev, verdict)
	}
}

// record writes one journal row per episode, at arming time.
func (w *Worker) record(ev event.KeyEvent, v detect.Verdict) {
	_, err := w.journal.Append(store.Incident{
		Timestamp:     ev.Timestamp,
		Reason:        v.Reason.String(),
		AvgIntervalMs: float64(v.AvgInterval) / float64(time.Millisecond),
		WindowFill:    v.WindowFill,
		Locked:        w.reactor.LastLockError() == nil,
	})
	if err != nil {
		w.log.Error("incident journal write failed", "error", err)
	}
}

// Snapshot returns the current worker counters.
func (w *Worker) Snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{
		Processed:     w.processed,
		Discarded:     w.discarded,
		Dropped:       w.queue.Dropped(),
		Anomalies:     w.anomalies,
		LastAnomaly:   w.lastAnomaly,
		AvgIntervalMs: float64(w.avgInterval) / float64(time.Millisecond),
		EventsPerMin:  w.ratePerMin,
		QueueLen:      w.queue.Len(),
		SessionState:  w.monitor.State().String(),
	}
	// A bucket in progress beats a stale completed one once it has
	// enough span to be meaningful.
	if !w.rateStart.IsZero() {
		if elapsed := time.Since(w.rateStart); elapsed >= 5*time.Second {
			s.EventsPerMin = float64(w.rateCount) / elapsed.Minutes()
		}
	}
	if w.anomalies > 0 {
		s.LastReason = w.lastReason.String()
	}
	return s
}
