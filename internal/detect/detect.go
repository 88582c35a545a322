// Package detect implements the sliding-window keystroke anomaly engine.
//
// Two independent heuristics run per key event:
//
//   - Threshold: the rolling average of the last history_size inter-key
//     intervals falls below threshold_ms. Injected payloads type far
//     faster than sustained human typing.
//   - Burst: burst_keys or more events land inside the trailing
//     burst_window_ms. Catches short payloads that never fill the
//     interval window.
//
// The engine is single-owner state: exactly one analysis worker calls
// Classify, so no internal locking is needed. All window arithmetic uses
// integer nanoseconds with an exact running sum decremented on eviction,
// so the average never accumulates floating-point drift.
package detect

import (
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/event"
)

// Reason identifies which heuristic flagged an event.
type Reason int

const (
	// ReasonNone means the event is clean.
	ReasonNone Reason = iota
	// ReasonThresholdBreach: rolling average interval below threshold.
	ReasonThresholdBreach
	// ReasonBurstBreach: too many events inside the burst window.
	ReasonBurstBreach
	// ReasonSyntheticInput: software-simulated event while auto-type is
	// disallowed.
	ReasonSyntheticInput
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonThresholdBreach:
		return "threshold_breach"
	case ReasonBurstBreach:
		return "burst_breach"
	case ReasonSyntheticInput:
		return "synthetic_input"
	default:
		return "unknown"
	}
}

// ParseReason converts a wire string back to a Reason.
func ParseReason(s string) Reason {
	switch s {
	case "threshold_breach":
		return ReasonThresholdBreach
	case "burst_breach":
		return ReasonBurstBreach
	case "synthetic_input":
		return ReasonSyntheticInput
	default:
		return ReasonNone
	}
}

// Verdict is the per-event classification. Produced once, never retracted.
type Verdict struct {
	Anomaly bool
	Reason  Reason

	// AvgInterval is the rolling average at decision time (zero until
	// at least one interval exists). Carried for status and the journal.
	AvgInterval time.Duration

	// WindowFill is how many intervals the window currently holds.
	WindowFill int
}

// Clean is the zero verdict.
var Clean = Verdict{}

// Engine classifies key events against one immutable config snapshot per
// decision. It exclusively owns its window state.
type Engine struct {
	intervals intervalWindow
	bursts    burstWindow

	prev   time.Time
	seeded bool
}

// NewEngine creates an engine with empty windows.
func NewEngine() *Engine {
	return &Engine{}
}

// Classify processes one dequeued key event using the given snapshot.
func (e *Engine) Classify(ev event.KeyEvent, cfg config.Detection) Verdict {
	// Synthetic escalation: with auto-type disallowed, a flagged event is
	// an anomaly regardless of timing. Window state and the previous
	// timestamp stay untouched so injected timestamps never pollute the
	// human-typing cadence.
	if ev.Synthetic && !cfg.AllowAutoType {
		return Verdict{
			Anomaly:     true,
			Reason:      ReasonSyntheticInput,
			AvgInterval: e.intervals.average(),
			WindowFill:  e.intervals.len(),
		}
	}

	// First event since start or reset: no interval exists yet.
	if !e.seeded {
		e.prev = ev.Timestamp
		e.seeded = true
		e.bursts.push(ev.Timestamp, cfg)
		return Clean
	}

	interval := ev.Timestamp.Sub(e.prev)
	if interval < 0 {
		// Out-of-order delivery should not happen on a FIFO queue, but a
		// negative interval would corrupt the sum. Clamp to zero, which
		// is itself maximally suspicious.
		interval = 0
	}
	e.prev = ev.Timestamp
	e.intervals.push(interval, cfg.HistorySize)

	v := Verdict{
		AvgInterval: e.intervals.average(),
		WindowFill:  e.intervals.len(),
	}

	// Threshold check needs a full window: a partially filled window is
	// not yet statistically meaningful.
	if e.intervals.len() == cfg.HistorySize && v.AvgInterval < cfg.Threshold() {
		v.Anomaly = true
		v.Reason = ReasonThresholdBreach
	}

	// Burst check runs independently; the first breach reached within
	// the same event supplies the reason.
	if e.bursts.push(ev.Timestamp, cfg) && !v.Anomaly {
		v.Anomaly = true
		v.Reason = ReasonBurstBreach
	}

	return v
}

// Reset clears both windows and the interval seed. Called on session
// resume so a window spanning a lock boundary never attributes injected
// speed to pre-lock typing, and never suppresses detection after unlock.
func (e *Engine) Reset() {
	e.intervals.reset()
	e.bursts.reset()
	e.prev = time.Time{}
	e.seeded = false
}

// AvgInterval exposes the current rolling average for status queries.
func (e *Engine) AvgInterval() time.Duration {
	return e.intervals.average()
}
