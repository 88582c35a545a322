package detect

import (
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
)

// intervalWindow is an ordered ring of the most recent inter-key
// intervals. history_size counts intervals, not events, so the window
// fills after history_size+1 events. The sum is exact (integer
// nanoseconds) and decremented on eviction.
type intervalWindow struct {
	ring []time.Duration
	head int
	n    int
	sum  time.Duration
}

func (w *intervalWindow) push(d time.Duration, capacity int) {
	if len(w.ring) != capacity {
		w.resize(capacity)
	}
	if w.n == capacity {
		w.sum -= w.ring[w.head]
		w.head = (w.head + 1) % capacity
		w.n--
	}
	w.ring[(w.head+w.n)%capacity] = d
	w.n++
	w.sum += d
}

func (w *intervalWindow) len() int { return w.n }

func (w *intervalWindow) average() time.Duration {
	if w.n == 0 {
		return 0
	}
	return w.sum / time.Duration(w.n)
}

// resize is taken when a config swap changed history_size. The most
// recent intervals are retained, matching runtime-update behavior of the
// rest of the snapshot fields.
func (w *intervalWindow) resize(capacity int) {
	keep := w.n
	if keep > capacity {
		keep = capacity
	}
	ring := make([]time.Duration, capacity)
	var sum time.Duration
	for i := 0; i < keep; i++ {
		// Copy the newest `keep` entries in order.
		src := (w.head + w.n - keep + i) % max(len(w.ring), 1)
		ring[i] = w.ring[src]
		sum += ring[i]
	}
	w.ring = ring
	w.head = 0
	w.n = keep
	w.sum = sum
}

func (w *intervalWindow) reset() {
	for i := range w.ring {
		w.ring[i] = 0
	}
	w.head = 0
	w.n = 0
	w.sum = 0
}

// burstWindow is an ordered ring of event timestamps inside the trailing
// burst window. Stale entries are pruned from the front on every push.
// Length is additionally capped at burst_keys: once the cap is reached
// the breach has already fired, and older in-window timestamps can only
// re-confirm it, so dropping them keeps memory fixed.
type burstWindow struct {
	times []time.Time
}

// push records a timestamp and reports whether the window now holds a
// burst (burst_keys or more events within burst_window_ms).
func (b *burstWindow) push(ts time.Time, cfg config.Detection) bool {
	cutoff := ts.Add(-cfg.BurstWindow())

	// Monotonic prune from the front.
	i := 0
	for i < len(b.times) && b.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.times = append(b.times[:0], b.times[i:]...)
	}

	b.times = append(b.times, ts)
	breach := len(b.times) >= cfg.BurstKeys

	if len(b.times) > cfg.BurstKeys {
		b.times = append(b.times[:0], b.times[len(b.times)-cfg.BurstKeys:]...)
	}
	return breach
}

func (b *burstWindow) reset() {
	b.times = b.times[:0]
}
