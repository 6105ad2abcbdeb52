package strategy

import "sync"

// Entry trigger defaults
const (
	DefaultSpikeRatio = 1.3
	DefaultSmoothing  = 0.1
)

// EntryTrigger decides when ATM implied volatility justifies entering.
type EntryTrigger interface {
	ShouldEnter(atmIV float64) bool
}

// ImmediateTrigger enters on the first observation.
type ImmediateTrigger struct{}

// ShouldEnter always returns true
func (ImmediateTrigger) ShouldEnter(float64) bool { return true }

// IVSpikeTrigger fires when ATM IV reaches SpikeRatio times a baseline. The
// baseline starts at the first observation and is smoothed toward each
// non-firing observation.
type IVSpikeTrigger struct {
	mu          sync.Mutex
	SpikeRatio  float64
	Smoothing   float64
	baseline    float64
	initialized bool
}

// NewIVSpikeTrigger creates a trigger; non-positive arguments take the defaults.
func NewIVSpikeTrigger(spikeRatio, smoothing float64) *IVSpikeTrigger {
	if spikeRatio <= 0 {
		spikeRatio = DefaultSpikeRatio
	}
	if smoothing <= 0 || smoothing > 1 {
		smoothing = DefaultSmoothing
	}
	return &IVSpikeTrigger{SpikeRatio: spikeRatio, Smoothing: smoothing}
}

// ShouldEnter records an observation and reports whether it is a spike
func (t *IVSpikeTrigger) ShouldEnter(atmIV float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		t.baseline = atmIV
		t.initialized = true
	}
	if atmIV >= t.SpikeRatio*t.baseline {
		return true
	}
	t.baseline = (1-t.Smoothing)*t.baseline + t.Smoothing*atmIV
	return false
}

// Baseline returns the current smoothed baseline
func (t *IVSpikeTrigger) Baseline() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline
}
