package replay

import (
	"time"

	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"github.com/banshee-data/bagtopcd/internal/tf"
	"github.com/banshee-data/bagtopcd/internal/timeutil"
)

// DefaultPacingDelay is the wait after each relayed batch that gives
// asynchronous cache listeners time to observe the update.
const DefaultPacingDelay = time.Millisecond

// Relay republishes transform batches into a transform cache.
type Relay struct {
	pub   tf.Publisher
	clock timeutil.Clock
	delay time.Duration

	failures int
}

// NewRelay creates a relay publishing to pub. A nil clock uses the real
// clock; a negative delay is treated as zero.
func NewRelay(pub tf.Publisher, clock timeutil.Clock, delay time.Duration) *Relay {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if delay < 0 {
		delay = 0
	}
	return &Relay{pub: pub, clock: clock, delay: delay}
}

// Receive publishes every transform in batch, then sleeps the pacing delay.
// Publish failures never propagate.
func (r *Relay) Receive(batch *TransformBatch) {
	if err := r.pub.Publish(batch.Transforms); err != nil {
		r.failures++
		monitoring.Debugf("%v", &RelayError{Position: batch.Position, Err: err})
	}
	if r.delay > 0 {
		r.clock.Sleep(r.delay)
	}
}

// Failures returns the number of batches whose publish failed.
func (r *Relay) Failures() int { return r.failures }
