package replay

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"github.com/banshee-data/bagtopcd/internal/tf"
	"github.com/banshee-data/bagtopcd/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

type recordingPublisher struct {
	batches [][]tf.Transform
	err     error
	onCall  func()
}

func (p *recordingPublisher) Publish(ts []tf.Transform) error {
	p.batches = append(p.batches, ts)
	if p.onCall != nil {
		p.onCall()
	}
	return p.err
}

func identity(parent, child string) tf.Transform {
	return tf.Transform{Parent: parent, Child: child, Rotation: quat.Number{Real: 1}}
}

func TestRelay_PublishesThenPaces(t *testing.T) {
	var events []string
	pub := &recordingPublisher{onCall: func() { events = append(events, "publish") }}
	clock := timeutil.NewMockClock(baseTime)
	clock.OnSleep(func(d time.Duration) { events = append(events, "sleep "+d.String()) })

	r := NewRelay(pub, clock, DefaultPacingDelay)
	r.Receive(&TransformBatch{Transforms: []tf.Transform{identity("map", "odom"), identity("odom", "base_link")}})
	r.Receive(&TransformBatch{Transforms: []tf.Transform{identity("map", "odom")}})

	assert.Equal(t, []string{"publish", "sleep 1ms", "publish", "sleep 1ms"}, events)
	require.Len(t, pub.batches, 2)
	assert.Len(t, pub.batches[0], 2)
	assert.Equal(t, 0, r.Failures())
	assert.Equal(t, baseTime.Add(2*time.Millisecond), clock.Now())
}

func TestRelay_PublishFailureIsNotSurfaced(t *testing.T) {
	logs := muteLogs(t)
	monitoring.SetVerbose(true)
	t.Cleanup(func() { monitoring.SetVerbose(false) })

	pub := &recordingPublisher{err: errors.New("cache closed")}
	clock := timeutil.NewMockClock(baseTime)
	r := NewRelay(pub, clock, DefaultPacingDelay)

	r.Receive(&TransformBatch{RecordMeta: RecordMeta{Position: 9}})

	assert.Equal(t, 1, r.Failures())
	assert.Equal(t, []time.Duration{time.Millisecond}, clock.Sleeps(), "pacing still applies after a failure")
	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "error relaying transforms at record 9: cache closed")
}

func TestRelay_ZeroDelaySkipsSleep(t *testing.T) {
	clock := timeutil.NewMockClock(baseTime)
	r := NewRelay(&recordingPublisher{}, clock, 0)
	r.Receive(&TransformBatch{})
	assert.Empty(t, clock.Sleeps())

	neg := NewRelay(&recordingPublisher{}, clock, -time.Second)
	neg.Receive(&TransformBatch{})
	assert.Empty(t, clock.Sleeps())
}

func TestRelay_FeedsBuffer(t *testing.T) {
	buf := tf.NewBuffer()
	r := NewRelay(buf, timeutil.NewMockClock(baseTime), DefaultPacingDelay)

	first := identity("/map", "/base_link")
	second := identity("map", "base_link")
	second.Translation = [3]float64{2, 0, 0}
	r.Receive(&TransformBatch{Transforms: []tf.Transform{first}})
	r.Receive(&TransformBatch{Transforms: []tf.Transform{second}})

	got, ok := buf.Lookup("map", "base_link")
	require.True(t, ok)
	assert.Equal(t, [3]float64{2, 0, 0}, got.Translation)
	assert.Equal(t, 1, buf.Len())
}
