package tf

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/bagtopcd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

// yaw returns a unit quaternion rotating by angle radians about +z.
func yaw(angle float64) quat.Number {
	return quat.Number{Real: math.Cos(angle / 2), Kmag: math.Sin(angle / 2)}
}

func assertPoint(t *testing.T, want, got [3]float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "component %d of %v", i, got)
	}
}

func TestTransform_Apply(t *testing.T) {
	tr := Transform{Translation: [3]float64{1, 2, 3}, Rotation: quat.Number{Real: 1}}
	assertPoint(t, [3]float64{1, 2, 3}, tr.Apply([3]float64{}))

	tr = Transform{Rotation: yaw(math.Pi / 2)}
	assertPoint(t, [3]float64{0, 1, 0}, tr.Apply([3]float64{1, 0, 0}))

	tr = Transform{Translation: [3]float64{10, 0, 0}, Rotation: yaw(math.Pi)}
	assertPoint(t, [3]float64{9, 0, 5}, tr.Apply([3]float64{1, 0, 5}))
}

func TestBuffer_PublishAndLookup(t *testing.T) {
	b := NewBuffer()
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, b.Publish([]Transform{
		{Parent: "/map", Child: "/odom", Stamp: stamp, Rotation: quat.Number{Real: 2}},
		{Parent: "odom", Child: "base_link", Stamp: stamp, Translation: [3]float64{0, 0, 1}, Rotation: yaw(0.3)},
	}))

	got, ok := b.Lookup("map", "odom")
	require.True(t, ok)
	assert.Equal(t, "map", got.Parent)
	assert.Equal(t, "odom", got.Child)
	assert.InDelta(t, 1.0, quat.Abs(got.Rotation), 1e-12, "rotation is normalised")
	assert.Equal(t, stamp, got.Stamp)

	_, ok = b.Lookup("/odom", "/base_link")
	assert.True(t, ok, "lookups tolerate a leading slash")

	_, ok = b.Lookup("base_link", "odom")
	assert.False(t, ok, "pairs are directional")

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, uint64(2), b.Published())
}

func TestBuffer_LaterPublishSupersedes(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, b.Publish([]Transform{{
			Parent:      "map",
			Child:       "base_link",
			Translation: [3]float64{float64(i), 0, 0},
			Rotation:    quat.Number{Real: 1},
		}}))
	}
	got, ok := b.Lookup("map", "base_link")
	require.True(t, ok)
	assert.Equal(t, [3]float64{2, 0, 0}, got.Translation)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, uint64(3), b.Published())
}

func TestBuffer_InvalidTransformsRejected(t *testing.T) {
	b := NewBuffer()
	err := b.Publish([]Transform{
		{Parent: "", Child: "a", Rotation: quat.Number{Real: 1}},
		{Parent: "a", Child: "/a", Rotation: quat.Number{Real: 1}},
		{Parent: "a", Child: "b"},
		{Parent: "a", Child: "c", Rotation: quat.Number{Real: math.NaN()}},
		{Parent: "a", Child: "d", Rotation: quat.Number{Real: 1}},
	})
	testutil.AssertError(t, err)
	assert.Contains(t, err.Error(), "empty frame id")
	assert.Contains(t, err.Error(), "its own parent")
	assert.Contains(t, err.Error(), "invalid rotation")

	assert.Equal(t, 1, b.Len(), "valid transforms in the batch are still applied")
	_, ok := b.Lookup("a", "d")
	assert.True(t, ok)
}

func TestBuffer_ConcurrentUse(t *testing.T) {
	b := NewBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Publish([]Transform{{Parent: "map", Child: "odom", Rotation: quat.Number{Real: 1}}})
				b.Lookup("map", "odom")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), b.Published())
}
