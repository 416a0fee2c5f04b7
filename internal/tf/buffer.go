// Package tf holds the coordinate-frame transform cache fed during replay.
//
// The cache is an injected capability: the process that hosts a replay owns a
// Buffer and hands it to the relay as a Publisher. Consumers look transforms
// up by (parent, child) frame pair; the newest publish for a pair wins.
package tf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
)

// Transform is a rigid transform from the child frame into the parent frame.
type Transform struct {
	Parent      string
	Child       string
	Stamp       time.Time
	Translation [3]float64
	Rotation    quat.Number
}

// Apply maps point p from the child frame into the parent frame.
func (t Transform) Apply(p [3]float64) [3]float64 {
	v := quat.Number{Imag: p[0], Jmag: p[1], Kmag: p[2]}
	r := quat.Mul(quat.Mul(t.Rotation, v), quat.Conj(t.Rotation))
	return [3]float64{
		r.Imag + t.Translation[0],
		r.Jmag + t.Translation[1],
		r.Kmag + t.Translation[2],
	}
}

// Publisher accepts transform updates.
type Publisher interface {
	Publish(transforms []Transform) error
}

type frameKey struct {
	parent, child string
}

// Buffer is an in-process transform cache. It is safe for concurrent use.
type Buffer struct {
	mu        sync.RWMutex
	latest    map[frameKey]Transform
	published uint64
}

// NewBuffer returns an empty cache.
func NewBuffer() *Buffer {
	return &Buffer{latest: make(map[frameKey]Transform)}
}

// Publish stores every valid transform, replacing older entries for the same
// frame pair. Invalid transforms are skipped and reported together in the
// returned error; valid ones in the same batch are still applied.
func (b *Buffer) Publish(transforms []Transform) error {
	var errs []error
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range transforms {
		nt, err := normalise(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.latest[frameKey{nt.Parent, nt.Child}] = nt
		b.published++
	}
	return errors.Join(errs...)
}

// normalise canonicalises frame ids (ROS tolerates a leading slash) and scales
// the rotation to unit length.
func normalise(t Transform) (Transform, error) {
	t.Parent = strings.TrimPrefix(t.Parent, "/")
	t.Child = strings.TrimPrefix(t.Child, "/")
	if t.Parent == "" || t.Child == "" {
		return t, fmt.Errorf("transform %q -> %q: empty frame id", t.Parent, t.Child)
	}
	if t.Parent == t.Child {
		return t, fmt.Errorf("transform %q -> %q: frame is its own parent", t.Parent, t.Child)
	}
	n := quat.Abs(t.Rotation)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return t, fmt.Errorf("transform %q -> %q: invalid rotation %v", t.Parent, t.Child, t.Rotation)
	}
	t.Rotation = quat.Scale(1/n, t.Rotation)
	return t, nil
}

// Lookup returns the newest transform published for the frame pair.
func (b *Buffer) Lookup(parent, child string) (Transform, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.latest[frameKey{strings.TrimPrefix(parent, "/"), strings.TrimPrefix(child, "/")}]
	return t, ok
}

// Len returns the number of distinct frame pairs held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.latest)
}

// Published returns the number of transforms accepted since creation.
func (b *Buffer) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}
