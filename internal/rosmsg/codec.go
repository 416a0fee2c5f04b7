// Package rosmsg implements ROS1 wire serialisation for the message types
// replayed from bag files: point clouds and coordinate-frame transforms.
//
// ROS1 serialisation is little-endian with no framing: strings and
// variable-length arrays are prefixed with a uint32 length, fixed-size fields
// are packed without alignment.
package rosmsg

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// decoder walks a serialised message, recording the first error. Callers
// check err once after decoding a whole message.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("truncated message: need %d bytes at offset %d, have %d", n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool { return d.uint8() != 0 }

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) float64() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (d *decoder) time() time.Time {
	sec := d.uint32()
	nsec := d.uint32()
	return FromROSTime(sec, nsec)
}

func (d *decoder) string() string {
	n := d.uint32()
	return string(d.take(int(n)))
}

func (d *decoder) bytes() []byte {
	n := d.uint32()
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// finish reports any decode error and rejects trailing bytes.
func (d *decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("decode %s: %w", what, d.err)
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("decode %s: %d trailing bytes", what, len(d.buf)-d.off)
	}
	return nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) uint8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) bool(v bool) {
	if v {
		e.uint8(1)
		return
	}
	e.uint8(0)
}

func (e *encoder) uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) float64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *encoder) time(t time.Time) {
	sec, nsec := ToROSTime(t)
	e.uint32(sec)
	e.uint32(nsec)
}

func (e *encoder) string(s string) {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) bytes(b []byte) {
	e.uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// FromROSTime converts a ROS (sec, nsec) pair to a UTC time. The zero pair
// maps to the zero time.Time.
func FromROSTime(sec, nsec uint32) time.Time {
	if sec == 0 && nsec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// ToROSTime is the inverse of FromROSTime.
func ToROSTime(t time.Time) (sec, nsec uint32) {
	if t.IsZero() {
		return 0, 0
	}
	ns := t.UnixNano()
	return uint32(ns / int64(time.Second)), uint32(ns % int64(time.Second))
}
