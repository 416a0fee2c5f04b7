// Package rosbag reads and writes ROS bag files (format version 2.0).
//
// A bag is a magic line followed by a sequence of records. Every record is
//
//	<header_len uint32><header><data_len uint32><data>
//
// where the header is a list of length-prefixed "name=value" fields and the
// "op" field identifies the record kind. Message data usually lives inside
// chunk records, optionally compressed; connection records describe the topic
// and message type behind each connection id.
package rosbag

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/bagtopcd/internal/rosmsg"
)

// Magic is the version line at the start of every v2.0 bag.
const Magic = "#ROSBAG V2.0\n"

// Record op codes.
const (
	OpMessageData byte = 0x02
	OpBagHeader   byte = 0x03
	OpIndexData   byte = 0x04
	OpChunk       byte = 0x05
	OpChunkInfo   byte = 0x06
	OpConnection  byte = 0x07
)

// Chunk compression names.
const (
	CompressionNone = "none"
	CompressionBZ2  = "bz2"
	CompressionLZ4  = "lz4"
)

// bagHeaderLen is the padded size of the bag header record, which lets
// writers rewrite it in place once the index position is known.
const bagHeaderLen = 4096

// maxRecordPart bounds a single header or data section so a corrupt length
// cannot trigger a huge allocation.
const maxRecordPart = 1 << 30

type header map[string][]byte

func (h header) op() (byte, error) {
	v, ok := h["op"]
	if !ok || len(v) != 1 {
		return 0, fmt.Errorf("record header missing op field")
	}
	return v[0], nil
}

func (h header) uint32(name string) (uint32, error) {
	v, ok := h[name]
	if !ok || len(v) != 4 {
		return 0, fmt.Errorf("record header field %q missing or not 4 bytes", name)
	}
	return binary.LittleEndian.Uint32(v), nil
}

func (h header) uint64(name string) (uint64, error) {
	v, ok := h[name]
	if !ok || len(v) != 8 {
		return 0, fmt.Errorf("record header field %q missing or not 8 bytes", name)
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (h header) time(name string) (time.Time, error) {
	v, ok := h[name]
	if !ok || len(v) != 8 {
		return time.Time{}, fmt.Errorf("record header field %q missing or not 8 bytes", name)
	}
	return rosmsg.FromROSTime(binary.LittleEndian.Uint32(v[:4]), binary.LittleEndian.Uint32(v[4:])), nil
}

func (h header) string(name string) string {
	return string(h[name])
}

// parseHeader splits a record (or connection) header into its fields.
func parseHeader(b []byte) (header, error) {
	h := make(header)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("truncated header field length")
		}
		n := binary.LittleEndian.Uint32(b)
		b = b[4:]
		if uint64(n) > uint64(len(b)) {
			return nil, fmt.Errorf("header field length %d exceeds remaining %d bytes", n, len(b))
		}
		field := b[:n]
		b = b[n:]
		eq := bytes.IndexByte(field, '=')
		if eq < 0 {
			return nil, fmt.Errorf("header field without '=' separator")
		}
		h[string(field[:eq])] = field[eq+1:]
	}
	return h, nil
}

// readRecord reads one record. It returns io.EOF only when r is exhausted
// exactly at a record boundary.
func readRecord(r io.Reader) (header, []byte, error) {
	hb, err := readPart(r)
	if err != nil {
		return nil, nil, err
	}
	h, err := parseHeader(hb)
	if err != nil {
		return nil, nil, err
	}
	data, err := readPart(r)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, nil, err
	}
	return h, data, nil
}

func readPart(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxRecordPart {
		return nil, fmt.Errorf("record section length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

// fieldWriter builds headers in a fixed field order so output is
// deterministic.
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) bytes(name string, v []byte) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(name)+1+len(v)))
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, '=')
	w.buf = append(w.buf, v...)
}

func (w *fieldWriter) op(op byte) {
	w.bytes("op", []byte{op})
}

func (w *fieldWriter) string(name, v string) {
	w.bytes(name, []byte(v))
}

func (w *fieldWriter) uint32(name string, v uint32) {
	w.bytes(name, binary.LittleEndian.AppendUint32(nil, v))
}

func (w *fieldWriter) uint64(name string, v uint64) {
	w.bytes(name, binary.LittleEndian.AppendUint64(nil, v))
}

func (w *fieldWriter) time(name string, t time.Time) {
	sec, nsec := rosmsg.ToROSTime(t)
	b := binary.LittleEndian.AppendUint32(nil, sec)
	w.bytes(name, binary.LittleEndian.AppendUint32(b, nsec))
}

// appendRecord appends a complete record to dst.
func appendRecord(dst, hdr, data []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(hdr)))
	dst = append(dst, hdr...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}
