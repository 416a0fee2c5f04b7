package rosbag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/banshee-data/bagtopcd/internal/rosmsg"
)

// DefaultChunkThreshold is the uncompressed size at which the writer closes a
// chunk.
const DefaultChunkThreshold = 768 * 1024

// WriterOptions configures a Writer.
type WriterOptions struct {
	Compression    string // CompressionNone or CompressionLZ4
	ChunkThreshold int
}

type indexEntry struct {
	t      time.Time
	offset uint32
}

type chunkInfo struct {
	pos        uint64
	start, end time.Time
	counts     map[uint32]uint32
}

// Writer produces v2.0 bag files. Connections are registered implicitly on
// first use of a topic.
type Writer struct {
	w    io.WriteSeeker
	opts WriterOptions
	pos  uint64

	conns      []*Connection
	connByKey  map[string]*Connection
	chunkConns map[uint32]bool

	chunk      []byte
	chunkIndex map[uint32][]indexEntry
	chunkStart time.Time
	chunkEnd   time.Time
	chunks     []chunkInfo
	closed     bool
}

// NewWriter writes the version line and a placeholder bag header to w.
func NewWriter(w io.WriteSeeker, opts WriterOptions) (*Writer, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	if opts.Compression != CompressionNone && opts.Compression != CompressionLZ4 {
		return nil, fmt.Errorf("writer does not support %q compression", opts.Compression)
	}
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = DefaultChunkThreshold
	}
	bw := &Writer{
		w:          w,
		opts:       opts,
		connByKey:  make(map[string]*Connection),
		chunkConns: make(map[uint32]bool),
		chunkIndex: make(map[uint32][]indexEntry),
	}
	if err := bw.write([]byte(Magic)); err != nil {
		return nil, err
	}
	if err := bw.write(bagHeaderRecord(0, 0, 0)); err != nil {
		return nil, err
	}
	return bw, nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.pos += uint64(n)
	return err
}

// bagHeaderRecord returns the bag header record padded to bagHeaderLen bytes.
func bagHeaderRecord(indexPos uint64, connCount, chunkCount uint32) []byte {
	var fw fieldWriter
	fw.uint64("index_pos", indexPos)
	fw.uint32("conn_count", connCount)
	fw.uint32("chunk_count", chunkCount)
	fw.op(OpBagHeader)
	pad := bytes.Repeat([]byte{' '}, bagHeaderLen-8-len(fw.buf))
	return appendRecord(nil, fw.buf, pad)
}

func (w *Writer) connection(topic, typ string) *Connection {
	key := topic + "\x00" + typ
	if c, ok := w.connByKey[key]; ok {
		return c
	}
	c := &Connection{
		ID:         uint32(len(w.conns)),
		Topic:      topic,
		Type:       typ,
		MD5Sum:     rosmsg.MD5Sum(typ),
		Definition: rosmsg.Definition(typ),
		CallerID:   "/bag_to_pcd",
	}
	w.conns = append(w.conns, c)
	w.connByKey[key] = c
	return c
}

func connectionRecord(c *Connection) []byte {
	var fw fieldWriter
	fw.op(OpConnection)
	fw.uint32("conn", c.ID)
	fw.string("topic", c.Topic)
	var data fieldWriter
	data.string("topic", c.Topic)
	data.string("type", c.Type)
	data.string("md5sum", c.MD5Sum)
	data.string("message_definition", c.Definition)
	if c.CallerID != "" {
		data.string("callerid", c.CallerID)
	}
	if c.Latching {
		data.string("latching", "1")
	}
	return appendRecord(nil, fw.buf, data.buf)
}

// WriteMessage appends a serialised message on topic with the given type.
func (w *Writer) WriteMessage(topic, typ string, t time.Time, data []byte) error {
	if w.closed {
		return errors.New("writer is closed")
	}
	c := w.connection(topic, typ)
	if !w.chunkConns[c.ID] {
		w.chunk = append(w.chunk, connectionRecord(c)...)
		w.chunkConns[c.ID] = true
	}
	if len(w.chunkIndex) == 0 || t.Before(w.chunkStart) {
		w.chunkStart = t
	}
	if len(w.chunkIndex) == 0 || t.After(w.chunkEnd) {
		w.chunkEnd = t
	}
	w.chunkIndex[c.ID] = append(w.chunkIndex[c.ID], indexEntry{t: t, offset: uint32(len(w.chunk))})

	var fw fieldWriter
	fw.op(OpMessageData)
	fw.uint32("conn", c.ID)
	fw.time("time", t)
	w.chunk = appendRecord(w.chunk, fw.buf, data)

	if len(w.chunk) >= w.opts.ChunkThreshold {
		return w.flushChunk()
	}
	return nil
}

func (w *Writer) flushChunk() error {
	if len(w.chunk) == 0 {
		return nil
	}
	payload := w.chunk
	if w.opts.Compression == CompressionLZ4 {
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(w.chunk); err != nil {
			return fmt.Errorf("compress chunk: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress chunk: %w", err)
		}
		payload = buf.Bytes()
	}

	info := chunkInfo{pos: w.pos, start: w.chunkStart, end: w.chunkEnd, counts: make(map[uint32]uint32)}

	var fw fieldWriter
	fw.op(OpChunk)
	fw.string("compression", w.opts.Compression)
	fw.uint32("size", uint32(len(w.chunk)))
	if err := w.write(appendRecord(nil, fw.buf, payload)); err != nil {
		return err
	}

	for _, id := range sortedIDs(w.chunkIndex) {
		entries := w.chunkIndex[id]
		info.counts[id] = uint32(len(entries))
		var ih fieldWriter
		ih.op(OpIndexData)
		ih.uint32("ver", 1)
		ih.uint32("conn", id)
		ih.uint32("count", uint32(len(entries)))
		data := make([]byte, 0, len(entries)*12)
		for _, e := range entries {
			sec, nsec := rosmsg.ToROSTime(e.t)
			data = binary.LittleEndian.AppendUint32(data, sec)
			data = binary.LittleEndian.AppendUint32(data, nsec)
			data = binary.LittleEndian.AppendUint32(data, e.offset)
		}
		if err := w.write(appendRecord(nil, ih.buf, data)); err != nil {
			return err
		}
	}

	w.chunks = append(w.chunks, info)
	w.chunk = nil
	w.chunkIndex = make(map[uint32][]indexEntry)
	w.chunkConns = make(map[uint32]bool)
	w.chunkStart = time.Time{}
	w.chunkEnd = time.Time{}
	return nil
}

// Close flushes the open chunk, writes the connection and chunk-info summary
// and rewrites the bag header. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushChunk(); err != nil {
		return err
	}
	indexPos := w.pos
	for _, c := range w.conns {
		if err := w.write(connectionRecord(c)); err != nil {
			return err
		}
	}
	for _, ci := range w.chunks {
		var fw fieldWriter
		fw.op(OpChunkInfo)
		fw.uint32("ver", 1)
		fw.uint64("chunk_pos", ci.pos)
		fw.time("start_time", ci.start)
		fw.time("end_time", ci.end)
		fw.uint32("count", uint32(len(ci.counts)))
		var data []byte
		for _, id := range sortedIDs(ci.counts) {
			data = binary.LittleEndian.AppendUint32(data, id)
			data = binary.LittleEndian.AppendUint32(data, ci.counts[id])
		}
		if err := w.write(appendRecord(nil, fw.buf, data)); err != nil {
			return err
		}
	}
	if _, err := w.w.Seek(int64(len(Magic)), io.SeekStart); err != nil {
		return fmt.Errorf("seek to bag header: %w", err)
	}
	if _, err := w.w.Write(bagHeaderRecord(indexPos, uint32(len(w.conns)), uint32(len(w.chunks)))); err != nil {
		return fmt.Errorf("rewrite bag header: %w", err)
	}
	_, err := w.w.Seek(int64(w.pos), io.SeekStart)
	return err
}

func sortedIDs[V any](m map[uint32]V) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
