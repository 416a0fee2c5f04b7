package rosbag

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pierrec/lz4/v4"
)

// Connection describes the topic and message type behind a connection id.
type Connection struct {
	ID         uint32
	Topic      string
	Type       string
	MD5Sum     string
	Definition string
	CallerID   string
	Latching   bool
}

// Message is one message-data record resolved against its connection.
type Message struct {
	Conn *Connection
	Time time.Time
	Data []byte
}

// Bag is an open bag file.
type Bag struct {
	path       string
	f          *os.File
	r          *bufio.Reader
	indexPos   uint64
	connCount  uint32
	chunkCount uint32
	conns      map[uint32]*Connection
	viewed     bool
}

// Open opens a bag for reading and validates its magic line and bag header
// record.
func Open(path string) (*Bag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	b := &Bag{
		path:  path,
		f:     f,
		r:     bufio.NewReaderSize(f, 1<<16),
		conns: make(map[uint32]*Connection),
	}
	if err := b.readPreamble(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func (b *Bag) readPreamble() error {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(b.r, magic); err != nil {
		return fmt.Errorf("read version line: %w", err)
	}
	if string(magic) != Magic {
		if bytes.HasPrefix(magic, []byte("#ROSBAG V")) {
			return fmt.Errorf("unsupported bag version %q", bytes.TrimSpace(magic))
		}
		return fmt.Errorf("not a bag file")
	}
	h, _, err := readRecord(b.r)
	if err != nil {
		return fmt.Errorf("read bag header: %w", err)
	}
	op, err := h.op()
	if err != nil {
		return err
	}
	if op != OpBagHeader {
		return fmt.Errorf("first record has op 0x%02x, want bag header", op)
	}
	if b.indexPos, err = h.uint64("index_pos"); err != nil {
		return err
	}
	if b.connCount, err = h.uint32("conn_count"); err != nil {
		return err
	}
	if b.chunkCount, err = h.uint32("chunk_count"); err != nil {
		return err
	}
	return nil
}

// Path returns the file the bag was opened from.
func (b *Bag) Path() string { return b.path }

// ChunkCount returns the chunk count recorded in the bag header.
func (b *Bag) ChunkCount() uint32 { return b.chunkCount }

// ConnectionCount returns the connection count recorded in the bag header.
func (b *Bag) ConnectionCount() uint32 { return b.connCount }

// Close releases the underlying file.
func (b *Bag) Close() error {
	return b.f.Close()
}

// Query selects which messages a View yields. Empty Types or Topics match
// everything.
type Query struct {
	Types  []string
	Topics []string
}

func (q Query) matches(c *Connection) bool {
	return matchAny(q.Types, c.Type) && matchAny(q.Topics, c.Topic)
}

func matchAny(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// View is a forward-only pass over the messages of a bag in the order they
// were appended. A bag supports a single View.
type View struct {
	bag   *Bag
	query Query
	chunk *bytes.Reader
	err   error
}

// View starts the single pass over the bag. Calling it twice returns a view
// whose Next fails.
func (b *Bag) View(q Query) *View {
	v := &View{bag: b, query: q}
	if b.viewed {
		v.err = errors.New("bag already viewed")
	}
	b.viewed = true
	return v
}

// Next returns the next matching message, or io.EOF when the bag is
// exhausted. Any other error is terminal.
func (v *View) Next() (*Message, error) {
	if v.err != nil {
		return nil, v.err
	}
	m, err := v.next()
	if err != nil {
		v.err = err
		return nil, err
	}
	return m, nil
}

func (v *View) next() (*Message, error) {
	for {
		if v.chunk != nil {
			h, data, err := readRecord(v.chunk)
			if err == io.EOF {
				v.chunk = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("chunk record: %w", err)
			}
			m, err := v.handle(h, data)
			if err != nil || m != nil {
				return m, err
			}
			continue
		}

		h, data, err := readRecord(v.bag.r)
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		op, err := h.op()
		if err != nil {
			return nil, err
		}
		if op == OpChunk {
			if v.chunk, err = openChunk(h, data); err != nil {
				return nil, err
			}
			continue
		}
		m, err := v.handle(h, data)
		if err != nil || m != nil {
			return m, err
		}
	}
}

// handle processes a non-chunk record, returning a message when it is a
// matching message-data record.
func (v *View) handle(h header, data []byte) (*Message, error) {
	op, err := h.op()
	if err != nil {
		return nil, err
	}
	switch op {
	case OpConnection:
		c, err := parseConnection(h, data)
		if err != nil {
			return nil, err
		}
		if _, ok := v.bag.conns[c.ID]; !ok {
			v.bag.conns[c.ID] = c
		}
		return nil, nil
	case OpMessageData:
		id, err := h.uint32("conn")
		if err != nil {
			return nil, err
		}
		c, ok := v.bag.conns[id]
		if !ok {
			return nil, fmt.Errorf("message references unknown connection %d", id)
		}
		if !v.query.matches(c) {
			return nil, nil
		}
		t, err := h.time("time")
		if err != nil {
			return nil, err
		}
		return &Message{Conn: c, Time: t, Data: data}, nil
	case OpIndexData, OpChunkInfo, OpBagHeader:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown record op 0x%02x", op)
	}
}

func parseConnection(h header, data []byte) (*Connection, error) {
	id, err := h.uint32("conn")
	if err != nil {
		return nil, err
	}
	ch, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("connection %d header: %w", id, err)
	}
	topic := h.string("topic")
	if topic == "" {
		topic = ch.string("topic")
	}
	return &Connection{
		ID:         id,
		Topic:      topic,
		Type:       ch.string("type"),
		MD5Sum:     ch.string("md5sum"),
		Definition: ch.string("message_definition"),
		CallerID:   ch.string("callerid"),
		Latching:   ch.string("latching") == "1",
	}, nil
}

// openChunk decompresses a chunk record's payload.
func openChunk(h header, data []byte) (*bytes.Reader, error) {
	size, err := h.uint32("size")
	if err != nil {
		return nil, err
	}
	compression := h.string("compression")
	var r io.Reader
	switch compression {
	case CompressionNone:
		if uint32(len(data)) != size {
			return nil, fmt.Errorf("uncompressed chunk is %d bytes, header says %d", len(data), size)
		}
		return bytes.NewReader(data), nil
	case CompressionBZ2:
		r = bzip2.NewReader(bytes.NewReader(data))
	case CompressionLZ4:
		r = lz4.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported chunk compression %q", compression)
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("decompress %s chunk: %w", compression, err)
	}
	return bytes.NewReader(out), nil
}
