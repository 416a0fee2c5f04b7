package rosbag

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_RejectsBZ2(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.bag"))
	require.NoError(t, err)
	defer f.Close()

	_, err = NewWriter(f, WriterOptions{Compression: CompressionBZ2})
	assert.ErrorContains(t, err, "bz2")
}

func TestWriter_BagHeaderIsPadded(t *testing.T) {
	path := writeTestBag(t, WriterOptions{}, sampleMessages(2))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, []byte(Magic)))
	h, body, err := readRecord(bytes.NewReader(data[len(Magic):]))
	require.NoError(t, err)
	op, err := h.op()
	require.NoError(t, err)
	assert.Equal(t, OpBagHeader, op)
	hdrLen := binary.LittleEndian.Uint32(data[len(Magic):])
	assert.Equal(t, bagHeaderLen, 8+int(hdrLen)+len(body))

	indexPos, err := h.uint64("index_pos")
	require.NoError(t, err)
	assert.Less(t, indexPos, uint64(len(data)))

	// The summary section starts with a connection record.
	sh, _, err := readRecord(bytes.NewReader(data[indexPos:]))
	require.NoError(t, err)
	op, err = sh.op()
	require.NoError(t, err)
	assert.Equal(t, OpConnection, op)
}

func TestWriter_Deterministic(t *testing.T) {
	for _, opts := range []WriterOptions{{}, {Compression: CompressionLZ4, ChunkThreshold: 128}} {
		a, err := os.ReadFile(writeTestBag(t, opts, sampleMessages(8)))
		require.NoError(t, err)
		b, err := os.ReadFile(writeTestBag(t, opts, sampleMessages(8)))
		require.NoError(t, err)
		assert.Equal(t, a, b, "compression %q", opts.Compression)
	}
}

func TestWriter_ClosedRejectsWrites(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.bag"))
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteMessage("/tf", "tf/tfMessage", t0, nil))
}
