package replay

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"github.com/banshee-data/bagtopcd/internal/rosbag"
	"github.com/banshee-data/bagtopcd/internal/rosmsg"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

// muteLogs silences diagnostics for the duration of a test and returns the
// captured lines.
func muteLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return &lines
}

// xCloud builds a cloud with one float32 field "x" holding vals.
func xCloud(seq uint32, frame string, vals ...float32) *rosmsg.PointCloud2 {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &rosmsg.PointCloud2{
		Header:    rosmsg.Header{Seq: seq, Stamp: baseTime, FrameID: frame},
		Height:    1,
		Width:     uint32(len(vals)),
		Fields:    []rosmsg.PointField{{Name: "x", Offset: 0, Datatype: rosmsg.FLOAT32, Count: 1}},
		PointStep: 4,
		RowStep:   uint32(4 * len(vals)),
		Data:      data,
		IsDense:   true,
	}
}

func tfMessage(parent, child string, x float64) *rosmsg.TFMessage {
	return &rosmsg.TFMessage{Transforms: []rosmsg.TransformStamped{{
		Header:       rosmsg.Header{Stamp: baseTime, FrameID: parent},
		ChildFrameID: child,
		Translation:  rosmsg.Vector3{X: x},
		Rotation:     rosmsg.Quaternion{W: 1},
	}}}
}

type bagMessage struct {
	topic, typ string
	data       []byte
}

func cloudMsg(c *rosmsg.PointCloud2) bagMessage {
	return bagMessage{"/velodyne_points", rosmsg.TypePointCloud2, c.Encode()}
}

func tfMsg(m *rosmsg.TFMessage) bagMessage {
	return bagMessage{"/tf", rosmsg.TypeTFMessage, m.Encode()}
}

// writeBag writes msgs to a new bag in a temp dir, one millisecond apart.
func writeBag(t *testing.T, msgs ...bagMessage) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bag")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := rosbag.NewWriter(f, rosbag.WriterOptions{})
	require.NoError(t, err)
	for i, m := range msgs {
		require.NoError(t, w.WriteMessage(m.topic, m.typ, baseTime.Add(time.Duration(i)*time.Millisecond), m.data))
	}
	require.NoError(t, w.Close())
	return path
}

// sliceSource yields a fixed list of records, then err (io.EOF by default).
type sliceSource struct {
	records []Record
	err     error
}

func (s *sliceSource) Next() (Record, error) {
	if len(s.records) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}
