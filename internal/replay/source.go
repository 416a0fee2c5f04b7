package replay

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/bagtopcd/internal/rosbag"
	"github.com/banshee-data/bagtopcd/internal/rosmsg"
	"github.com/banshee-data/bagtopcd/internal/tf"
	"gonum.org/v1/gonum/num/quat"
)

// Source yields records in log order and returns io.EOF once exhausted.
type Source interface {
	Next() (Record, error)
}

// DefaultTypes is the type filter used for replay: point clouds and both tf
// message variants.
var DefaultTypes = []string{rosmsg.TypePointCloud2, rosmsg.TypeTFMessage, rosmsg.TypeTF2TFMessage}

// BagSource adapts a bag View into a Source.
type BagSource struct {
	bag  *rosbag.Bag
	view *rosbag.View
	pos  uint64
}

// OpenBag opens the bag at path and starts a view filtered to types, or to
// DefaultTypes when none are given. Failures are returned as *OpenError.
func OpenBag(path string, types ...string) (*BagSource, error) {
	if len(types) == 0 {
		types = DefaultTypes
	}
	bag, err := rosbag.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	return &BagSource{
		bag:  bag,
		view: bag.View(rosbag.Query{Types: types}),
	}, nil
}

// Summary describes the opened bag for the startup log.
func (s *BagSource) Summary() string {
	return fmt.Sprintf("%d connections in %d chunks", s.bag.ConnectionCount(), s.bag.ChunkCount())
}

// Close releases the bag file.
func (s *BagSource) Close() error {
	return s.bag.Close()
}

// Next decodes the next message. Read failures are wrapped in *OpenError;
// a payload that fails to decode is yielded as *Other with Err set.
func (s *BagSource) Next() (Record, error) {
	m, err := s.view.Next()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &OpenError{Path: s.bag.Path(), Err: err}
	}
	meta := RecordMeta{
		Topic:    m.Conn.Topic,
		Type:     m.Conn.Type,
		Time:     m.Time,
		Position: s.pos,
	}
	s.pos++
	return decode(meta, m.Data), nil
}

func decode(meta RecordMeta, data []byte) Record {
	switch {
	case meta.Type == rosmsg.TypePointCloud2:
		c, err := rosmsg.DecodePointCloud2(data)
		if err != nil {
			return &Other{RecordMeta: meta, Err: err}
		}
		return &PointCloud{RecordMeta: meta, Cloud: c}
	case rosmsg.IsTransformType(meta.Type):
		m, err := rosmsg.DecodeTFMessage(data)
		if err != nil {
			return &Other{RecordMeta: meta, Err: err}
		}
		batch := &TransformBatch{RecordMeta: meta, Transforms: make([]tf.Transform, len(m.Transforms))}
		for i, ts := range m.Transforms {
			batch.Transforms[i] = fromStamped(ts)
		}
		return batch
	default:
		return &Other{RecordMeta: meta}
	}
}

func fromStamped(ts rosmsg.TransformStamped) tf.Transform {
	return tf.Transform{
		Parent:      ts.Header.FrameID,
		Child:       ts.ChildFrameID,
		Stamp:       ts.Header.Stamp,
		Translation: [3]float64{ts.Translation.X, ts.Translation.Y, ts.Translation.Z},
		Rotation: quat.Number{
			Real: ts.Rotation.W,
			Imag: ts.Rotation.X,
			Jmag: ts.Rotation.Y,
			Kmag: ts.Rotation.Z,
		},
	}
}

// String describes the record for diagnostics.
func (m RecordMeta) String() string {
	return fmt.Sprintf("#%d %s [%s]", m.Position, m.Topic, m.Type)
}
