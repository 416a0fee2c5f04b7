package replay

import (
	"time"

	"github.com/banshee-data/bagtopcd/internal/rosmsg"
	"github.com/banshee-data/bagtopcd/internal/tf"
)

// Record is one message read from the log. The concrete type is always one of
// *TransformBatch, *PointCloud or *Other.
type Record interface {
	Meta() RecordMeta
	record()
}

// RecordMeta is the provenance shared by every record variant.
type RecordMeta struct {
	Topic    string
	Type     string
	Time     time.Time
	Position uint64 // zero-based index in log order among yielded records
}

// TransformBatch is a decoded tf/tfMessage or tf2_msgs/TFMessage.
type TransformBatch struct {
	RecordMeta
	Transforms []tf.Transform
}

// PointCloud is a decoded sensor_msgs/PointCloud2.
type PointCloud struct {
	RecordMeta
	Cloud *rosmsg.PointCloud2
}

// Other is any record the pipeline does not act on. Err is set when the
// payload was of a known type but failed to decode.
type Other struct {
	RecordMeta
	Err error
}

func (r *TransformBatch) Meta() RecordMeta { return r.RecordMeta }
func (r *PointCloud) Meta() RecordMeta     { return r.RecordMeta }
func (r *Other) Meta() RecordMeta          { return r.RecordMeta }

func (*TransformBatch) record() {}
func (*PointCloud) record()     {}
func (*Other) record()          {}
