package replay

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"gonum.org/v1/gonum/stat"
)

// TransformSink consumes transform batches. Receive returns once the batch is
// fully handled, including any pacing. Failures reports how many batches the
// sink could not deliver.
type TransformSink interface {
	Receive(batch *TransformBatch)
	Failures() int
}

// CloudSink consumes point clouds.
type CloudSink interface {
	Export(pc *PointCloud) error
}

// Stats summarises a replay.
type Stats struct {
	Records        int
	Batches        int
	Clouds         int
	Exported       int
	ExportFailures int
	Skipped        int
	DecodeFailures int
	RelayFailures  int

	// Point counts over successfully exported clouds.
	MeanPoints   float64
	StdDevPoints float64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d records: %d transform batches, %d clouds (%d exported, %d failed), %d skipped",
		s.Records, s.Batches, s.Clouds, s.Exported, s.ExportFailures, s.Skipped)
}

// Dispatcher drives a Source to exhaustion, routing each record by variant.
type Dispatcher struct {
	src      Source
	relay    TransformSink
	exporter CloudSink
}

// NewDispatcher wires a source to its sinks.
func NewDispatcher(src Source, relay TransformSink, exporter CloudSink) *Dispatcher {
	return &Dispatcher{src: src, relay: relay, exporter: exporter}
}

// Run processes every record in log order. Each record is fully handled
// before the next one is read. Export failures are logged and replay goes on;
// the only error returned is a source read failure.
func (d *Dispatcher) Run() (Stats, error) {
	var (
		st     Stats
		points []float64
	)
	for {
		rec, err := d.src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.finish(&st, points)
			return st, err
		}
		st.Records++

		switch r := rec.(type) {
		case *TransformBatch:
			st.Batches++
			d.relay.Receive(r)
		case *PointCloud:
			st.Clouds++
			if err := d.exporter.Export(r); err != nil {
				st.ExportFailures++
				monitoring.Logf("%v", err)
				continue
			}
			st.Exported++
			points = append(points, float64(r.Cloud.NumPoints()))
		case *Other:
			st.Skipped++
			if r.Err != nil {
				st.DecodeFailures++
				monitoring.Logf("skipping %s: %v", r.RecordMeta, r.Err)
			}
		default:
			panic(fmt.Sprintf("replay: unexpected record type %T", rec))
		}
	}
	d.finish(&st, points)
	return st, nil
}

func (d *Dispatcher) finish(st *Stats, points []float64) {
	st.RelayFailures = d.relay.Failures()
	if len(points) > 0 {
		st.MeanPoints = stat.Mean(points, nil)
	}
	if len(points) > 1 {
		st.StdDevPoints = stat.StdDev(points, nil)
	}
}
