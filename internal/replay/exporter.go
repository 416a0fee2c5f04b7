package replay

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/bagtopcd/internal/fsutil"
	"github.com/banshee-data/bagtopcd/internal/manifest"
	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"github.com/banshee-data/bagtopcd/internal/pointcloud"
)

// ExportRecorder receives one entry per export attempt.
type ExportRecorder interface {
	RecordExport(e manifest.Export) error
}

// Exporter writes point clouds to <dir>/<seq>.pcd.
type Exporter struct {
	fs       fsutil.FileSystem
	dir      string
	encoding pointcloud.Encoding
	recorder ExportRecorder
}

// NewExporter creates an exporter writing into dir, which must already exist.
func NewExporter(fsys fsutil.FileSystem, dir string, enc pointcloud.Encoding) *Exporter {
	return &Exporter{fs: fsys, dir: dir, encoding: enc}
}

// SetRecorder attaches a manifest recorder. Recorder failures are logged and
// never fail an export.
func (e *Exporter) SetRecorder(r ExportRecorder) {
	e.recorder = r
}

// OutputPath returns the file a cloud with sequence number seq is written to.
// Equal sequence numbers map to the same path.
func OutputPath(dir string, seq uint32) string {
	return dir + "/" + strconv.FormatUint(uint64(seq), 10) + ".pcd"
}

// Export logs a summary of pc and writes it out. A failure affects only this
// record and is returned as *ExportError.
func (e *Exporter) Export(pc *PointCloud) error {
	c := pc.Cloud
	monitoring.Logf("Got %d data points in frame %s with the following fields: %s",
		c.NumPoints(), c.Header.FrameID, c.FieldsList())

	path := OutputPath(e.dir, c.Header.Seq)
	err := e.write(path, pc)

	entry := manifest.Export{
		Seq:     c.Header.Seq,
		Topic:   pc.Topic,
		FrameID: c.Header.FrameID,
		Stamp:   c.Header.Stamp,
		Points:  c.NumPoints(),
		Fields:  c.FieldsList(),
		Path:    path,
		Status:  manifest.StatusWritten,
	}
	if err != nil {
		entry.Status = manifest.StatusFailed
		entry.Error = err.Error()
	} else {
		monitoring.Logf("Data saved to %s", path)
	}
	if e.recorder != nil {
		if rerr := e.recorder.RecordExport(entry); rerr != nil {
			monitoring.Logf("manifest: %v", rerr)
		}
	}

	if err != nil {
		return &ExportError{Seq: c.Header.Seq, Path: path, Err: err}
	}
	return nil
}

// write checks the cloud before touching the filesystem, so an invalid cloud
// never truncates an existing file at path.
func (e *Exporter) write(path string, pc *PointCloud) error {
	enc, err := pointcloud.Encode(pc.Cloud, e.encoding)
	if err != nil {
		return fmt.Errorf("serialise %s: %w", pc.Cloud.Header.FrameID, err)
	}
	f, err := e.fs.Create(path)
	if err != nil {
		return err
	}
	if err := enc.Emit(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
