// Package pointcloud serialises sensor_msgs/PointCloud2 messages as PCD v0.7
// files, the format read by PCL, CloudCompare and most point cloud tools.
//
// Files are written with an identity viewpoint (zero origin, unit
// orientation) and one of three DATA encodings. Output depends only on the
// cloud, so re-exporting the same message yields byte-identical files.
package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/bagtopcd/internal/rosmsg"
)

// Encoding is the PCD DATA section encoding.
type Encoding string

const (
	ASCII            Encoding = "ascii"
	Binary           Encoding = "binary"
	BinaryCompressed Encoding = "binary_compressed"
)

// ParseEncoding validates an encoding name.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case ASCII, Binary, BinaryCompressed:
		return e, nil
	default:
		return "", fmt.Errorf("unknown PCD encoding %q (want ascii, binary or binary_compressed)", s)
	}
}

// identityViewpoint is translation (0,0,0) followed by quaternion w,x,y,z.
const identityViewpoint = "0 0 0 1 0 0 0"

// column is one FIELDS entry. Padding columns cover gaps in the point layout
// and are only emitted for the binary encoding.
type column struct {
	name     string
	offset   int
	size     int
	typ      byte
	count    int
	datatype uint8
	padding  bool
}

func (c column) width() int { return c.size * c.count }

func typeChar(datatype uint8) byte {
	switch datatype {
	case rosmsg.INT8, rosmsg.INT16, rosmsg.INT32:
		return 'I'
	case rosmsg.UINT8, rosmsg.UINT16, rosmsg.UINT32:
		return 'U'
	default:
		return 'F'
	}
}

// layout orders the cloud's fields by offset and fills gaps with padding
// columns so that the columns tile point_step exactly.
func layout(c *rosmsg.PointCloud2) ([]column, error) {
	if c.IsBigEndian {
		return nil, fmt.Errorf("big-endian point clouds are not supported")
	}
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("point cloud has no fields")
	}
	fields := make([]rosmsg.PointField, len(c.Fields))
	copy(fields, c.Fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Offset < fields[j].Offset })

	var cols []column
	pos := 0
	for _, f := range fields {
		size := f.Size()
		if size == 0 {
			return nil, fmt.Errorf("field %q has unknown datatype %d", f.Name, f.Datatype)
		}
		count := int(f.Count)
		if count == 0 {
			count = 1
		}
		off := int(f.Offset)
		if off < pos {
			return nil, fmt.Errorf("field %q at offset %d overlaps previous field ending at %d", f.Name, off, pos)
		}
		if off > pos {
			cols = append(cols, padColumn(pos, off-pos))
		}
		cols = append(cols, column{
			name:     f.Name,
			offset:   off,
			size:     size,
			typ:      typeChar(f.Datatype),
			count:    count,
			datatype: f.Datatype,
		})
		pos = off + size*count
	}
	step := int(c.PointStep)
	if pos > step {
		return nil, fmt.Errorf("fields need %d bytes per point but point_step is %d", pos, step)
	}
	if pos < step {
		cols = append(cols, padColumn(pos, step-pos))
	}
	return cols, nil
}

func padColumn(offset, n int) column {
	return column{name: "_", offset: offset, size: 1, typ: 'U', count: n, datatype: rosmsg.UINT8, padding: true}
}

// packedPoints returns width*height*point_step bytes with any row padding
// removed.
func packedPoints(c *rosmsg.PointCloud2) ([]byte, error) {
	w, h := int(c.Width), int(c.Height)
	step, rowStep := int(c.PointStep), int(c.RowStep)
	rowLen := w * step
	if w*h == 0 {
		return nil, nil
	}
	if rowStep < rowLen {
		return nil, fmt.Errorf("row_step %d smaller than width*point_step %d", rowStep, rowLen)
	}
	need := (h-1)*rowStep + rowLen
	if len(c.Data) < need {
		return nil, fmt.Errorf("point buffer has %d bytes, need %d for %dx%d points", len(c.Data), need, w, h)
	}
	if rowStep == rowLen {
		return c.Data[:rowLen*h], nil
	}
	out := make([]byte, 0, rowLen*h)
	for r := 0; r < h; r++ {
		out = append(out, c.Data[r*rowStep:r*rowStep+rowLen]...)
	}
	return out, nil
}

func writeHeader(bw *bufio.Writer, c *rosmsg.PointCloud2, cols []column, enc Encoding) {
	var names, sizes, types, counts []string
	for _, col := range cols {
		if col.padding && enc != Binary {
			continue
		}
		names = append(names, col.name)
		sizes = append(sizes, strconv.Itoa(col.size))
		types = append(types, string(col.typ))
		counts = append(counts, strconv.Itoa(col.count))
	}
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\n")
	fmt.Fprintf(bw, "FIELDS %s\n", strings.Join(names, " "))
	fmt.Fprintf(bw, "SIZE %s\n", strings.Join(sizes, " "))
	fmt.Fprintf(bw, "TYPE %s\n", strings.Join(types, " "))
	fmt.Fprintf(bw, "COUNT %s\n", strings.Join(counts, " "))
	fmt.Fprintf(bw, "WIDTH %d\n", c.Width)
	fmt.Fprintf(bw, "HEIGHT %d\n", c.Height)
	fmt.Fprintf(bw, "VIEWPOINT %s\n", identityViewpoint)
	fmt.Fprintf(bw, "POINTS %d\n", c.NumPoints())
	fmt.Fprintf(bw, "DATA %s\n", enc)
}

// Encoded is a cloud that passed layout and buffer checks and is ready to be
// emitted. Emitting it can only fail on the destination writer.
type Encoded struct {
	cloud  *rosmsg.PointCloud2
	enc    Encoding
	cols   []column
	points []byte
}

// Encode validates c against enc without writing anything.
func Encode(c *rosmsg.PointCloud2, enc Encoding) (*Encoded, error) {
	if _, err := ParseEncoding(string(enc)); err != nil {
		return nil, err
	}
	cols, err := layout(c)
	if err != nil {
		return nil, err
	}
	points, err := packedPoints(c)
	if err != nil {
		return nil, err
	}
	return &Encoded{cloud: c, enc: enc, cols: cols, points: points}, nil
}

// Emit writes the PCD file to w.
func (e *Encoded) Emit(w io.Writer) error {
	c, points, cols := e.cloud, e.points, e.cols
	bw := bufio.NewWriter(w)
	writeHeader(bw, c, cols, e.enc)
	switch e.enc {
	case Binary:
		bw.Write(points)
	case BinaryCompressed:
		raw := fieldMajor(points, cols, int(c.PointStep))
		packed := lzfCompress(raw)
		var sizes [8]byte
		binary.LittleEndian.PutUint32(sizes[0:4], uint32(len(packed)))
		binary.LittleEndian.PutUint32(sizes[4:8], uint32(len(raw)))
		bw.Write(sizes[:])
		bw.Write(packed)
	case ASCII:
		writeASCII(bw, points, cols, int(c.PointStep))
	}
	return bw.Flush()
}

// Write serialises c to w in the given encoding.
func Write(w io.Writer, c *rosmsg.PointCloud2, enc Encoding) error {
	e, err := Encode(c, enc)
	if err != nil {
		return err
	}
	return e.Emit(w)
}

// fieldMajor regroups point-major data so each field's values for all points
// are contiguous, dropping padding.
func fieldMajor(points []byte, cols []column, step int) []byte {
	if step == 0 {
		return nil
	}
	n := len(points) / step
	out := make([]byte, 0, len(points))
	for _, col := range cols {
		if col.padding {
			continue
		}
		cw := col.width()
		for i := 0; i < n; i++ {
			base := i*step + col.offset
			out = append(out, points[base:base+cw]...)
		}
	}
	return out
}

func writeASCII(bw *bufio.Writer, points []byte, cols []column, step int) {
	if step == 0 {
		return
	}
	var line []byte
	for base := 0; base+step <= len(points); base += step {
		line = line[:0]
		for _, col := range cols {
			if col.padding {
				continue
			}
			for k := 0; k < col.count; k++ {
				if len(line) > 0 {
					line = append(line, ' ')
				}
				v := points[base+col.offset+k*col.size:]
				line = appendValue(line, col.datatype, v)
			}
		}
		line = append(line, '\n')
		bw.Write(line)
	}
}

func appendValue(dst []byte, datatype uint8, b []byte) []byte {
	le := binary.LittleEndian
	switch datatype {
	case rosmsg.INT8:
		return strconv.AppendInt(dst, int64(int8(b[0])), 10)
	case rosmsg.UINT8:
		return strconv.AppendUint(dst, uint64(b[0]), 10)
	case rosmsg.INT16:
		return strconv.AppendInt(dst, int64(int16(le.Uint16(b))), 10)
	case rosmsg.UINT16:
		return strconv.AppendUint(dst, uint64(le.Uint16(b)), 10)
	case rosmsg.INT32:
		return strconv.AppendInt(dst, int64(int32(le.Uint32(b))), 10)
	case rosmsg.UINT32:
		return strconv.AppendUint(dst, uint64(le.Uint32(b)), 10)
	case rosmsg.FLOAT32:
		return appendFloat(dst, float64(math.Float32frombits(le.Uint32(b))), 32)
	default:
		return appendFloat(dst, math.Float64frombits(le.Uint64(b)), 64)
	}
}

// appendFloat matches PCL's lowercase spelling of non-finite values.
func appendFloat(dst []byte, v float64, bits int) []byte {
	switch {
	case math.IsNaN(v):
		return append(dst, "nan"...)
	case math.IsInf(v, 1):
		return append(dst, "inf"...)
	case math.IsInf(v, -1):
		return append(dst, "-inf"...)
	}
	return strconv.AppendFloat(dst, v, 'g', -1, bits)
}
