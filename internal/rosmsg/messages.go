package rosmsg

import (
	"strings"
	"time"
)

// Message type names as they appear in bag connection headers.
const (
	TypePointCloud2   = "sensor_msgs/PointCloud2"
	TypeTFMessage     = "tf/tfMessage"
	TypeTF2TFMessage  = "tf2_msgs/TFMessage"
	MD5PointCloud2    = "1158d486dd51d683ce2f1be655c3c181"
	MD5TFMessage      = "94810edda583a504dfda3829e70d7eec"
	MD5TF2TFMessage   = MD5TFMessage
	definitionTFShort = "geometry_msgs/TransformStamped[] transforms\n"
)

// PointField datatypes from sensor_msgs/PointField.
const (
	INT8    uint8 = 1
	UINT8   uint8 = 2
	INT16   uint8 = 3
	UINT16  uint8 = 4
	INT32   uint8 = 5
	UINT32  uint8 = 6
	FLOAT32 uint8 = 7
	FLOAT64 uint8 = 8
)

// IsTransformType reports whether typ is one of the tf message variants.
func IsTransformType(typ string) bool {
	return typ == TypeTFMessage || typ == TypeTF2TFMessage
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32
	Stamp   time.Time
	FrameID string
}

func (h *Header) decode(d *decoder) {
	h.Seq = d.uint32()
	h.Stamp = d.time()
	h.FrameID = d.string()
}

func (h Header) encode(e *encoder) {
	e.uint32(h.Seq)
	e.time(h.Stamp)
	e.string(h.FrameID)
}

// PointField describes one named channel of a point.
type PointField struct {
	Name     string
	Offset   uint32
	Datatype uint8
	Count    uint32
}

// Size returns the byte width of a single element of the field's datatype,
// or 0 for an unknown datatype.
func (f PointField) Size() int {
	switch f.Datatype {
	case INT8, UINT8:
		return 1
	case INT16, UINT16:
		return 2
	case INT32, UINT32, FLOAT32:
		return 4
	case FLOAT64:
		return 8
	default:
		return 0
	}
}

// PointCloud2 is sensor_msgs/PointCloud2.
type PointCloud2 struct {
	Header      Header
	Height      uint32
	Width       uint32
	Fields      []PointField
	IsBigEndian bool
	PointStep   uint32
	RowStep     uint32
	Data        []byte
	IsDense     bool
}

// NumPoints is width*height.
func (c *PointCloud2) NumPoints() int {
	return int(c.Width) * int(c.Height)
}

// FieldsList returns the field names joined by spaces.
func (c *PointCloud2) FieldsList() string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, " ")
}

// DecodePointCloud2 parses a serialised sensor_msgs/PointCloud2.
func DecodePointCloud2(data []byte) (*PointCloud2, error) {
	d := &decoder{buf: data}
	c := &PointCloud2{}
	c.Header.decode(d)
	c.Height = d.uint32()
	c.Width = d.uint32()
	n := d.uint32()
	// Each field takes at least 13 bytes; cap the allocation on corrupt counts.
	if d.err == nil && int(n) <= (len(data)-d.off)/13 {
		c.Fields = make([]PointField, 0, n)
	}
	for i := uint32(0); i < n && d.err == nil; i++ {
		c.Fields = append(c.Fields, PointField{
			Name:     d.string(),
			Offset:   d.uint32(),
			Datatype: d.uint8(),
			Count:    d.uint32(),
		})
	}
	c.IsBigEndian = d.bool()
	c.PointStep = d.uint32()
	c.RowStep = d.uint32()
	c.Data = d.bytes()
	c.IsDense = d.bool()
	if err := d.finish(TypePointCloud2); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode serialises the cloud.
func (c *PointCloud2) Encode() []byte {
	e := &encoder{buf: make([]byte, 0, 64+len(c.Data))}
	c.Header.encode(e)
	e.uint32(c.Height)
	e.uint32(c.Width)
	e.uint32(uint32(len(c.Fields)))
	for _, f := range c.Fields {
		e.string(f.Name)
		e.uint32(f.Offset)
		e.uint8(f.Datatype)
		e.uint32(f.Count)
	}
	e.bool(c.IsBigEndian)
	e.uint32(c.PointStep)
	e.uint32(c.RowStep)
	e.bytes(c.Data)
	e.bool(c.IsDense)
	return e.buf
}

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X, Y, Z float64
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X, Y, Z, W float64
}

// TransformStamped is geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header
	ChildFrameID string
	Translation  Vector3
	Rotation     Quaternion
}

// TFMessage is the shared layout of tf/tfMessage and tf2_msgs/TFMessage.
type TFMessage struct {
	Transforms []TransformStamped
}

// DecodeTFMessage parses either tf message variant.
func DecodeTFMessage(data []byte) (*TFMessage, error) {
	d := &decoder{buf: data}
	n := d.uint32()
	m := &TFMessage{}
	for i := uint32(0); i < n && d.err == nil; i++ {
		var t TransformStamped
		t.Header.decode(d)
		t.ChildFrameID = d.string()
		t.Translation = Vector3{X: d.float64(), Y: d.float64(), Z: d.float64()}
		t.Rotation = Quaternion{X: d.float64(), Y: d.float64(), Z: d.float64(), W: d.float64()}
		m.Transforms = append(m.Transforms, t)
	}
	if err := d.finish(TypeTFMessage); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serialises the message.
func (m *TFMessage) Encode() []byte {
	e := &encoder{}
	e.uint32(uint32(len(m.Transforms)))
	for _, t := range m.Transforms {
		t.Header.encode(e)
		e.string(t.ChildFrameID)
		e.float64(t.Translation.X)
		e.float64(t.Translation.Y)
		e.float64(t.Translation.Z)
		e.float64(t.Rotation.X)
		e.float64(t.Rotation.Y)
		e.float64(t.Rotation.Z)
		e.float64(t.Rotation.W)
	}
	return e.buf
}

// Definition returns an abbreviated message definition for connection
// headers written by this package.
func Definition(typ string) string {
	switch typ {
	case TypePointCloud2:
		return "std_msgs/Header header\nuint32 height\nuint32 width\nsensor_msgs/PointField[] fields\n" +
			"bool is_bigendian\nuint32 point_step\nuint32 row_step\nuint8[] data\nbool is_dense\n"
	case TypeTFMessage, TypeTF2TFMessage:
		return definitionTFShort
	default:
		return ""
	}
}

// MD5Sum returns the md5sum recorded for a known type.
func MD5Sum(typ string) string {
	switch typ {
	case TypePointCloud2:
		return MD5PointCloud2
	case TypeTFMessage:
		return MD5TFMessage
	case TypeTF2TFMessage:
		return MD5TF2TFMessage
	default:
		return "*"
	}
}
