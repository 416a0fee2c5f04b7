// Command gen-bag generates sample .bag recordings for testing bag-to-pcd.
//
// Each frame is a tf/tfMessage moving base_link along x followed by a
// velodyne-style sensor_msgs/PointCloud2 ring scan.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"math"
	"os"
	"time"

	"github.com/banshee-data/bagtopcd/internal/rosbag"
	"github.com/banshee-data/bagtopcd/internal/rosmsg"
)

const (
	pointStep = 32
	rings     = 16
	azimuths  = 90
)

func main() {
	output := flag.String("o", "sample.bag", "output path")
	frames := flag.Int("n", 100, "number of frames")
	compression := flag.String("compression", rosbag.CompressionLZ4, "chunk compression: none or lz4")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *output, err)
	}
	defer f.Close()

	w, err := rosbag.NewWriter(f, rosbag.WriterOptions{Compression: *compression})
	if err != nil {
		log.Fatalf("Failed to start bag: %v", err)
	}

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < *frames; i++ {
		t := start.Add(time.Duration(i) * 100 * time.Millisecond)
		if err := w.WriteMessage("/tf", rosmsg.TypeTFMessage, t, transformFrame(t, i).Encode()); err != nil {
			log.Fatalf("Failed to write tf: %v", err)
		}
		if err := w.WriteMessage("/velodyne_points", rosmsg.TypePointCloud2, t.Add(time.Millisecond), scanFrame(t, uint32(i)).Encode()); err != nil {
			log.Fatalf("Failed to write cloud: %v", err)
		}
		if (i+1)%10 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Failed to finish bag: %v", err)
	}
	log.Printf("✓ Created: %s", *output)
}

func transformFrame(t time.Time, i int) *rosmsg.TFMessage {
	yaw := 0.01 * float64(i)
	return &rosmsg.TFMessage{Transforms: []rosmsg.TransformStamped{
		{
			Header:       rosmsg.Header{Seq: uint32(i), Stamp: t, FrameID: "map"},
			ChildFrameID: "base_link",
			Translation:  rosmsg.Vector3{X: 0.5 * float64(i)},
			Rotation:     rosmsg.Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)},
		},
		{
			Header:       rosmsg.Header{Seq: uint32(i), Stamp: t, FrameID: "base_link"},
			ChildFrameID: "velodyne",
			Translation:  rosmsg.Vector3{Z: 1.8},
			Rotation:     rosmsg.Quaternion{W: 1},
		},
	}}
}

// scanFrame lays points out like the velodyne driver: x y z, 4 bytes of
// padding, intensity, ring, then padding to 32 bytes.
func scanFrame(t time.Time, seq uint32) *rosmsg.PointCloud2 {
	n := rings * azimuths
	data := make([]byte, n*pointStep)
	le := binary.LittleEndian
	for r := 0; r < rings; r++ {
		elev := (-15 + 2*float64(r)) * math.Pi / 180
		for a := 0; a < azimuths; a++ {
			az := float64(a) * 2 * math.Pi / azimuths
			dist := 10 + 2*math.Sin(az*3+float64(seq)*0.1)
			base := (r*azimuths + a) * pointStep
			le.PutUint32(data[base:], math.Float32bits(float32(dist*math.Cos(elev)*math.Cos(az))))
			le.PutUint32(data[base+4:], math.Float32bits(float32(dist*math.Cos(elev)*math.Sin(az))))
			le.PutUint32(data[base+8:], math.Float32bits(float32(dist*math.Sin(elev))))
			le.PutUint32(data[base+16:], math.Float32bits(float32(a%100)))
			le.PutUint16(data[base+20:], uint16(r))
		}
	}
	return &rosmsg.PointCloud2{
		Header: rosmsg.Header{Seq: seq, Stamp: t, FrameID: "velodyne"},
		Height: 1,
		Width:  uint32(n),
		Fields: []rosmsg.PointField{
			{Name: "x", Offset: 0, Datatype: rosmsg.FLOAT32, Count: 1},
			{Name: "y", Offset: 4, Datatype: rosmsg.FLOAT32, Count: 1},
			{Name: "z", Offset: 8, Datatype: rosmsg.FLOAT32, Count: 1},
			{Name: "intensity", Offset: 16, Datatype: rosmsg.FLOAT32, Count: 1},
			{Name: "ring", Offset: 20, Datatype: rosmsg.UINT16, Count: 1},
		},
		PointStep: pointStep,
		RowStep:   uint32(n * pointStep),
		Data:      data,
		IsDense:   true,
	}
}
