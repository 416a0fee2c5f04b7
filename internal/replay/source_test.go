package replay

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/banshee-data/bagtopcd/internal/rosmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBag_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.bag")
	_, err := OpenBag(path)

	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, path, oe.Path)
	assert.Contains(t, err.Error(), "error opening file")
}

func TestBagSource_YieldsFilteredRecordsInLogOrder(t *testing.T) {
	path := writeBag(t,
		tfMsg(tfMessage("/map", "/base_link", 1)),
		bagMessage{"/chatter", "std_msgs/String", []byte{0, 0, 0, 0}},
		cloudMsg(xCloud(1, "velodyne", 1, 2)),
		bagMessage{"/tf_static", rosmsg.TypeTF2TFMessage, tfMessage("base_link", "velodyne", 0.5).Encode()},
		cloudMsg(xCloud(2, "velodyne", 3)),
	)
	src, err := OpenBag(path)
	require.NoError(t, err)
	defer src.Close()

	var got []Record
	for {
		r, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, r)
	}
	require.Len(t, got, 4)

	batch, ok := got[0].(*TransformBatch)
	require.True(t, ok, "record 0 is %T", got[0])
	assert.Equal(t, "/tf", batch.Topic)
	require.Len(t, batch.Transforms, 1)
	assert.Equal(t, "/map", batch.Transforms[0].Parent)
	assert.Equal(t, "/base_link", batch.Transforms[0].Child)
	assert.Equal(t, 1.0, batch.Transforms[0].Rotation.Real)

	c1, ok := got[1].(*PointCloud)
	require.True(t, ok, "record 1 is %T", got[1])
	assert.Equal(t, uint32(1), c1.Cloud.Header.Seq)

	static, ok := got[2].(*TransformBatch)
	require.True(t, ok, "record 2 is %T", got[2])
	assert.Equal(t, rosmsg.TypeTF2TFMessage, static.Type)

	c2, ok := got[3].(*PointCloud)
	require.True(t, ok, "record 3 is %T", got[3])
	assert.Equal(t, 1, c2.Cloud.NumPoints())

	for i, r := range got {
		assert.Equal(t, uint64(i), r.Meta().Position)
	}
	assert.True(t, got[0].Meta().Time.Before(got[3].Meta().Time))

	// Exhausted views stay exhausted.
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBagSource_Summary(t *testing.T) {
	path := writeBag(t,
		tfMsg(tfMessage("/map", "/base_link", 1)),
		cloudMsg(xCloud(1, "velodyne", 1)),
		cloudMsg(xCloud(2, "velodyne", 2)),
	)
	src, err := OpenBag(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "2 connections in 1 chunks", src.Summary())
}

func TestBagSource_CustomTypeFilter(t *testing.T) {
	path := writeBag(t,
		tfMsg(tfMessage("map", "base_link", 1)),
		cloudMsg(xCloud(1, "velodyne", 1)),
	)
	src, err := OpenBag(path, rosmsg.TypePointCloud2)
	require.NoError(t, err)
	defer src.Close()

	r, err := src.Next()
	require.NoError(t, err)
	assert.IsType(t, &PointCloud{}, r)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBagSource_UndecodablePayloadIsOther(t *testing.T) {
	path := writeBag(t, bagMessage{"/velodyne_points", rosmsg.TypePointCloud2, []byte{1, 2, 3}})
	src, err := OpenBag(path)
	require.NoError(t, err)
	defer src.Close()

	r, err := src.Next()
	require.NoError(t, err)
	other, ok := r.(*Other)
	require.True(t, ok, "got %T", r)
	assert.Error(t, other.Err)
	assert.Equal(t, rosmsg.TypePointCloud2, other.Type)
}

func TestRecordMeta_String(t *testing.T) {
	m := RecordMeta{Topic: "/tf", Type: rosmsg.TypeTFMessage, Position: 4}
	assert.Equal(t, "#4 /tf [tf/tfMessage]", m.String())
}
