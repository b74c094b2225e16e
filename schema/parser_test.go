package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageFieldsAndConstants(t *testing.T) {
	text := "# a comment\nuint32 seq\ntime stamp\nstring frame_id # trailing comment\n"
	spec, err := ParseMessage("std_msgs/Header", text)
	require.NoError(t, err)
	require.Len(t, spec.Fields, 3)
	assert.Equal(t, "seq", spec.Fields[0].Name)
	assert.Equal(t, Uint32, spec.Fields[0].Kind.Prim)
	assert.Equal(t, "stamp", spec.Fields[1].Name)
	assert.Equal(t, TimeType, spec.Fields[1].Kind.Prim)
	assert.Equal(t, "frame_id", spec.Fields[2].Name)
	assert.Equal(t, String, spec.Fields[2].Kind.Prim)
}

func TestParseMessageConstant(t *testing.T) {
	spec, err := ParseMessage("test_msgs/Flags", "uint8 RED=0\nuint8 GREEN=1\nuint8 value\n")
	require.NoError(t, err)
	require.Len(t, spec.Constants, 2)
	assert.Equal(t, "RED", spec.Constants[0].Name)
	assert.Equal(t, "0", spec.Constants[0].Literal)
	assert.Equal(t, Uint8, spec.Constants[0].Kind)
	require.Len(t, spec.Fields, 1)
	assert.Equal(t, "value", spec.Fields[0].Name)
}

func TestParseMessageStringConstantKeepsTrailingHash(t *testing.T) {
	spec, err := ParseMessage("test_msgs/Banner", "string GREETING=hello # not a comment\n")
	require.NoError(t, err)
	require.Len(t, spec.Constants, 1)
	assert.Equal(t, "hello # not a comment", spec.Constants[0].Literal)
}

func TestParseMessageDuplicateFieldName(t *testing.T) {
	_, err := ParseMessage("test_msgs/Dup", "int32 x\nint32 x\n")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseMessageZeroFixedArrayRejected(t *testing.T) {
	_, err := ParseMessage("test_msgs/Bad", "int32[0] values\n")
	require.Error(t, err)
}

func TestParseMessageNegativeFixedArrayRejected(t *testing.T) {
	_, err := ParseMessage("test_msgs/Bad", "int32[-1] values\n")
	require.Error(t, err)
}

func TestParseMessageNestedArrayRejected(t *testing.T) {
	_, err := ParseMessage("test_msgs/Bad", "int32[][] values\n")
	require.Error(t, err)
}

func TestParseMessageHeaderAliasing(t *testing.T) {
	spec, err := ParseMessage("sensor_msgs/Image", "Header header\n")
	require.NoError(t, err)
	require.Len(t, spec.Fields, 1)
	assert.Equal(t, "std_msgs", spec.Fields[0].Kind.Pkg)
	assert.Equal(t, "Header", spec.Fields[0].Kind.Name)
}

func TestParseMessageBareNameResolvesToEnclosingPackage(t *testing.T) {
	spec, err := ParseMessage("sensor_msgs/CameraInfo", "RegionOfInterest roi\n")
	require.NoError(t, err)
	require.Len(t, spec.Fields, 1)
	assert.Equal(t, "sensor_msgs", spec.Fields[0].Kind.Pkg)
	assert.Equal(t, "RegionOfInterest", spec.Fields[0].Kind.Name)
}

func TestParseMessageDynamicAndFixedArrays(t *testing.T) {
	spec, err := ParseMessage("test_msgs/Arrays", "float64[] D\nfloat64[9] K\n")
	require.NoError(t, err)
	require.Len(t, spec.Fields, 2)
	assert.True(t, spec.Fields[0].Array.Dynamic)
	assert.True(t, spec.Fields[1].Array.Fixed)
	assert.Equal(t, 9, spec.Fields[1].Array.Len)
}

func TestParseServiceSplitsOnDelimiter(t *testing.T) {
	srv, err := ParseService("rospy_tutorials/AddTwoInts", "int64 a\nint64 b\n---\nint64 sum\n")
	require.NoError(t, err)
	assert.Equal(t, "rospy_tutorials/AddTwoIntsRequest", srv.Request.FullName())
	assert.Equal(t, "rospy_tutorials/AddTwoIntsResponse", srv.Response.FullName())
	require.Len(t, srv.Request.Fields, 2)
	require.Len(t, srv.Response.Fields, 1)
}

func TestParseServiceMissingDelimiter(t *testing.T) {
	_, err := ParseService("rospy_tutorials/AddTwoInts", "int64 a\nint64 b\nint64 sum\n")
	require.Error(t, err)
}

func TestParseMessageDeprecatedAliases(t *testing.T) {
	spec, err := ParseMessage("test_msgs/Legacy", "byte b\nchar c\n")
	require.NoError(t, err)
	require.Len(t, spec.Fields, 2)
	assert.Equal(t, Uint8, spec.Fields[0].Kind.Prim)
	assert.Equal(t, Uint8, spec.Fields[1].Kind.Prim)
}
