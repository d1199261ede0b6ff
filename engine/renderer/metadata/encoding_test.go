package metadata

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackObjectsLayout(t *testing.T) {
	objs := []ObjectBufferObject{
		{Model: math.NewMat4Identity(), Metadata: math.NewVec4(0, 3, 7, 0)},
		{Model: math.NewMat4Translation(math.NewVec3(1, 2, 3)), Metadata: math.NewVec4(1, 0, 2, 0)},
	}
	data := PackObjects(objs)
	require.Len(t, data, 2*ObjectBufferObjectSize)

	f := func(i int) float32 {
		return m.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	assert.Equal(t, float32(1), f(0))
	assert.Equal(t, float32(3), f(17))
	assert.Equal(t, float32(7), f(18))
	assert.Equal(t, float32(1), f(20+12))
	assert.Equal(t, float32(3), f(20+14))
}

func TestCameraBufferSize(t *testing.T) {
	cam := CameraBuffer{}
	assert.Len(t, cam.Bytes(), CameraBufferSize)
}

func TestPackVertices(t *testing.T) {
	data := PackVertices(make([]math.Vertex3D, 3))
	assert.Len(t, data, 3*math.Vertex3DSize)
	assert.Len(t, PackIndices([]uint32{1, 2, 3}), 12)
}
