package metadata

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/anima-mesh/engine/math"
)

func appendFloat(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, m.Float32bits(f))
}

func appendMat4(dst []byte, mat math.Mat4) []byte {
	for _, f := range mat.Data {
		dst = appendFloat(dst, f)
	}
	return dst
}

// Bytes packs the camera block in std140 order.
func (c *CameraBuffer) Bytes() []byte {
	out := make([]byte, 0, CameraBufferSize)
	for _, mats := range [][MaxCameras]math.Mat4{c.Projection, c.View, c.ProjectionView} {
		for _, mat := range mats {
			out = appendMat4(out, mat)
		}
	}
	return out
}

// PackObjects packs the object entries in std430 order.
func PackObjects(objects []ObjectBufferObject) []byte {
	out := make([]byte, 0, len(objects)*ObjectBufferObjectSize)
	for i := range objects {
		out = appendMat4(out, objects[i].Model)
		md := objects[i].Metadata
		out = appendFloat(out, md.X)
		out = appendFloat(out, md.Y)
		out = appendFloat(out, md.Z)
		out = appendFloat(out, md.W)
	}
	return out
}

// PackVertices packs vertices as position, normal, texcoord.
func PackVertices(vertices []math.Vertex3D) []byte {
	out := make([]byte, 0, len(vertices)*math.Vertex3DSize)
	for _, v := range vertices {
		out = appendFloat(out, v.Position.X)
		out = appendFloat(out, v.Position.Y)
		out = appendFloat(out, v.Position.Z)
		out = appendFloat(out, v.Normal.X)
		out = appendFloat(out, v.Normal.Y)
		out = appendFloat(out, v.Normal.Z)
		out = appendFloat(out, v.Texcoord.X)
		out = appendFloat(out, v.Texcoord.Y)
	}
	return out
}

func PackIndices(indices []uint32) []byte {
	out := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}
