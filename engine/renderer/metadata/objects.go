package metadata

import "github.com/spaghettifunk/anima-mesh/engine/math"

// MaxCameras is the number of cameras addressable from the object metadata.
const MaxCameras = 4

/** @brief The camera uniform block, one matrix triple per camera. */
type CameraBuffer struct {
	Projection     [MaxCameras]math.Mat4
	View           [MaxCameras]math.Mat4
	ProjectionView [MaxCameras]math.Mat4
}

// CameraBufferSize is the byte size of a CameraBuffer on the GPU.
const CameraBufferSize = 3 * MaxCameras * 16 * 4

/**
 * @brief One entry of the object storage buffer. Metadata holds the camera
 * index in X, the texture slot in Y and the mesh arena index in Z.
 */
type ObjectBufferObject struct {
	Model    math.Mat4
	Metadata math.Vec4
}

// ObjectBufferObjectSize is the byte size of an ObjectBufferObject on the GPU.
const ObjectBufferObjectSize = (16 + 4) * 4

/** @brief One application object queued for drawing this frame. */
type ObjectBatchObject struct {
	PipelineID   AssetID
	ArenaIndexes []uint32
	Object       ObjectBufferObject
}

/** @brief A draw of one mesh arena range for one object buffer entry. */
type RenderCommand struct {
	MeshIndex uint32
	ObjIndex  uint32
}

/** @brief Draws that share a pipeline. */
type RenderBatch struct {
	PipelineID AssetID
	Objects    []ObjectBatchObject
	Commands   []RenderCommand
}
