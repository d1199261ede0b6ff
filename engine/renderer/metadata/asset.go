package metadata

import "github.com/spaghettifunk/anima-mesh/engine/math"

// AssetID identifies a registered asset. Zero means invalid or not found.
type AssetID uint64

const InvalidAssetID AssetID = 0

/** @brief The lifecycle stage of an asset record. */
type AssetState uint8

const (
	AssetUnregistered AssetState = iota
	/** @brief Metadata only, no GPU resource exists. */
	AssetRegistered
	/** @brief The GPU resource has been built. */
	AssetMaterialized
)

func (s AssetState) String() string {
	switch s {
	case AssetRegistered:
		return "registered"
	case AssetMaterialized:
		return "materialized"
	}
	return "unregistered"
}

type AssetKind uint8

const (
	AssetKindShader AssetKind = iota
	AssetKindPipeline
	AssetKindTexture
	AssetKindSampler
	AssetKindStaticMesh
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindShader:
		return "shader"
	case AssetKindPipeline:
		return "pipeline"
	case AssetKindTexture:
		return "texture"
	case AssetKindSampler:
		return "sampler"
	case AssetKindStaticMesh:
		return "static mesh"
	}
	return "unknown"
}

// AssetRecord is the part every asset kind shares.
type AssetRecord struct {
	ID       AssetID
	Name     string
	DeclPath string
	State    AssetState
}

func (r *AssetRecord) Materialized() bool {
	return r != nil && r.State == AssetMaterialized
}

/** @brief A vertex and fragment program pair. */
type GraphicsShader struct {
	AssetRecord
	Handle Shader
}

type GraphicsPipeline struct {
	AssetRecord
	/** @brief The shader this pipeline is built from. */
	ShaderID AssetID
	Handle   Pipeline
	/** @brief The layout and render pass used to build Handle, kept for remakes. */
	Layout     PipelineLayout
	RenderPass RenderPass
}

type Texture struct {
	AssetRecord
	Width  uint32
	Height uint32
	Image  Image
	View   ImageView
}

type Sampler2D struct {
	AssetRecord
	Handle Sampler
}

/** @brief One sub-part of a mesh declaration. */
type MeshData struct {
	Vertices []math.Vertex3D
	Indices  []uint32
}

/**
 * @brief A mesh asset. One declaration can hold several sub-parts, each of
 * which gets its own arena index once materialized.
 */
type StaticMesh struct {
	AssetRecord
	Meshes       []MeshData
	ArenaIndexes []uint32
}
