package assets

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// GPU is the part of the backend the store builds resources with.
type GPU interface {
	metadata.Device
	metadata.Allocator
	metadata.Builder
	metadata.Recorder
}

type StoreConfig struct {
	// MaxTextures is the length of the bindless texture array.
	MaxTextures uint32
}

/**
 * @brief Owns every asset record and every GPU resource built for them.
 * Registration only records metadata; the Create* functions build the GPU
 * resource on first use and return the same record afterwards.
 */
type Store struct {
	gpu    GPU
	loader DeclLoader

	registry *core.Registry[metadata.AssetID]
	kinds    map[metadata.AssetID]metadata.AssetKind

	shaders   *table[metadata.GraphicsShader]
	pipelines *table[metadata.GraphicsPipeline]
	textures  *table[metadata.Texture]
	samplers  *table[metadata.Sampler2D]
	meshes    *table[metadata.StaticMesh]

	arena        *MeshArena
	textureArray *TextureArray

	destroyed bool
}

func NewStore(config StoreConfig, gpu GPU, loader DeclLoader) *Store {
	return &Store{
		gpu:          gpu,
		loader:       loader,
		registry:     core.NewRegistry[metadata.AssetID](),
		kinds:        make(map[metadata.AssetID]metadata.AssetKind),
		shaders:      newTable[metadata.GraphicsShader](),
		pipelines:    newTable[metadata.GraphicsPipeline](),
		textures:     newTable[metadata.Texture](),
		samplers:     newTable[metadata.Sampler2D](),
		meshes:       newTable[metadata.StaticMesh](),
		arena:        NewMeshArena(gpu, gpu, gpu),
		textureArray: NewTextureArray(config.MaxTextures),
	}
}

func (s *Store) Arena() *MeshArena {
	return s.arena
}

func (s *Store) Textures() *TextureArray {
	return s.textureArray
}

// IDByName returns the identifier registered for name, or InvalidAssetID.
func (s *Store) IDByName(name string, silence bool) metadata.AssetID {
	if s.destroyed {
		return metadata.InvalidAssetID
	}
	return s.registry.Lookup(name, silence)
}

// NameByID returns the name registered for id.
func (s *Store) NameByID(id metadata.AssetID) (string, bool) {
	return s.registry.Reverse(id)
}

// register returns the identifier for name and whether it already existed.
// Names are unique across kinds.
func (s *Store) register(name string, kind metadata.AssetKind) (metadata.AssetID, bool, error) {
	if s.destroyed {
		core.LogError("cannot register %s '%s': %s", kind, name, core.ErrStoreDestroyed)
		return metadata.InvalidAssetID, false, core.ErrStoreDestroyed
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s", kind, uuid.NewString())
	}
	if s.registry.IsID(name) {
		id := s.registry.Lookup(name, true)
		if existing := s.kinds[id]; existing != kind {
			err := fmt.Errorf("name '%s' is already registered as a %s", name, existing)
			core.LogError(err.Error())
			return metadata.InvalidAssetID, true, err
		}
		return id, true, nil
	}
	id := s.registry.Register(name)
	s.kinds[id] = kind
	return id, false, nil
}

func lookup[T any](s *Store, t *table[T], kind metadata.AssetKind, id metadata.AssetID, silence bool) *T {
	if s.destroyed {
		if !silence {
			core.LogError("%s lookup for id %d: %s", kind, id, core.ErrStoreDestroyed)
		}
		return nil
	}
	record, ok := t.get(id)
	if !ok && !silence {
		core.LogError("no %s registered with id %d", kind, id)
	}
	return record
}

func (s *Store) loadFailure(kind metadata.AssetKind, name string, err error) error {
	err = fmt.Errorf("failed to create %s '%s': %w: %w", kind, name, core.ErrLoadFailure, err)
	core.LogError(err.Error())
	return err
}

func notFound(kind metadata.AssetKind, id metadata.AssetID) error {
	return fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
}

// createID resolves name for a Create*ByName call. Lookup logs the miss.
func (s *Store) createID(kind metadata.AssetKind, name string) (metadata.AssetID, error) {
	id := s.IDByName(name, false)
	if id == metadata.InvalidAssetID {
		return id, fmt.Errorf("%s '%s': %w", kind, name, core.ErrNotFound)
	}
	return id, nil
}

// Shaders

func (s *Store) RegisterGraphicsShader(name, declPath string) *metadata.GraphicsShader {
	id, existed, err := s.register(name, metadata.AssetKindShader)
	if err != nil {
		return nil
	}
	if existed {
		return lookup(s, s.shaders, metadata.AssetKindShader, id, true)
	}
	name, _ = s.registry.Reverse(id)
	shader := &metadata.GraphicsShader{
		AssetRecord: metadata.AssetRecord{ID: id, Name: name, DeclPath: filepath.Clean(declPath), State: metadata.AssetRegistered},
	}
	s.shaders.add(id, shader)
	return shader
}

func (s *Store) GetGraphicsShader(id metadata.AssetID, silence bool) *metadata.GraphicsShader {
	return lookup(s, s.shaders, metadata.AssetKindShader, id, silence)
}

func (s *Store) GetGraphicsShaderByName(name string, silence bool) *metadata.GraphicsShader {
	return s.GetGraphicsShader(s.IDByName(name, silence), silence)
}

func (s *Store) CreateGraphicsShaderByName(name string) (*metadata.GraphicsShader, error) {
	id, err := s.createID(metadata.AssetKindShader, name)
	if err != nil {
		return nil, err
	}
	return s.CreateGraphicsShader(id)
}

func (s *Store) CreateGraphicsShader(id metadata.AssetID) (*metadata.GraphicsShader, error) {
	shader := s.GetGraphicsShader(id, false)
	if shader == nil {
		return nil, notFound(metadata.AssetKindShader, id)
	}
	if shader.Materialized() {
		return shader, nil
	}
	decl, err := s.loader.LoadShader(shader.DeclPath)
	if err != nil {
		return shader, s.loadFailure(metadata.AssetKindShader, shader.Name, err)
	}
	handle, err := s.gpu.CreateShader(shader.Name, decl.VertexCode, decl.FragmentCode)
	if err != nil {
		return shader, s.loadFailure(metadata.AssetKindShader, shader.Name, err)
	}
	shader.Handle = handle
	shader.State = metadata.AssetMaterialized
	core.LogDebug("shader '%s' created", shader.Name)
	return shader, nil
}

// Pipelines

// RegisterGraphicsPipeline records a pipeline built from shaderID. An empty
// declPath selects the default pipeline state.
func (s *Store) RegisterGraphicsPipeline(name, declPath string, shaderID metadata.AssetID) *metadata.GraphicsPipeline {
	id, existed, err := s.register(name, metadata.AssetKindPipeline)
	if err != nil {
		return nil
	}
	if existed {
		return lookup(s, s.pipelines, metadata.AssetKindPipeline, id, true)
	}
	if declPath != "" {
		declPath = filepath.Clean(declPath)
	}
	name, _ = s.registry.Reverse(id)
	pipeline := &metadata.GraphicsPipeline{
		AssetRecord: metadata.AssetRecord{ID: id, Name: name, DeclPath: declPath, State: metadata.AssetRegistered},
		ShaderID:    shaderID,
	}
	s.pipelines.add(id, pipeline)
	return pipeline
}

func (s *Store) GetGraphicsPipeline(id metadata.AssetID, silence bool) *metadata.GraphicsPipeline {
	return lookup(s, s.pipelines, metadata.AssetKindPipeline, id, silence)
}

func (s *Store) GetGraphicsPipelineByName(name string, silence bool) *metadata.GraphicsPipeline {
	return s.GetGraphicsPipeline(s.IDByName(name, silence), silence)
}

func (s *Store) CreateGraphicsPipelineByName(name string, layout metadata.PipelineLayout, pass metadata.RenderPass) (*metadata.GraphicsPipeline, error) {
	id, err := s.createID(metadata.AssetKindPipeline, name)
	if err != nil {
		return nil, err
	}
	return s.CreateGraphicsPipeline(id, layout, pass)
}

// CreateGraphicsPipeline builds the pipeline, creating its shader first.
func (s *Store) CreateGraphicsPipeline(id metadata.AssetID, layout metadata.PipelineLayout, pass metadata.RenderPass) (*metadata.GraphicsPipeline, error) {
	pipeline := s.GetGraphicsPipeline(id, false)
	if pipeline == nil {
		return nil, notFound(metadata.AssetKindPipeline, id)
	}
	if pipeline.Materialized() {
		return pipeline, nil
	}
	if err := s.buildPipeline(pipeline, layout, pass); err != nil {
		return pipeline, s.loadFailure(metadata.AssetKindPipeline, pipeline.Name, err)
	}
	core.LogDebug("pipeline '%s' created", pipeline.Name)
	return pipeline, nil
}

func (s *Store) buildPipeline(pipeline *metadata.GraphicsPipeline, layout metadata.PipelineLayout, pass metadata.RenderPass) error {
	shader, err := s.CreateGraphicsShader(pipeline.ShaderID)
	if err != nil {
		return err
	}
	decl := metadata.DefaultPipelineDecl(pipeline.Name)
	if pipeline.DeclPath != "" {
		if decl, err = s.loader.LoadPipeline(pipeline.DeclPath); err != nil {
			return err
		}
	}
	handle, err := s.gpu.CreatePipeline(metadata.PipelineConfig{
		Name:       pipeline.Name,
		Shader:     shader.Handle,
		Layout:     layout,
		RenderPass: pass,
		CullMode:   decl.CullMode,
		Wireframe:  decl.Wireframe,
		DepthTest:  decl.DepthTest,
		DepthWrite: decl.DepthWrite,
	})
	if err != nil {
		return err
	}
	pipeline.Handle = handle
	pipeline.Layout = layout
	pipeline.RenderPass = pass
	pipeline.State = metadata.AssetMaterialized
	return nil
}

// RemakeGraphicsPipelines rebuilds every materialized pipeline against a new
// render pass, after the swapchain was recreated.
func (s *Store) RemakeGraphicsPipelines(pass metadata.RenderPass) error {
	if s.destroyed {
		return core.ErrStoreDestroyed
	}
	var targets []*metadata.GraphicsPipeline
	s.pipelines.each(func(p *metadata.GraphicsPipeline) {
		if p.Materialized() {
			targets = append(targets, p)
		}
	})
	if len(targets) == 0 {
		return nil
	}
	if err := s.gpu.WaitIdle(); err != nil {
		core.LogError("remake pipelines: wait idle failed: %s", err)
		return err
	}

	var errs []error
	for _, p := range targets {
		s.gpu.DestroyPipeline(p.Handle)
		p.Handle = 0
		p.State = metadata.AssetRegistered
		if err := s.buildPipeline(p, p.Layout, pass); err != nil {
			errs = append(errs, s.loadFailure(metadata.AssetKindPipeline, p.Name, err))
		}
	}
	core.LogInfo("remade %d graphics pipelines", len(targets))
	return errors.Join(errs...)
}

// Textures

func (s *Store) RegisterTexture(name, declPath string) *metadata.Texture {
	id, existed, err := s.register(name, metadata.AssetKindTexture)
	if err != nil {
		return nil
	}
	if existed {
		return lookup(s, s.textures, metadata.AssetKindTexture, id, true)
	}
	name, _ = s.registry.Reverse(id)
	texture := &metadata.Texture{
		AssetRecord: metadata.AssetRecord{ID: id, Name: name, DeclPath: filepath.Clean(declPath), State: metadata.AssetRegistered},
	}
	s.textures.add(id, texture)
	return texture
}

func (s *Store) GetTexture(id metadata.AssetID, silence bool) *metadata.Texture {
	return lookup(s, s.textures, metadata.AssetKindTexture, id, silence)
}

func (s *Store) GetTextureByName(name string, silence bool) *metadata.Texture {
	return s.GetTexture(s.IDByName(name, silence), silence)
}

func (s *Store) CreateTextureByName(name string) (*metadata.Texture, error) {
	id, err := s.createID(metadata.AssetKindTexture, name)
	if err != nil {
		return nil, err
	}
	return s.CreateTexture(id)
}

func (s *Store) CreateTexture(id metadata.AssetID) (*metadata.Texture, error) {
	texture := s.GetTexture(id, false)
	if texture == nil {
		return nil, notFound(metadata.AssetKindTexture, id)
	}
	if texture.Materialized() {
		return texture, nil
	}
	decl, err := s.loader.LoadTexture(texture.DeclPath)
	if err != nil {
		return texture, s.loadFailure(metadata.AssetKindTexture, texture.Name, err)
	}
	image, view, err := s.gpu.CreateTexture(texture.Name, decl.Width, decl.Height, decl.Pixels)
	if err != nil {
		return texture, s.loadFailure(metadata.AssetKindTexture, texture.Name, err)
	}
	texture.Image = image
	texture.View = view
	texture.Width = decl.Width
	texture.Height = decl.Height
	texture.State = metadata.AssetMaterialized
	core.LogDebug("texture '%s' created (%dx%d)", texture.Name, decl.Width, decl.Height)
	return texture, nil
}

// Samplers

func (s *Store) RegisterSampler(name, declPath string) *metadata.Sampler2D {
	id, existed, err := s.register(name, metadata.AssetKindSampler)
	if err != nil {
		return nil
	}
	if existed {
		return lookup(s, s.samplers, metadata.AssetKindSampler, id, true)
	}
	name, _ = s.registry.Reverse(id)
	sampler := &metadata.Sampler2D{
		AssetRecord: metadata.AssetRecord{ID: id, Name: name, DeclPath: filepath.Clean(declPath), State: metadata.AssetRegistered},
	}
	s.samplers.add(id, sampler)
	return sampler
}

func (s *Store) GetSampler(id metadata.AssetID, silence bool) *metadata.Sampler2D {
	return lookup(s, s.samplers, metadata.AssetKindSampler, id, silence)
}

func (s *Store) GetSamplerByName(name string, silence bool) *metadata.Sampler2D {
	return s.GetSampler(s.IDByName(name, silence), silence)
}

func (s *Store) CreateSamplerByName(name string) (*metadata.Sampler2D, error) {
	id, err := s.createID(metadata.AssetKindSampler, name)
	if err != nil {
		return nil, err
	}
	return s.CreateSampler(id)
}

func (s *Store) CreateSampler(id metadata.AssetID) (*metadata.Sampler2D, error) {
	sampler := s.GetSampler(id, false)
	if sampler == nil {
		return nil, notFound(metadata.AssetKindSampler, id)
	}
	if sampler.Materialized() {
		return sampler, nil
	}
	decl, err := s.loader.LoadSampler(sampler.DeclPath)
	if err != nil {
		return sampler, s.loadFailure(metadata.AssetKindSampler, sampler.Name, err)
	}
	handle, err := s.gpu.CreateSampler(metadata.SamplerConfig{
		Name:        sampler.Name,
		MinFilter:   decl.MinFilter,
		MagFilter:   decl.MagFilter,
		AddressMode: decl.AddressMode,
		Anisotropy:  decl.Anisotropy,
	})
	if err != nil {
		return sampler, s.loadFailure(metadata.AssetKindSampler, sampler.Name, err)
	}
	sampler.Handle = handle
	sampler.State = metadata.AssetMaterialized
	return sampler, nil
}

// Static meshes

func (s *Store) RegisterStaticMesh(name, declPath string) *metadata.StaticMesh {
	id, existed, err := s.register(name, metadata.AssetKindStaticMesh)
	if err != nil {
		return nil
	}
	if existed {
		return lookup(s, s.meshes, metadata.AssetKindStaticMesh, id, true)
	}
	name, _ = s.registry.Reverse(id)
	mesh := &metadata.StaticMesh{
		AssetRecord: metadata.AssetRecord{ID: id, Name: name, DeclPath: filepath.Clean(declPath), State: metadata.AssetRegistered},
	}
	s.meshes.add(id, mesh)
	return mesh
}

func (s *Store) GetStaticMesh(id metadata.AssetID, silence bool) *metadata.StaticMesh {
	return lookup(s, s.meshes, metadata.AssetKindStaticMesh, id, silence)
}

func (s *Store) GetStaticMeshByName(name string, silence bool) *metadata.StaticMesh {
	return s.GetStaticMesh(s.IDByName(name, silence), silence)
}

// CreateStaticMeshByName materializes the mesh registered under name.
func (s *Store) CreateStaticMeshByName(name string) (*metadata.StaticMesh, error) {
	id, err := s.createID(metadata.AssetKindStaticMesh, name)
	if err != nil {
		return nil, err
	}
	return s.CreateStaticMesh(id)
}

// CreateStaticMesh loads every sub-part of the mesh into the arena. The GPU
// upload itself happens in MeshArena.BuildGPUBuffer.
func (s *Store) CreateStaticMesh(id metadata.AssetID) (*metadata.StaticMesh, error) {
	mesh := s.GetStaticMesh(id, false)
	if mesh == nil {
		return nil, notFound(metadata.AssetKindStaticMesh, id)
	}
	if mesh.Materialized() {
		return mesh, nil
	}
	decl, err := s.loader.LoadMesh(mesh.DeclPath)
	if err != nil {
		return mesh, s.loadFailure(metadata.AssetKindStaticMesh, mesh.Name, err)
	}
	if len(decl.Meshes) == 0 {
		return mesh, s.loadFailure(metadata.AssetKindStaticMesh, mesh.Name, errors.New("declaration holds no meshes"))
	}
	mesh.Meshes = decl.Meshes
	mesh.ArenaIndexes = make([]uint32, 0, len(decl.Meshes))
	for _, part := range decl.Meshes {
		mesh.ArenaIndexes = append(mesh.ArenaIndexes, s.arena.AddMesh(part))
	}
	mesh.State = metadata.AssetMaterialized
	core.LogDebug("static mesh '%s' created with %d sub-meshes", mesh.Name, len(mesh.ArenaIndexes))
	return mesh, nil
}

// Reload returns the shaders and pipelines declared by declPath to the
// registered state so the next Create builds them from the new declaration.
// Pipelines built from a reloaded shader are reverted as well. It returns the
// number of reverted records.
func (s *Store) Reload(declPath string) int {
	if s.destroyed {
		return 0
	}
	declPath = filepath.Clean(declPath)

	shaders := map[metadata.AssetID]*metadata.GraphicsShader{}
	s.shaders.each(func(sh *metadata.GraphicsShader) {
		if sh.DeclPath == declPath && sh.Materialized() {
			shaders[sh.ID] = sh
		}
	})
	var pipelines []*metadata.GraphicsPipeline
	s.pipelines.each(func(p *metadata.GraphicsPipeline) {
		if !p.Materialized() {
			return
		}
		if _, ok := shaders[p.ShaderID]; ok || p.DeclPath == declPath {
			pipelines = append(pipelines, p)
		}
	})
	if len(shaders) == 0 && len(pipelines) == 0 {
		return 0
	}

	if err := s.gpu.WaitIdle(); err != nil {
		core.LogError("reload of '%s': wait idle failed: %s", declPath, err)
		return 0
	}
	for _, p := range pipelines {
		s.gpu.DestroyPipeline(p.Handle)
		p.Handle = 0
		p.State = metadata.AssetRegistered
	}
	for _, sh := range shaders {
		s.gpu.DestroyShader(sh.Handle)
		sh.Handle = 0
		sh.State = metadata.AssetRegistered
	}
	core.LogInfo("reloading '%s': %d shaders, %d pipelines", declPath, len(shaders), len(pipelines))
	return len(shaders) + len(pipelines)
}

// Preload materializes every registered shader, texture, sampler and mesh and
// uploads the mesh arena. Pipelines are built on first draw since they need a
// pipeline layout. progress, if set, is called after each asset.
func (s *Store) Preload(progress func(done, total int)) error {
	if s.destroyed {
		return core.ErrStoreDestroyed
	}
	total := s.shaders.len() + s.textures.len() + s.samplers.len() + s.meshes.len()
	done := 0
	var errs []error
	step := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
		done++
		if progress != nil {
			progress(done, total)
		}
	}
	s.shaders.each(func(r *metadata.GraphicsShader) { _, err := s.CreateGraphicsShader(r.ID); step(err) })
	s.textures.each(func(r *metadata.Texture) { _, err := s.CreateTexture(r.ID); step(err) })
	s.samplers.each(func(r *metadata.Sampler2D) { _, err := s.CreateSampler(r.ID); step(err) })
	s.meshes.each(func(r *metadata.StaticMesh) { _, err := s.CreateStaticMesh(r.ID); step(err) })

	if err := s.arena.BuildGPUBuffer(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Destroy waits for the device, releases every GPU resource and clears the
// registry. The store cannot be used afterwards.
func (s *Store) Destroy() error {
	if s.destroyed {
		return core.ErrStoreDestroyed
	}
	if err := s.gpu.WaitIdle(); err != nil {
		core.LogError("asset store destroy: wait idle failed: %s", err)
	}

	s.arena.Destroy()
	s.pipelines.each(func(p *metadata.GraphicsPipeline) {
		if p.Materialized() {
			s.gpu.DestroyPipeline(p.Handle)
		}
	})
	s.shaders.each(func(sh *metadata.GraphicsShader) {
		if sh.Materialized() {
			s.gpu.DestroyShader(sh.Handle)
		}
	})
	s.samplers.each(func(smp *metadata.Sampler2D) {
		if smp.Materialized() {
			s.gpu.DestroySampler(smp.Handle)
		}
	})
	s.textures.each(func(t *metadata.Texture) {
		if t.Materialized() {
			s.gpu.DestroyTexture(t.Image, t.View)
		}
	})
	s.textureArray.Reset()

	s.pipelines.clear()
	s.shaders.clear()
	s.samplers.clear()
	s.textures.clear()
	s.meshes.clear()
	s.kinds = make(map[metadata.AssetID]metadata.AssetKind)
	s.registry.Clear()
	s.destroyed = true
	core.LogInfo("asset store destroyed")
	return nil
}
