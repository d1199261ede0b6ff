package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// Allocator

func (b *Backend) CreateBuffer(usage metadata.BufferUsage, size uint64) (metadata.Buffer, error) {
	b.call("CreateBuffer")
	if err := b.injected("CreateBuffer"); err != nil {
		return 0, err
	}
	h := metadata.Buffer(b.handle())
	b.buffers[h] = &buffer{usage: usage, data: make([]byte, size)}
	b.Stats.BuffersCreated++
	return h, nil
}

func (b *Backend) WriteBuffer(buf metadata.Buffer, offset uint64, data []byte) error {
	b.call("WriteBuffer")
	st, ok := b.buffers[buf]
	if !ok {
		return fmt.Errorf("headless: write to unknown buffer %d", buf)
	}
	if offset+uint64(len(data)) > uint64(len(st.data)) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, buf, len(st.data))
	}
	copy(st.data[offset:], data)
	return nil
}

func (b *Backend) DestroyBuffer(buf metadata.Buffer) {
	b.call("DestroyBuffer")
	if _, ok := b.buffers[buf]; ok {
		delete(b.buffers, buf)
		b.Stats.BuffersDestroyed++
	}
}

// BufferSize returns the size of a live buffer, or 0.
func (b *Backend) BufferSize(buf metadata.Buffer) uint64 {
	if st, ok := b.buffers[buf]; ok {
		return uint64(len(st.data))
	}
	return 0
}

// BufferData returns the contents of a live buffer.
func (b *Backend) BufferData(buf metadata.Buffer) []byte {
	if st, ok := b.buffers[buf]; ok {
		return st.data
	}
	return nil
}

func (b *Backend) LiveBuffers() int {
	return len(b.buffers)
}

func (b *Backend) CreateTexture(name string, width, height uint32, pixels []byte) (metadata.Image, metadata.ImageView, error) {
	b.call("CreateTexture")
	if err := b.injected("CreateTexture"); err != nil {
		return 0, 0, err
	}
	if uint64(len(pixels)) != uint64(width)*uint64(height)*4 {
		return 0, 0, fmt.Errorf("headless: texture '%s' has %d bytes, expected %dx%dx4", name, len(pixels), width, height)
	}
	img := metadata.Image(b.handle())
	view := metadata.ImageView(b.handle())
	b.textures[img] = &texture{name: name, width: width, height: height, view: view}
	b.Stats.TexturesCreated++
	return img, view, nil
}

func (b *Backend) DestroyTexture(img metadata.Image, view metadata.ImageView) {
	b.call("DestroyTexture")
	delete(b.textures, img)
}

// Builder

func (b *Backend) CreateShader(name string, vertexCode, fragmentCode []byte) (metadata.Shader, error) {
	b.call("CreateShader")
	if err := b.injected("CreateShader"); err != nil {
		return 0, err
	}
	if len(vertexCode) == 0 || len(fragmentCode) == 0 {
		return 0, fmt.Errorf("headless: shader '%s' has an empty stage", name)
	}
	h := metadata.Shader(b.handle())
	b.shaders[h] = name
	b.Stats.ShadersCreated++
	return h, nil
}

func (b *Backend) DestroyShader(shader metadata.Shader) {
	b.call("DestroyShader")
	delete(b.shaders, shader)
}

func (b *Backend) CreatePipeline(config metadata.PipelineConfig) (metadata.Pipeline, error) {
	b.call("CreatePipeline")
	if err := b.injected("CreatePipeline"); err != nil {
		return 0, err
	}
	if _, ok := b.shaders[config.Shader]; !ok {
		return 0, fmt.Errorf("headless: pipeline '%s' uses unknown shader %d", config.Name, config.Shader)
	}
	if _, ok := b.pipelineLayouts[config.Layout]; !ok {
		return 0, fmt.Errorf("headless: pipeline '%s' uses unknown layout %d", config.Name, config.Layout)
	}
	h := metadata.Pipeline(b.handle())
	b.pipelines[h] = config
	b.Stats.PipelinesCreated++
	return h, nil
}

func (b *Backend) DestroyPipeline(pipeline metadata.Pipeline) {
	b.call("DestroyPipeline")
	delete(b.pipelines, pipeline)
}

// PipelineConfig returns the configuration a live pipeline was built with.
func (b *Backend) PipelineConfig(pipeline metadata.Pipeline) (metadata.PipelineConfig, bool) {
	cfg, ok := b.pipelines[pipeline]
	return cfg, ok
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Sampler, error) {
	b.call("CreateSampler")
	if err := b.injected("CreateSampler"); err != nil {
		return 0, err
	}
	h := metadata.Sampler(b.handle())
	b.samplers[h] = config
	b.Stats.SamplersCreated++
	return h, nil
}

func (b *Backend) DestroySampler(sampler metadata.Sampler) {
	b.call("DestroySampler")
	delete(b.samplers, sampler)
}

// Descriptors

func (b *Backend) CreateSetLayout(binding metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	b.call("CreateSetLayout")
	h := metadata.DescriptorSetLayout(b.handle())
	b.setLayouts[h] = binding
	return h, nil
}

func (b *Backend) DestroySetLayout(layout metadata.DescriptorSetLayout) {
	b.call("DestroySetLayout")
	delete(b.setLayouts, layout)
}

func (b *Backend) CreatePipelineLayout(setLayouts []metadata.DescriptorSetLayout) (metadata.PipelineLayout, error) {
	b.call("CreatePipelineLayout")
	for _, l := range setLayouts {
		if _, ok := b.setLayouts[l]; !ok {
			return 0, fmt.Errorf("headless: unknown set layout %d", l)
		}
	}
	h := metadata.PipelineLayout(b.handle())
	b.pipelineLayouts[h] = append([]metadata.DescriptorSetLayout(nil), setLayouts...)
	return h, nil
}

func (b *Backend) DestroyPipelineLayout(layout metadata.PipelineLayout) {
	b.call("DestroyPipelineLayout")
	delete(b.pipelineLayouts, layout)
}

func (b *Backend) AllocateSet(layout metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	b.call("AllocateSet")
	if _, ok := b.setLayouts[layout]; !ok {
		return 0, fmt.Errorf("headless: unknown set layout %d", layout)
	}
	h := metadata.DescriptorSet(b.handle())
	b.sets[h] = &descriptorSet{layout: layout}
	return h, nil
}

func (b *Backend) WriteBufferSet(set metadata.DescriptorSet, kind metadata.DescriptorType, buf metadata.Buffer, size uint64) error {
	b.call("WriteBufferSet")
	st, ok := b.sets[set]
	if !ok {
		return fmt.Errorf("headless: write to unknown descriptor set %d", set)
	}
	if b.setLayouts[st.layout].Type != kind {
		return fmt.Errorf("headless: descriptor type mismatch on set %d", set)
	}
	if _, ok := b.buffers[buf]; !ok {
		return fmt.Errorf("headless: descriptor set %d points at unknown buffer %d", set, buf)
	}
	st.buffer = buf
	st.writes++
	return nil
}

func (b *Backend) WriteTextureSet(set metadata.DescriptorSet, textures []metadata.TexturePair) error {
	b.call("WriteTextureSet")
	st, ok := b.sets[set]
	if !ok {
		return fmt.Errorf("headless: write to unknown descriptor set %d", set)
	}
	binding := b.setLayouts[st.layout]
	if binding.Type != metadata.DescriptorTypeCombinedImageSampler {
		return fmt.Errorf("headless: descriptor set %d is not a sampler array", set)
	}
	if uint32(len(textures)) != binding.Count {
		return fmt.Errorf("headless: descriptor set %d expects %d textures, got %d", set, binding.Count, len(textures))
	}
	st.textures = append([]metadata.TexturePair(nil), textures...)
	st.writes++
	b.Stats.TextureSetWrites++
	return nil
}

// SetBuffer returns the buffer last written into a descriptor set.
func (b *Backend) SetBuffer(set metadata.DescriptorSet) metadata.Buffer {
	if st, ok := b.sets[set]; ok {
		return st.buffer
	}
	return 0
}

// SetTextures returns the texture table last written into a descriptor set.
func (b *Backend) SetTextures(set metadata.DescriptorSet) []metadata.TexturePair {
	if st, ok := b.sets[set]; ok {
		return st.textures
	}
	return nil
}
