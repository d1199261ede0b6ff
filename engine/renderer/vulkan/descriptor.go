package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// Sets a pool can hand out before AllocateSet fails with out of pool memory.
const descriptorPoolMaxSets = 64

/**
 * @brief A single binding set layout. Every engine set uses binding 0.
 */
type VulkanSetLayout struct {
	Handle  vk.DescriptorSetLayout
	Binding metadata.DescriptorBinding
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Layout *VulkanSetLayout
}

func descriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func shaderStageFlags(stages metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if stages&metadata.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if stages&metadata.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return flags
}

// DescriptorPoolCreate sizes one pool for every set the engine allocates.
// Sampler arrays take maxTextures descriptors each.
func DescriptorPoolCreate(context *VulkanContext, maxTextures uint32) (vk.DescriptorPool, error) {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolMaxSets},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: descriptorPoolMaxSets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolMaxSets * maxTextures},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       descriptorPoolMaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		return vk.NullDescriptorPool, resultError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

func SetLayoutCreate(context *VulkanContext, binding metadata.DescriptorBinding) (*VulkanSetLayout, error) {
	if binding.Count == 0 {
		binding.Count = 1
	}
	layoutBinding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  descriptorType(binding.Type),
		DescriptorCount: binding.Count,
		StageFlags:      shaderStageFlags(binding.Stages),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{layoutBinding},
	}
	var handle vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError("vkCreateDescriptorSetLayout", res)
	}
	return &VulkanSetLayout{Handle: handle, Binding: binding}, nil
}

func (l *VulkanSetLayout) Destroy(context *VulkanContext) {
	if l.Handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = vk.NullDescriptorSetLayout
	}
}

func PipelineLayoutCreate(context *VulkanContext, setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &info, context.Allocator, &layout); res != vk.Success {
		return vk.NullPipelineLayout, resultError("vkCreatePipelineLayout", res)
	}
	return layout, nil
}

func DescriptorSetAllocate(context *VulkanContext, pool vk.DescriptorPool, layout *VulkanSetLayout) (*VulkanDescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		return nil, resultError("vkAllocateDescriptorSets", res)
	}
	return &VulkanDescriptorSet{Handle: sets[0], Layout: layout}, nil
}

// WriteBuffer points binding 0 of the set at the whole buffer range.
func (s *VulkanDescriptorSet) WriteBuffer(context *VulkanContext, kind metadata.DescriptorType, buffer *VulkanBuffer, size uint64) error {
	if s.Layout.Binding.Type != kind {
		err := fmt.Errorf("descriptor type mismatch: set holds %d, write is %d", s.Layout.Binding.Type, kind)
		core.LogError(err.Error())
		return err
	}
	if size == 0 || size > buffer.Size {
		size = buffer.Size
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorCount: 1,
		DescriptorType:  descriptorType(kind),
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}},
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

// WriteTextures fills the whole sampler array. Every element must be valid,
// so callers pad unused slots with the blank texture.
func (s *VulkanDescriptorSet) WriteTextures(context *VulkanContext, views []vk.ImageView, samplers []vk.Sampler) error {
	if s.Layout.Binding.Type != metadata.DescriptorTypeCombinedImageSampler {
		return fmt.Errorf("descriptor set is not a sampler array")
	}
	if uint32(len(views)) != s.Layout.Binding.Count || len(views) != len(samplers) {
		return fmt.Errorf("descriptor set expects %d textures, got %d", s.Layout.Binding.Count, len(views))
	}
	imageInfos := make([]vk.DescriptorImageInfo, len(views))
	for i := range views {
		imageInfos[i] = vk.DescriptorImageInfo{
			Sampler:     samplers[i],
			ImageView:   views[i],
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorCount: uint32(len(imageInfos)),
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      imageInfos,
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}
