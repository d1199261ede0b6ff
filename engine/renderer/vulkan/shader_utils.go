package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

/**
 * @brief A vertex and fragment stage pair built from one shader asset.
 */
type VulkanShader struct {
	Name   string
	Stages []VulkanShaderStage
}

// bytesToBytecode reinterprets SPIR-V bytes as the little endian words
// vkCreateShaderModule expects.
func bytesToBytecode(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V code size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

func NewShaderModule(context *VulkanContext, name string, code []byte, stage vk.ShaderStageFlagBits) (VulkanShaderStage, error) {
	var out VulkanShaderStage
	words, err := bytesToBytecode(code)
	if err != nil {
		err = fmt.Errorf("shader '%s': %w", name, err)
		core.LogError(err.Error())
		return out, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &out.Handle); res != vk.Success {
		return out, resultError("vkCreateShaderModule", res)
	}

	// Shader stage info
	out.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: out.Handle,
		PName:  VulkanSafeString("main"),
	}
	return out, nil
}

func ShaderCreate(context *VulkanContext, name string, vertexCode, fragmentCode []byte) (*VulkanShader, error) {
	shader := &VulkanShader{Name: name}
	vertex, err := NewShaderModule(context, name, vertexCode, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	shader.Stages = append(shader.Stages, vertex)

	fragment, err := NewShaderModule(context, name, fragmentCode, vk.ShaderStageFragmentBit)
	if err != nil {
		shader.Destroy(context)
		return nil, err
	}
	shader.Stages = append(shader.Stages, fragment)
	core.LogDebug("Shader '%s' created", name)
	return shader, nil
}

func (s *VulkanShader) stageInfos() []vk.PipelineShaderStageCreateInfo {
	infos := make([]vk.PipelineShaderStageCreateInfo, len(s.Stages))
	for i := range s.Stages {
		infos[i] = s.Stages[i].ShaderStageCreateInfo
	}
	return infos
}

func (s *VulkanShader) Destroy(context *VulkanContext) {
	for i := range s.Stages {
		if s.Stages[i].Handle != vk.NullShaderModule {
			vk.DestroyShaderModule(context.Device.LogicalDevice, s.Stages[i].Handle, context.Allocator)
			s.Stages[i].Handle = vk.NullShaderModule
		}
	}
	s.Stages = nil
}
