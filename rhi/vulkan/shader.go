package vulkan

import (
	"encoding/binary"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// spirvMagic is the mandatory first word of any SPIR-V module (spec
// §6 shader reflection), used to reject malformed bytecode before
// handing it to vkCreateShaderModule.
const spirvMagic = 0x07230203

const (
	opDecorate  = 71
	opVariable  = 59
	opEntryPoint = 15

	decorationBinding       = 33
	decorationDescriptorSet = 34
)

// storageClass mirrors the SPIR-V StorageClass enum values this
// reflector cares about for binding inference.
type storageClass uint32

const (
	storageClassUniformConstant storageClass = 0
	storageClassUniform         storageClass = 2
	storageClassStorageBuffer   storageClass = 12
)

// ReflectedBinding is one descriptor binding a shader module declares,
// recovered by walking its SPIR-V instruction stream (spec §6).
type ReflectedBinding struct {
	Set     uint32
	Binding uint32
	Type    vk.DescriptorType
}

type shaderResource struct {
	module   vk.ShaderModule
	stage    rhi.ShaderStage
	bindings []ReflectedBinding
}

type shaderRegistry struct {
	mu      sync.Mutex
	shaders map[rhi.ShaderHandle]*shaderResource
	next    uint32
}

func newShaderRegistry() *shaderRegistry {
	return &shaderRegistry{shaders: map[rhi.ShaderHandle]*shaderResource{}}
}

// reflectSPIRV walks a SPIR-V module's instruction stream looking for
// OpDecorate(Binding)/OpDecorate(DescriptorSet) pairs applied to IDs
// also declared with OpVariable, inferring each binding's descriptor
// type from the variable's storage class (spec §6: "first four bytes
// must be the SPIR-V magic number; bindings are recovered from
// OpDecorate for Binding/DescriptorSet and OpVariable for storage
// class").
func reflectSPIRV(bytecode []byte) ([]ReflectedBinding, error) {
	if len(bytecode) < 20 || len(bytecode)%4 != 0 {
		return nil, rhi.ErrInvalidResourceBinding
	}
	magic := binary.LittleEndian.Uint32(bytecode[0:4])
	if magic != spirvMagic {
		return nil, rhi.ErrInvalidResourceBinding
	}

	words := make([]uint32, len(bytecode)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(bytecode[i*4 : i*4+4])
	}

	bindingOf := map[uint32]uint32{}
	setOf := map[uint32]uint32{}
	storageOf := map[uint32]storageClass{}

	i := 5 // skip the 5-word header (magic, version, generator, bound, schema)
	for i < len(words) {
		word := words[i]
		wordCount := word >> 16
		opcode := word & 0xFFFF
		if wordCount == 0 || i+int(wordCount) > len(words) {
			break
		}
		switch opcode {
		case opDecorate:
			target := words[i+1]
			decoration := words[i+2]
			if decoration == decorationBinding && wordCount >= 4 {
				bindingOf[target] = words[i+3]
			} else if decoration == decorationDescriptorSet && wordCount >= 4 {
				setOf[target] = words[i+3]
			}
		case opVariable:
			resultID := words[i+2]
			class := storageClass(words[i+3])
			storageOf[resultID] = class
		}
		i += int(wordCount)
	}

	var out []ReflectedBinding
	for id, binding := range bindingOf {
		set := setOf[id]
		class, ok := storageOf[id]
		if !ok {
			continue
		}
		var descType vk.DescriptorType
		switch class {
		case storageClassUniform:
			descType = vk.DescriptorTypeUniformBuffer
		case storageClassStorageBuffer:
			descType = vk.DescriptorTypeStorageBuffer
		case storageClassUniformConstant:
			descType = vk.DescriptorTypeCombinedImageSampler
		default:
			continue
		}
		out = append(out, ReflectedBinding{Set: set, Binding: binding, Type: descType})
	}
	return out, nil
}

func (d *Device) createShaderModule(bytecode []byte, stage rhi.ShaderStage) (rhi.ShaderHandle, error) {
	bindings, err := reflectSPIRV(bytecode)
	if err != nil {
		corex.LogError("shader reflection failed: invalid SPIR-V module")
		return 0, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(bytecode)),
		PCode:    repackSPIRV(bytecode),
	}
	var module vk.ShaderModule
	if result := vk.CreateShaderModule(d.logicalDevice, &createInfo, nil, &module); result != vk.Success {
		corex.LogError("vkCreateShaderModule failed: %s", ResultString(result, true))
		return 0, rhi.ErrInvalidResourceBinding
	}

	d.shaders.mu.Lock()
	d.shaders.next++
	handle := rhi.ShaderHandle(d.shaders.next)
	d.shaders.shaders[handle] = &shaderResource{module: module, stage: stage, bindings: bindings}
	d.shaders.mu.Unlock()

	return handle, nil
}

func repackSPIRV(bytecode []byte) []uint32 {
	words := make([]uint32, len(bytecode)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(bytecode[i*4 : i*4+4])
	}
	return words
}

// CreateVertexShader implements rhi.Device.
func (d *Device) CreateVertexShader(bytecode []byte) (rhi.ShaderHandle, error) {
	return d.createShaderModule(bytecode, rhi.ShaderStageVertex)
}

// CreatePixelShader implements rhi.Device.
func (d *Device) CreatePixelShader(bytecode []byte) (rhi.ShaderHandle, error) {
	return d.createShaderModule(bytecode, rhi.ShaderStagePixel)
}

// ReloadShader recreates the native module behind an existing shader
// handle from freshly-read bytecode and invalidates every pipeline
// built against it, so the next CreatePipelineState call for the same
// PipelineStateDesc picks up the new module (spec §6 shader hot
// reload). The old module is deferred for destruction rather than
// destroyed immediately, since an in-flight command buffer may still
// reference a pipeline built from it.
func (d *Device) ReloadShader(h rhi.ShaderHandle, bytecode []byte) error {
	d.shaders.mu.Lock()
	existing, ok := d.shaders.shaders[h]
	d.shaders.mu.Unlock()
	if !ok {
		return rhi.ErrInvalidResourceBinding
	}

	bindings, err := reflectSPIRV(bytecode)
	if err != nil {
		corex.LogError("shader reload: invalid SPIR-V for reload of handle %d", h)
		return err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(bytecode)),
		PCode:    repackSPIRV(bytecode),
	}
	var module vk.ShaderModule
	if result := vk.CreateShaderModule(d.logicalDevice, &createInfo, nil, &module); result != vk.Success {
		corex.LogError("vkCreateShaderModule failed during reload: %s", ResultString(result, true))
		return rhi.ErrInvalidResourceBinding
	}

	d.pipelineCache.InvalidateShader(h)

	staleModule := existing.module
	d.deferred.Defer(func() { vk.DestroyShaderModule(d.logicalDevice, staleModule, nil) })

	d.shaders.mu.Lock()
	d.shaders.shaders[h] = &shaderResource{module: module, stage: existing.stage, bindings: bindings}
	d.shaders.mu.Unlock()
	return nil
}
