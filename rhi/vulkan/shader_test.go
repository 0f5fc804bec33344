package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
)

// spirvWord packs a SPIR-V instruction header word from an opcode and
// its total word count (including the header word itself).
func spirvWord(opcode, wordCount uint32) uint32 {
	return wordCount<<16 | opcode
}

// buildSPIRV assembles a minimal module: a 5-word header, then
// OpDecorate(DescriptorSet) and OpDecorate(Binding) on id 10, followed
// by an OpVariable declaring that same id with the given storage class.
func buildSPIRV(t *testing.T, storage storageClass, set, binding uint32) []byte {
	t.Helper()
	words := []uint32{
		spirvMagic, 0x00010000, 0, 100, 0, // header: magic, version, generator, bound, schema
		spirvWord(opDecorate, 4), 10, decorationDescriptorSet, set,
		spirvWord(opDecorate, 4), 10, decorationBinding, binding,
		spirvWord(opVariable, 4), 0 /* result type */, 10, uint32(storage),
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	return buf
}

func TestReflectSPIRVRecoversUniformBuffer(t *testing.T) {
	bytecode := buildSPIRV(t, storageClassUniform, 2, 5)
	bindings, err := reflectSPIRV(bytecode)
	if err != nil {
		t.Fatalf("reflectSPIRV: %v", err)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d: %v", len(bindings), bindings)
	}
	got := bindings[0]
	if got.Set != 2 || got.Binding != 5 || got.Type != vk.DescriptorTypeUniformBuffer {
		t.Errorf("unexpected binding: %+v", got)
	}
}

func TestReflectSPIRVStorageClasses(t *testing.T) {
	cases := []struct {
		name    string
		storage storageClass
		want    vk.DescriptorType
	}{
		{"uniform", storageClassUniform, vk.DescriptorTypeUniformBuffer},
		{"storage buffer", storageClassStorageBuffer, vk.DescriptorTypeStorageBuffer},
		{"uniform constant (sampler)", storageClassUniformConstant, vk.DescriptorTypeCombinedImageSampler},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bindings, err := reflectSPIRV(buildSPIRV(t, c.storage, 0, 0))
			if err != nil {
				t.Fatalf("reflectSPIRV: %v", err)
			}
			if len(bindings) != 1 || bindings[0].Type != c.want {
				t.Fatalf("expected type %v, got %+v", c.want, bindings)
			}
		})
	}
}

func TestReflectSPIRVRejectsBadMagic(t *testing.T) {
	bytecode := buildSPIRV(t, storageClassUniform, 0, 0)
	binary.LittleEndian.PutUint32(bytecode[0:4], 0xDEADBEEF)
	if _, err := reflectSPIRV(bytecode); err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}

func TestReflectSPIRVRejectsTruncatedBytecode(t *testing.T) {
	if _, err := reflectSPIRV([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for undersized/misaligned bytecode")
	}
}

func TestReflectSPIRVIgnoresUndecoratedVariables(t *testing.T) {
	words := []uint32{
		spirvMagic, 0x00010000, 0, 100, 0,
		spirvWord(opVariable, 4), 0, 10, uint32(storageClassUniform),
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	bindings, err := reflectSPIRV(buf)
	if err != nil {
		t.Fatalf("reflectSPIRV: %v", err)
	}
	if len(bindings) != 0 {
		t.Fatalf("expected no bindings for an undecorated variable, got %v", bindings)
	}
}
