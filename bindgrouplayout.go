package nxt

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// maxBindingsPerGroup caps how many binding slots a single bind group can
// declare.
const maxBindingsPerGroup = 16

// ShaderStage is a bitmask of the shader stages a binding is visible to.
type ShaderStage uint32

const (
	ShaderStageNone     ShaderStage = 0x0
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageFragment ShaderStage = 0x2
	ShaderStageCompute  ShaderStage = 0x4
)

// BindingType is the kind of resource bound at a slot.
type BindingType int

const (
	BindingTypeUniformBuffer BindingType = iota
	BindingTypeSampler
	BindingTypeSampledTexture
	BindingTypeStorageBuffer
)

func vulkanShaderStageFlags(stages ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits

	if stages&ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if stages&ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if stages&ShaderStageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}

	return vk.ShaderStageFlags(flags)
}

func vulkanDescriptorType(bindingType BindingType) vk.DescriptorType {
	switch bindingType {
	case BindingTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case BindingTypeSampler:
		return vk.DescriptorTypeSampler
	case BindingTypeSampledTexture:
		return vk.DescriptorTypeSampledImage
	case BindingTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	default:
		panic("nxt: unknown binding type")
	}
}

// LayoutBindingInfo is the immutable description a bind group layout is
// created from and deduplicated by. Bit i of Mask is set when slot i is
// populated; Visibilities and Types only carry meaning where the mask is
// set.
type LayoutBindingInfo struct {
	Visibilities [maxBindingsPerGroup]ShaderStage
	Types        [maxBindingsPerGroup]BindingType
	Mask         uint32
}

// structuralHash hashes the mask and the mask-gated slots only, so
// descriptions differing in unused slots hash alike. Consistent with equal:
// equal descriptions always produce the same hash.
func (info *LayoutBindingInfo) structuralHash() uint64 {
	h := fnv.New64a()
	var scratch [4]byte
	write := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		h.Write(scratch[:])
	}

	write(info.Mask)
	for i := 0; i < maxBindingsPerGroup; i++ {
		if info.Mask&(1<<uint(i)) == 0 {
			continue
		}
		write(uint32(info.Visibilities[i]))
		write(uint32(info.Types[i]))
	}
	return h.Sum64()
}

// equal compares only the mask and the mask-gated slots.
func (info *LayoutBindingInfo) equal(other *LayoutBindingInfo) bool {
	if info.Mask != other.Mask {
		return false
	}
	for i := 0; i < maxBindingsPerGroup; i++ {
		if info.Mask&(1<<uint(i)) == 0 {
			continue
		}
		if info.Visibilities[i] != other.Visibilities[i] || info.Types[i] != other.Types[i] {
			return false
		}
	}
	return true
}

// BindGroupLayout is the canonical, shared instance for one structural
// binding description. Structurally identical requests resolve to the same
// instance for as long as any owner holds a reference.
type BindGroupLayout struct {
	RefCounted
	Device                *Device
	VKDescriptorSetLayout vk.DescriptorSetLayout

	bindingInfo LayoutBindingInfo
	hash        uint64
}

// BindingInfo returns the description this layout was canonicalized from.
func (l *BindGroupLayout) BindingInfo() LayoutBindingInfo {
	return l.bindingInfo
}

// CreateBindGroupLayout returns the canonical layout for info, creating it
// on first request. A cache hit takes a new reference on the shared
// instance; either way the caller owns one reference and must Release it.
func (d *Device) CreateBindGroupLayout(info LayoutBindingInfo) (*BindGroupLayout, error) {
	if d.lostErr != nil {
		return nil, d.lostErr
	}

	hash := info.structuralHash()
	for _, cached := range d.layoutCache[hash] {
		if cached.bindingInfo.equal(&info) {
			cached.Reference()
			return cached, nil
		}
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, 0, maxBindingsPerGroup)
	for i := 0; i < maxBindingsPerGroup; i++ {
		if info.Mask&(1<<uint(i)) == 0 {
			continue
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vulkanDescriptorType(info.Types[i]),
			DescriptorCount: 1,
			StageFlags:      vulkanShaderStageFlags(info.Visibilities[i]),
		})
	}

	var createInfo = vk.DescriptorSetLayoutCreateInfo{}
	createInfo.SType = vk.StructureTypeDescriptorSetLayoutCreateInfo
	createInfo.BindingCount = uint32(len(bindings))
	createInfo.PBindings = bindings

	handle, err := d.fn.CreateDescriptorSetLayout(&createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "creating bind group layout")
	}

	layout := &BindGroupLayout{
		Device:                d,
		VKDescriptorSetLayout: handle,
		bindingInfo:           info,
		hash:                  hash,
	}
	layout.refs = 1
	layout.destroy = layout.teardown
	d.layoutCache[hash] = append(d.layoutCache[hash], layout)
	return layout, nil
}

func (l *BindGroupLayout) teardown() {
	// Uncache before the native handle goes away: a concurrent identical
	// request must get a fresh instance, never this dying one.
	l.Device.uncacheBindGroupLayout(l)
	if l.VKDescriptorSetLayout != vk.NullDescriptorSetLayout {
		l.Device.deleter.DeleteDescriptorSetLayoutWhenUnused(l.VKDescriptorSetLayout)
		l.VKDescriptorSetLayout = vk.NullDescriptorSetLayout
	}
}

func (d *Device) uncacheBindGroupLayout(layout *BindGroupLayout) {
	bucket := d.layoutCache[layout.hash]
	for i, cached := range bucket {
		if cached == layout {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(d.layoutCache, layout.hash)
			} else {
				d.layoutCache[layout.hash] = bucket
			}
			return
		}
	}
	panic("nxt: bind group layout missing from its cache bucket")
}
