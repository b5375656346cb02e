package nxt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// TextureFormat is the texel format of a texture.
type TextureFormat int

const (
	TextureFormatRGBA8Unorm TextureFormat = iota
	TextureFormatRGBA8Uint
	TextureFormatBGRA8Unorm
	TextureFormatD32FloatS8Uint
)

// HasDepth reports whether the format carries a depth aspect.
func (f TextureFormat) HasDepth() bool {
	return f == TextureFormatD32FloatS8Uint
}

// HasStencil reports whether the format carries a stencil aspect.
func (f TextureFormat) HasStencil() bool {
	return f == TextureFormatD32FloatS8Uint
}

// HasDepthOrStencil reports whether the format is a depth/stencil format,
// which flips attachment usage to the depth/stencil variants.
func (f TextureFormat) HasDepthOrStencil() bool {
	return f.HasDepth() || f.HasStencil()
}

// VKFormat returns the native format.
func (f TextureFormat) VKFormat() vk.Format {
	switch f {
	case TextureFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case TextureFormatRGBA8Uint:
		return vk.FormatR8g8b8a8Uint
	case TextureFormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case TextureFormatD32FloatS8Uint:
		return vk.FormatD32SfloatS8Uint
	default:
		panic("nxt: unknown texture format")
	}
}

// TextureUsage is a bitmask describing how a texture is being accessed.
// A texture's current usage is CPU-tracked state, never queried back from
// the native API; transitions between usages are what drive barrier
// synthesis.
type TextureUsage uint32

const (
	TextureUsageNone             TextureUsage = 0x00
	TextureUsageTransferSrc      TextureUsage = 0x01
	TextureUsageTransferDst      TextureUsage = 0x02
	TextureUsageSampled          TextureUsage = 0x04
	TextureUsageStorage          TextureUsage = 0x08
	TextureUsageOutputAttachment TextureUsage = 0x10
	TextureUsagePresent          TextureUsage = 0x20
)

func hasZeroOrOneBits(usage TextureUsage) bool {
	return usage&(usage-1) == 0
}

// vulkanImageUsage converts a usage mask to native image usage flags. The
// format decides between the color and depth/stencil attachment bits.
func vulkanImageUsage(usage TextureUsage, format TextureFormat) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits

	if usage&TextureUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usage&TextureUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if usage&TextureUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&TextureUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if usage&TextureUsageOutputAttachment != 0 {
		if format.HasDepthOrStencil() {
			flags |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			flags |= vk.ImageUsageColorAttachmentBit
		}
	}

	return vk.ImageUsageFlags(flags)
}

// vulkanAccessFlags computes which native access types a usage may exercise.
func vulkanAccessFlags(usage TextureUsage, format TextureFormat) vk.AccessFlags {
	var flags vk.AccessFlagBits

	if usage&TextureUsageTransferSrc != 0 {
		flags |= vk.AccessTransferReadBit
	}
	if usage&TextureUsageTransferDst != 0 {
		flags |= vk.AccessTransferWriteBit
	}
	if usage&TextureUsageSampled != 0 {
		flags |= vk.AccessShaderReadBit
	}
	if usage&TextureUsageStorage != 0 {
		flags |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}
	if usage&TextureUsageOutputAttachment != 0 {
		if format.HasDepthOrStencil() {
			flags |= vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit
		} else {
			flags |= vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
		}
	}
	if usage&TextureUsagePresent != 0 {
		flags |= vk.AccessMemoryReadBit
	}

	return vk.AccessFlags(flags)
}

// vulkanImageLayout chooses the native layout for a usage. Single-bit usages
// get their dedicated optimal layout; combinations fall back to General.
// TransferSrc and Storage are pinned to General even alone: other usage bits
// may later combine with them, and copies and compute access must keep
// working from whatever layout the texture is in without another transition.
func vulkanImageLayout(usage TextureUsage, format TextureFormat) vk.ImageLayout {
	if usage == TextureUsageNone {
		return vk.ImageLayoutUndefined
	}
	if !hasZeroOrOneBits(usage) {
		return vk.ImageLayoutGeneral
	}

	switch usage {
	case TextureUsageTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case TextureUsageSampled:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case TextureUsageTransferSrc, TextureUsageStorage, TextureUsagePresent:
		return vk.ImageLayoutGeneral
	case TextureUsageOutputAttachment:
		if format.HasDepthOrStencil() {
			return vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		return vk.ImageLayoutColorAttachmentOptimal
	default:
		panic("nxt: unknown texture usage")
	}
}

// vulkanPipelineStage computes which pipeline stages can touch a texture in
// the given usage.
func vulkanPipelineStage(usage TextureUsage, format TextureFormat) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlagBits

	if usage == TextureUsageNone {
		// A newly created texture: nothing has to wait before accessing it.
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if usage&(TextureUsageTransferSrc|TextureUsageTransferDst) != 0 {
		flags |= vk.PipelineStageTransferBit
	}
	if usage&(TextureUsageSampled|TextureUsageStorage) != 0 {
		flags |= vk.PipelineStageVertexShaderBit |
			vk.PipelineStageFragmentShaderBit |
			vk.PipelineStageComputeShaderBit
	}
	if usage&TextureUsageOutputAttachment != 0 {
		if format.HasDepthOrStencil() {
			flags |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
		} else {
			flags |= vk.PipelineStageColorAttachmentOutputBit
		}
	}
	if usage&TextureUsagePresent != 0 {
		flags |= vk.PipelineStageBottomOfPipeBit
	}

	return vk.PipelineStageFlags(flags)
}

// vulkanAspectMask computes which image aspects a format covers.
func vulkanAspectMask(format TextureFormat) vk.ImageAspectFlags {
	var flags vk.ImageAspectFlagBits
	if format.HasDepth() {
		flags |= vk.ImageAspectDepthBit
	}
	if format.HasStencil() {
		flags |= vk.ImageAspectStencilBit
	}
	if flags != 0 {
		return vk.ImageAspectFlags(flags)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// TextureDescriptor describes a texture to create. The front-end validates
// descriptors before they reach the device; usage bits are assumed legal for
// the format.
type TextureDescriptor struct {
	Format       TextureFormat
	Width        uint32
	Height       uint32
	MipLevels    uint32
	AllowedUsage TextureUsage
}

// Texture is a GPU image together with its CPU-tracked usage state. It is
// reference counted; dropping the last reference frees the backing memory
// and defers destruction of the native image until in-flight work is done.
type Texture struct {
	RefCounted
	Device  *Device
	VKImage vk.Image

	Format    TextureFormat
	MipLevels uint32

	allocation   Allocation
	currentUsage TextureUsage
}

// CreateTexture creates a 2D texture and binds device memory to it. On
// failure nothing is left behind: partially created handles are destroyed
// before the error is returned.
func (d *Device) CreateTexture(descriptor TextureDescriptor) (*Texture, error) {
	if d.lostErr != nil {
		return nil, d.lostErr
	}

	var imageCreateInfo = vk.ImageCreateInfo{}
	imageCreateInfo.SType = vk.StructureTypeImageCreateInfo
	imageCreateInfo.ImageType = vk.ImageType2d
	imageCreateInfo.Format = descriptor.Format.VKFormat()
	imageCreateInfo.Extent = vk.Extent3D{Width: descriptor.Width, Height: descriptor.Height, Depth: 1}
	imageCreateInfo.MipLevels = descriptor.MipLevels
	imageCreateInfo.ArrayLayers = 1
	imageCreateInfo.Samples = vk.SampleCount1Bit
	imageCreateInfo.Tiling = vk.ImageTilingOptimal
	imageCreateInfo.Usage = vulkanImageUsage(descriptor.AllowedUsage, descriptor.Format)
	imageCreateInfo.SharingMode = vk.SharingModeExclusive
	imageCreateInfo.InitialLayout = vk.ImageLayoutUndefined

	image, err := d.fn.CreateImage(&imageCreateInfo)
	if err != nil {
		return nil, errors.Wrap(err, "creating texture")
	}

	requirements := d.fn.GetImageMemoryRequirements(image)
	allocation, err := d.allocator.Allocate(requirements, false)
	if err != nil {
		d.fn.DestroyImage(image)
		return nil, errors.Wrap(err, "allocating texture memory")
	}

	if err := d.fn.BindImageMemory(image, allocation.VKDeviceMemory, allocation.Offset); err != nil {
		d.allocator.Free(&allocation)
		d.fn.DestroyImage(image)
		return nil, errors.Wrap(err, "binding texture memory")
	}

	t := &Texture{
		Device:     d,
		VKImage:    image,
		Format:     descriptor.Format,
		MipLevels:  descriptor.MipLevels,
		allocation: allocation,
	}
	t.refs = 1
	t.destroy = t.teardown
	return t, nil
}

func (t *Texture) teardown() {
	// Memory is freed through the allocator and the image through the
	// deleter; both are gated on the same pending serial, and the deleter
	// frees memory after images within a serial.
	t.Device.allocator.Free(&t.allocation)
	if t.VKImage != vk.NullImage {
		t.Device.deleter.DeleteImageWhenUnused(t.VKImage)
		t.VKImage = vk.NullImage
	}
}

// Usage returns the texture's current usage.
func (t *Texture) Usage() TextureUsage {
	return t.currentUsage
}

// TransitionUsage records the barrier moving the texture from its current
// usage to targetUsage into the pending command buffer. Transitioning to the
// current usage is a no-op.
func (t *Texture) TransitionUsage(targetUsage TextureUsage) error {
	if t.currentUsage == targetUsage {
		return nil
	}
	commands, err := t.Device.GetPendingCommandBuffer()
	if err != nil {
		return err
	}
	t.RecordBarrier(commands, t.currentUsage, targetUsage)
	t.currentUsage = targetUsage
	return nil
}

// RecordBarrier records the transition barrier between two usages into
// commands. One barrier per transition, covering all mip levels and a
// single layer; no coalescing across resources. That is inefficient when
// many resources transition back to back, and it is the accepted cost of
// keeping this correct and simple.
func (t *Texture) RecordBarrier(commands vk.CommandBuffer, currentUsage, targetUsage TextureUsage) {
	srcStages := vulkanPipelineStage(currentUsage, t.Format)
	dstStages := vulkanPipelineStage(targetUsage, t.Format)

	var barrier = vk.ImageMemoryBarrier{}
	barrier.SType = vk.StructureTypeImageMemoryBarrier
	barrier.SrcAccessMask = vulkanAccessFlags(currentUsage, t.Format)
	barrier.DstAccessMask = vulkanAccessFlags(targetUsage, t.Format)
	barrier.OldLayout = vulkanImageLayout(currentUsage, t.Format)
	barrier.NewLayout = vulkanImageLayout(targetUsage, t.Format)
	barrier.SrcQueueFamilyIndex = vk.QueueFamilyIgnored
	barrier.DstQueueFamilyIndex = vk.QueueFamilyIgnored
	barrier.Image = t.VKImage
	barrier.SubresourceRange = vk.ImageSubresourceRange{
		AspectMask:     vulkanAspectMask(t.Format),
		BaseMipLevel:   0,
		LevelCount:     t.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	t.Device.fn.CmdPipelineBarrier(commands, srcStages, dstStages, nil, []vk.ImageMemoryBarrier{barrier})
}
