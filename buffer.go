package nxt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// BufferUsage is a bitmask describing how a buffer is being accessed.
// Buffers have no layouts, so transitions only order access; the tracking
// works the same way as for textures.
type BufferUsage uint32

const (
	BufferUsageNone        BufferUsage = 0x00
	BufferUsageTransferSrc BufferUsage = 0x01
	BufferUsageTransferDst BufferUsage = 0x02
	BufferUsageIndex       BufferUsage = 0x04
	BufferUsageVertex      BufferUsage = 0x08
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
)

func vulkanBufferUsage(usage BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits

	if usage&BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage&BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if usage&BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage&BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}

	return vk.BufferUsageFlags(flags)
}

func vulkanBufferAccess(usage BufferUsage) vk.AccessFlags {
	var flags vk.AccessFlagBits

	if usage&BufferUsageTransferSrc != 0 {
		flags |= vk.AccessTransferReadBit
	}
	if usage&BufferUsageTransferDst != 0 {
		flags |= vk.AccessTransferWriteBit
	}
	if usage&BufferUsageIndex != 0 {
		flags |= vk.AccessIndexReadBit
	}
	if usage&BufferUsageVertex != 0 {
		flags |= vk.AccessVertexAttributeReadBit
	}
	if usage&BufferUsageUniform != 0 {
		flags |= vk.AccessUniformReadBit
	}
	if usage&BufferUsageStorage != 0 {
		flags |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}

	return vk.AccessFlags(flags)
}

func vulkanBufferStage(usage BufferUsage) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlagBits

	if usage == BufferUsageNone {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if usage&(BufferUsageTransferSrc|BufferUsageTransferDst) != 0 {
		flags |= vk.PipelineStageTransferBit
	}
	if usage&(BufferUsageIndex|BufferUsageVertex) != 0 {
		flags |= vk.PipelineStageVertexInputBit
	}
	if usage&(BufferUsageUniform|BufferUsageStorage) != 0 {
		flags |= vk.PipelineStageVertexShaderBit |
			vk.PipelineStageFragmentShaderBit |
			vk.PipelineStageComputeShaderBit
	}

	return vk.PipelineStageFlags(flags)
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Size         uint64
	AllowedUsage BufferUsage
}

// Buffer is a GPU buffer together with its CPU-tracked usage state.
// Reference counted like Texture; the native handle and memory outlive the
// last reference by whatever in-flight work still uses them.
type Buffer struct {
	RefCounted
	Device   *Device
	VKBuffer vk.Buffer
	Size     uint64

	allocation   Allocation
	currentUsage BufferUsage
}

// CreateBuffer creates a buffer and binds device memory to it.
func (d *Device) CreateBuffer(descriptor BufferDescriptor) (*Buffer, error) {
	if d.lostErr != nil {
		return nil, d.lostErr
	}

	var bufferCreateInfo = vk.BufferCreateInfo{}
	bufferCreateInfo.SType = vk.StructureTypeBufferCreateInfo
	bufferCreateInfo.Size = vk.DeviceSize(descriptor.Size)
	bufferCreateInfo.Usage = vulkanBufferUsage(descriptor.AllowedUsage)
	bufferCreateInfo.SharingMode = vk.SharingModeExclusive

	buffer, err := d.fn.CreateBuffer(&bufferCreateInfo)
	if err != nil {
		return nil, errors.Wrap(err, "creating buffer")
	}

	requirements := d.fn.GetBufferMemoryRequirements(buffer)
	allocation, err := d.allocator.Allocate(requirements, false)
	if err != nil {
		d.fn.DestroyBuffer(buffer)
		return nil, errors.Wrap(err, "allocating buffer memory")
	}

	if err := d.fn.BindBufferMemory(buffer, allocation.VKDeviceMemory, allocation.Offset); err != nil {
		d.allocator.Free(&allocation)
		d.fn.DestroyBuffer(buffer)
		return nil, errors.Wrap(err, "binding buffer memory")
	}

	b := &Buffer{
		Device:     d,
		VKBuffer:   buffer,
		Size:       descriptor.Size,
		allocation: allocation,
	}
	b.refs = 1
	b.destroy = b.teardown
	return b, nil
}

func (b *Buffer) teardown() {
	b.Device.allocator.Free(&b.allocation)
	if b.VKBuffer != vk.NullBuffer {
		b.Device.deleter.DeleteBufferWhenUnused(b.VKBuffer)
		b.VKBuffer = vk.NullBuffer
	}
}

// Usage returns the buffer's current usage.
func (b *Buffer) Usage() BufferUsage {
	return b.currentUsage
}

// TransitionUsage records the barrier moving the buffer from its current
// usage to targetUsage into the pending command buffer. Transitioning to the
// current usage is a no-op.
func (b *Buffer) TransitionUsage(targetUsage BufferUsage) error {
	if b.currentUsage == targetUsage {
		return nil
	}
	commands, err := b.Device.GetPendingCommandBuffer()
	if err != nil {
		return err
	}
	b.RecordBarrier(commands, b.currentUsage, targetUsage)
	b.currentUsage = targetUsage
	return nil
}

// RecordBarrier records the transition barrier between two usages into
// commands. The barrier covers the whole buffer.
func (b *Buffer) RecordBarrier(commands vk.CommandBuffer, currentUsage, targetUsage BufferUsage) {
	srcStages := vulkanBufferStage(currentUsage)
	dstStages := vulkanBufferStage(targetUsage)

	var barrier = vk.BufferMemoryBarrier{}
	barrier.SType = vk.StructureTypeBufferMemoryBarrier
	barrier.SrcAccessMask = vulkanBufferAccess(currentUsage)
	barrier.DstAccessMask = vulkanBufferAccess(targetUsage)
	barrier.SrcQueueFamilyIndex = vk.QueueFamilyIgnored
	barrier.DstQueueFamilyIndex = vk.QueueFamilyIgnored
	barrier.Buffer = b.VKBuffer
	barrier.Offset = 0
	barrier.Size = vk.DeviceSize(b.Size)

	b.Device.fn.CmdPipelineBarrier(commands, srcStages, dstStages, []vk.BufferMemoryBarrier{barrier}, nil)
}
