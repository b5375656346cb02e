package nxt

import (
	vk "github.com/vulkan-go/vulkan"
)

// Allocation is the opaque result of a memory request: a device memory
// handle plus the offset at which the resource must be bound.
type Allocation struct {
	VKDeviceMemory vk.DeviceMemory
	Offset         vk.DeviceSize
	Size           vk.DeviceSize
}

// Allocator is the contract between resource creation and the device-memory
// allocator. How an implementation carves up device memory is its own
// business; the device only issues requests and returns allocations.
//
// Free must not release memory out from under in-flight GPU work; the
// implementation is expected to gate the actual release on serial
// completion.
type Allocator interface {
	Allocate(requirements vk.MemoryRequirements, hostVisible bool) (Allocation, error)
	Free(a *Allocation)
}

// DedicatedAllocator satisfies Allocator with one device-memory object per
// request. No sub-allocation, no reuse; freed memory is handed to the fenced
// deleter so it outlives any submission that may still reference it.
type DedicatedAllocator struct {
	device *Device
}

func (da *DedicatedAllocator) Allocate(requirements vk.MemoryRequirements, hostVisible bool) (Allocation, error) {
	properties := vk.MemoryPropertyDeviceLocalBit
	if hostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}

	index, err := da.device.fn.FindMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return Allocation{}, err
	}

	memory, err := da.device.fn.AllocateMemory(requirements.Size, index)
	if err != nil {
		return Allocation{}, err
	}

	return Allocation{VKDeviceMemory: memory, Offset: 0, Size: requirements.Size}, nil
}

func (da *DedicatedAllocator) Free(a *Allocation) {
	if a.VKDeviceMemory == vk.NullDeviceMemory {
		return
	}
	da.device.deleter.DeleteMemoryWhenUnused(a.VKDeviceMemory)
	a.VKDeviceMemory = vk.NullDeviceMemory
}
