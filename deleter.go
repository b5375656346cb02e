package nxt

import (
	vk "github.com/vulkan-go/vulkan"
)

// FencedDeleter destroys native handles once the GPU has confirmed
// completion of every submission that could reference them. Handles are
// enqueued at the device's pending serial, the serial the next submission
// will receive, because recorded-but-unsubmitted commands may still use
// them.
type FencedDeleter struct {
	device *Device

	imagesToDelete   SerialQueue[vk.Image]
	buffersToDelete  SerialQueue[vk.Buffer]
	memoriesToDelete SerialQueue[vk.DeviceMemory]
	fencesToDelete   SerialQueue[vk.Fence]
	poolsToDelete    SerialQueue[vk.CommandPool]
	layoutsToDelete  SerialQueue[vk.DescriptorSetLayout]
}

func (fd *FencedDeleter) DeleteImageWhenUnused(image vk.Image) {
	fd.imagesToDelete.Enqueue(fd.device.PendingSerial(), image)
}

func (fd *FencedDeleter) DeleteBufferWhenUnused(buffer vk.Buffer) {
	fd.buffersToDelete.Enqueue(fd.device.PendingSerial(), buffer)
}

func (fd *FencedDeleter) DeleteMemoryWhenUnused(memory vk.DeviceMemory) {
	fd.memoriesToDelete.Enqueue(fd.device.PendingSerial(), memory)
}

func (fd *FencedDeleter) DeleteFenceWhenUnused(fence vk.Fence) {
	fd.fencesToDelete.Enqueue(fd.device.PendingSerial(), fence)
}

func (fd *FencedDeleter) DeleteCommandPoolWhenUnused(pool vk.CommandPool) {
	fd.poolsToDelete.Enqueue(fd.device.PendingSerial(), pool)
}

func (fd *FencedDeleter) DeleteDescriptorSetLayoutWhenUnused(layout vk.DescriptorSetLayout) {
	fd.layoutsToDelete.Enqueue(fd.device.PendingSerial(), layout)
}

// Tick destroys every handle whose guarding serial has completed.
func (fd *FencedDeleter) Tick(completedSerial Serial) {
	fn := fd.device.fn

	for _, image := range fd.imagesToDelete.ReclaimUpTo(completedSerial) {
		fn.DestroyImage(image)
	}
	for _, buffer := range fd.buffersToDelete.ReclaimUpTo(completedSerial) {
		fn.DestroyBuffer(buffer)
	}
	// Memory after images and buffers: a resource must be unbound before its
	// backing memory goes away.
	for _, memory := range fd.memoriesToDelete.ReclaimUpTo(completedSerial) {
		fn.FreeMemory(memory)
	}
	for _, fence := range fd.fencesToDelete.ReclaimUpTo(completedSerial) {
		fn.DestroyFence(fence)
	}
	for _, pool := range fd.poolsToDelete.ReclaimUpTo(completedSerial) {
		fn.DestroyCommandPool(pool)
	}
	for _, layout := range fd.layoutsToDelete.ReclaimUpTo(completedSerial) {
		fn.DestroyDescriptorSetLayout(layout)
	}
}

// Empty reports whether any handle is still awaiting deletion.
func (fd *FencedDeleter) Empty() bool {
	return fd.imagesToDelete.Empty() &&
		fd.buffersToDelete.Empty() &&
		fd.memoriesToDelete.Empty() &&
		fd.fencesToDelete.Empty() &&
		fd.poolsToDelete.Empty() &&
		fd.layoutsToDelete.Empty()
}
