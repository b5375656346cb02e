package nxt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Functions is the table of native entry points the device drives. Loading
// and dispatch of the underlying API live outside this package; the device
// only ever calls through this table, so tests can substitute a fake and the
// real table can be backed by whatever loader the application uses.
type Functions interface {
	CreateFence() (vk.Fence, error)
	ResetFence(fence vk.Fence) error
	GetFenceStatus(fence vk.Fence) vk.Result
	DestroyFence(fence vk.Fence)

	CreateCommandPool() (vk.CommandPool, error)
	ResetCommandPool(pool vk.CommandPool) error
	DestroyCommandPool(pool vk.CommandPool)
	AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error)
	BeginCommandBuffer(commands vk.CommandBuffer) error
	EndCommandBuffer(commands vk.CommandBuffer) error

	QueueSubmit(queue vk.Queue, commands vk.CommandBuffer, fence vk.Fence) error
	QueueWaitIdle(queue vk.Queue) error

	CmdPipelineBarrier(commands vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags,
		bufferBarriers []vk.BufferMemoryBarrier, imageBarriers []vk.ImageMemoryBarrier)

	CreateImage(createInfo *vk.ImageCreateInfo) (vk.Image, error)
	DestroyImage(image vk.Image)
	GetImageMemoryRequirements(image vk.Image) vk.MemoryRequirements
	BindImageMemory(image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) error

	CreateBuffer(createInfo *vk.BufferCreateInfo) (vk.Buffer, error)
	DestroyBuffer(buffer vk.Buffer)
	GetBufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements
	BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error

	CreateDescriptorSetLayout(createInfo *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout)

	AllocateMemory(size vk.DeviceSize, memoryTypeIndex uint32) (vk.DeviceMemory, error)
	FreeMemory(memory vk.DeviceMemory)
	FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error)
}

// VulkanFunctions dispatches to the real Vulkan entry points.
type VulkanFunctions struct {
	VKPhysicalDevice vk.PhysicalDevice
	VKDevice         vk.Device
	QueueFamilyIndex uint32
}

func (f *VulkanFunctions) CreateFence() (vk.Fence, error) {
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo

	var fence vk.Fence
	err := vk.Error(vk.CreateFence(f.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return vk.NullFence, errors.Wrap(err, "vkCreateFence")
	}
	return fence, nil
}

func (f *VulkanFunctions) ResetFence(fence vk.Fence) error {
	err := vk.Error(vk.ResetFences(f.VKDevice, 1, []vk.Fence{fence}))
	if err != nil {
		return errors.Wrap(err, "vkResetFences")
	}
	return nil
}

func (f *VulkanFunctions) GetFenceStatus(fence vk.Fence) vk.Result {
	return vk.GetFenceStatus(f.VKDevice, fence)
}

func (f *VulkanFunctions) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(f.VKDevice, fence, nil)
}

func (f *VulkanFunctions) CreateCommandPool() (vk.CommandPool, error) {
	var commandPoolCreateInfo = vk.CommandPoolCreateInfo{}
	commandPoolCreateInfo.SType = vk.StructureTypeCommandPoolCreateInfo
	commandPoolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	commandPoolCreateInfo.QueueFamilyIndex = f.QueueFamilyIndex

	var commandPool vk.CommandPool
	err := vk.Error(vk.CreateCommandPool(f.VKDevice, &commandPoolCreateInfo, nil, &commandPool))
	if err != nil {
		return vk.NullCommandPool, errors.Wrap(err, "vkCreateCommandPool")
	}
	return commandPool, nil
}

func (f *VulkanFunctions) ResetCommandPool(pool vk.CommandPool) error {
	err := vk.Error(vk.ResetCommandPool(f.VKDevice, pool, 0))
	if err != nil {
		return errors.Wrap(err, "vkResetCommandPool")
	}
	return nil
}

func (f *VulkanFunctions) DestroyCommandPool(pool vk.CommandPool) {
	vk.DestroyCommandPool(f.VKDevice, pool, nil)
}

func (f *VulkanFunctions) AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error) {
	var commandBufferAllocateInfo = vk.CommandBufferAllocateInfo{}
	commandBufferAllocateInfo.SType = vk.StructureTypeCommandBufferAllocateInfo
	commandBufferAllocateInfo.CommandPool = pool
	commandBufferAllocateInfo.Level = vk.CommandBufferLevelPrimary
	commandBufferAllocateInfo.CommandBufferCount = 1

	commands := make([]vk.CommandBuffer, 1)
	err := vk.Error(vk.AllocateCommandBuffers(f.VKDevice, &commandBufferAllocateInfo, commands))
	if err != nil {
		var none vk.CommandBuffer
		return none, errors.Wrap(err, "vkAllocateCommandBuffers")
	}
	return commands[0], nil
}

func (f *VulkanFunctions) BeginCommandBuffer(commands vk.CommandBuffer) error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)

	err := vk.Error(vk.BeginCommandBuffer(commands, &beginInfo))
	if err != nil {
		return errors.Wrap(err, "vkBeginCommandBuffer")
	}
	return nil
}

func (f *VulkanFunctions) EndCommandBuffer(commands vk.CommandBuffer) error {
	err := vk.Error(vk.EndCommandBuffer(commands))
	if err != nil {
		return errors.Wrap(err, "vkEndCommandBuffer")
	}
	return nil
}

func (f *VulkanFunctions) QueueSubmit(queue vk.Queue, commands vk.CommandBuffer, fence vk.Fence) error {
	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = 1
	submitInfo.PCommandBuffers = []vk.CommandBuffer{commands}

	err := vk.Error(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence))
	if err != nil {
		return errors.Wrap(err, "vkQueueSubmit")
	}
	return nil
}

func (f *VulkanFunctions) QueueWaitIdle(queue vk.Queue) error {
	err := vk.Error(vk.QueueWaitIdle(queue))
	if err != nil {
		return errors.Wrap(err, "vkQueueWaitIdle")
	}
	return nil
}

func (f *VulkanFunctions) CmdPipelineBarrier(commands vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags,
	bufferBarriers []vk.BufferMemoryBarrier, imageBarriers []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(commands, srcStages, dstStages, 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (f *VulkanFunctions) CreateImage(createInfo *vk.ImageCreateInfo) (vk.Image, error) {
	var image vk.Image
	err := vk.Error(vk.CreateImage(f.VKDevice, createInfo, nil, &image))
	if err != nil {
		return vk.NullImage, errors.Wrap(err, "vkCreateImage")
	}
	return image, nil
}

func (f *VulkanFunctions) DestroyImage(image vk.Image) {
	vk.DestroyImage(f.VKDevice, image, nil)
}

func (f *VulkanFunctions) GetImageMemoryRequirements(image vk.Image) vk.MemoryRequirements {
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(f.VKDevice, image, &memoryRequirements)
	memoryRequirements.Deref()
	return memoryRequirements
}

func (f *VulkanFunctions) BindImageMemory(image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	err := vk.Error(vk.BindImageMemory(f.VKDevice, image, memory, offset))
	if err != nil {
		return errors.Wrap(err, "vkBindImageMemory")
	}
	return nil
}

func (f *VulkanFunctions) CreateBuffer(createInfo *vk.BufferCreateInfo) (vk.Buffer, error) {
	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(f.VKDevice, createInfo, nil, &buffer))
	if err != nil {
		return vk.NullBuffer, errors.Wrap(err, "vkCreateBuffer")
	}
	return buffer, nil
}

func (f *VulkanFunctions) DestroyBuffer(buffer vk.Buffer) {
	vk.DestroyBuffer(f.VKDevice, buffer, nil)
}

func (f *VulkanFunctions) GetBufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements {
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(f.VKDevice, buffer, &memoryRequirements)
	memoryRequirements.Deref()
	return memoryRequirements
}

func (f *VulkanFunctions) BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	err := vk.Error(vk.BindBufferMemory(f.VKDevice, buffer, memory, offset))
	if err != nil {
		return errors.Wrap(err, "vkBindBufferMemory")
	}
	return nil
}

func (f *VulkanFunctions) CreateDescriptorSetLayout(createInfo *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(f.VKDevice, createInfo, nil, &layout))
	if err != nil {
		return vk.NullDescriptorSetLayout, errors.Wrap(err, "vkCreateDescriptorSetLayout")
	}
	return layout, nil
}

func (f *VulkanFunctions) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(f.VKDevice, layout, nil)
}

func (f *VulkanFunctions) AllocateMemory(size vk.DeviceSize, memoryTypeIndex uint32) (vk.DeviceMemory, error) {
	var allocateInfo = vk.MemoryAllocateInfo{}
	allocateInfo.SType = vk.StructureTypeMemoryAllocateInfo
	allocateInfo.AllocationSize = size
	allocateInfo.MemoryTypeIndex = memoryTypeIndex

	var memory vk.DeviceMemory
	err := vk.Error(vk.AllocateMemory(f.VKDevice, &allocateInfo, nil, &memory))
	if err != nil {
		return vk.NullDeviceMemory, errors.Wrap(err, "vkAllocateMemory")
	}
	return memory, nil
}

func (f *VulkanFunctions) FreeMemory(memory vk.DeviceMemory) {
	vk.FreeMemory(f.VKDevice, memory, nil)
}

func (f *VulkanFunctions) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(f.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if vk.MemoryPropertyFlagBits(memoryType.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, errors.New("no compatible memory type")
}
