package nxt

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

var errOutOfMemory = errors.New("out of device memory")

// fakeHandle mints a distinct, comparable native handle. The pointee keeps
// the handle unique for the life of the test. Handles are only ever stored
// as cgo notinheap pointer types, which the garbage collector and escape
// analysis do not track, so the pointee must be retained here explicitly or
// every call yields the same stack address.
var liveFakeHandles []*byte

func fakeHandle() unsafe.Pointer {
	p := new(byte)
	liveFakeHandles = append(liveFakeHandles, p)
	return unsafe.Pointer(p)
}

type fakeSubmission struct {
	commands vk.CommandBuffer
	fence    vk.Fence
}

type fakeBarrier struct {
	srcStages      vk.PipelineStageFlags
	dstStages      vk.PipelineStageFlags
	bufferBarriers []vk.BufferMemoryBarrier
	imageBarriers  []vk.ImageMemoryBarrier
}

// fakeFunctions stands in for the native entry points so tests can drive
// fence signaling and observe creation and destruction without a GPU.
type fakeFunctions struct {
	fenceStatus     map[vk.Fence]vk.Result
	destroyedFences map[vk.Fence]int
	createdFences   int
	resetFences     int

	createdPools   int
	resetPools     int
	destroyedPools map[vk.CommandPool]int

	begun       map[vk.CommandBuffer]int
	ended       map[vk.CommandBuffer]int
	submissions []fakeSubmission

	barriers []fakeBarrier

	createdImages   []vk.Image
	destroyedImages map[vk.Image]int

	createdBuffers   []vk.Buffer
	destroyedBuffers map[vk.Buffer]int

	allocatedMemories int
	freedMemories     map[vk.DeviceMemory]int

	createdLayouts   []vk.DescriptorSetLayout
	destroyedLayouts map[vk.DescriptorSetLayout]int

	queueWaitIdles int

	failAllocateMemory error
	failBindImage      error
	failCreateFence    error
}

func newFakeFunctions() *fakeFunctions {
	return &fakeFunctions{
		fenceStatus:      make(map[vk.Fence]vk.Result),
		destroyedFences:  make(map[vk.Fence]int),
		destroyedPools:   make(map[vk.CommandPool]int),
		begun:            make(map[vk.CommandBuffer]int),
		ended:            make(map[vk.CommandBuffer]int),
		destroyedImages:  make(map[vk.Image]int),
		destroyedBuffers: make(map[vk.Buffer]int),
		freedMemories:    make(map[vk.DeviceMemory]int),
		destroyedLayouts: make(map[vk.DescriptorSetLayout]int),
	}
}

// signal marks the fence of the i-th submission as signaled.
func (f *fakeFunctions) signal(i int) {
	f.fenceStatus[f.submissions[i].fence] = vk.Success
}

func (f *fakeFunctions) CreateFence() (vk.Fence, error) {
	if f.failCreateFence != nil {
		return vk.NullFence, f.failCreateFence
	}
	fence := vk.Fence(fakeHandle())
	f.createdFences++
	f.fenceStatus[fence] = vk.NotReady
	return fence, nil
}

func (f *fakeFunctions) ResetFence(fence vk.Fence) error {
	f.resetFences++
	f.fenceStatus[fence] = vk.NotReady
	return nil
}

func (f *fakeFunctions) GetFenceStatus(fence vk.Fence) vk.Result {
	return f.fenceStatus[fence]
}

func (f *fakeFunctions) DestroyFence(fence vk.Fence) {
	f.destroyedFences[fence]++
}

func (f *fakeFunctions) CreateCommandPool() (vk.CommandPool, error) {
	f.createdPools++
	return vk.CommandPool(fakeHandle()), nil
}

func (f *fakeFunctions) ResetCommandPool(pool vk.CommandPool) error {
	f.resetPools++
	return nil
}

func (f *fakeFunctions) DestroyCommandPool(pool vk.CommandPool) {
	f.destroyedPools[pool]++
}

func (f *fakeFunctions) AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error) {
	return vk.CommandBuffer(fakeHandle()), nil
}

func (f *fakeFunctions) BeginCommandBuffer(commands vk.CommandBuffer) error {
	f.begun[commands]++
	return nil
}

func (f *fakeFunctions) EndCommandBuffer(commands vk.CommandBuffer) error {
	f.ended[commands]++
	return nil
}

func (f *fakeFunctions) QueueSubmit(queue vk.Queue, commands vk.CommandBuffer, fence vk.Fence) error {
	f.submissions = append(f.submissions, fakeSubmission{commands: commands, fence: fence})
	return nil
}

func (f *fakeFunctions) QueueWaitIdle(queue vk.Queue) error {
	f.queueWaitIdles++
	// An idle queue means every submitted fence has signaled.
	for fence := range f.fenceStatus {
		f.fenceStatus[fence] = vk.Success
	}
	return nil
}

func (f *fakeFunctions) CmdPipelineBarrier(commands vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags,
	bufferBarriers []vk.BufferMemoryBarrier, imageBarriers []vk.ImageMemoryBarrier) {
	f.barriers = append(f.barriers, fakeBarrier{
		srcStages:      srcStages,
		dstStages:      dstStages,
		bufferBarriers: bufferBarriers,
		imageBarriers:  imageBarriers,
	})
}

func (f *fakeFunctions) CreateImage(createInfo *vk.ImageCreateInfo) (vk.Image, error) {
	image := vk.Image(fakeHandle())
	f.createdImages = append(f.createdImages, image)
	return image, nil
}

func (f *fakeFunctions) DestroyImage(image vk.Image) {
	f.destroyedImages[image]++
}

func (f *fakeFunctions) GetImageMemoryRequirements(image vk.Image) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: 4096, Alignment: 256, MemoryTypeBits: 1}
}

func (f *fakeFunctions) BindImageMemory(image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	return f.failBindImage
}

func (f *fakeFunctions) CreateBuffer(createInfo *vk.BufferCreateInfo) (vk.Buffer, error) {
	buffer := vk.Buffer(fakeHandle())
	f.createdBuffers = append(f.createdBuffers, buffer)
	return buffer, nil
}

func (f *fakeFunctions) DestroyBuffer(buffer vk.Buffer) {
	f.destroyedBuffers[buffer]++
}

func (f *fakeFunctions) GetBufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: 256, Alignment: 16, MemoryTypeBits: 1}
}

func (f *fakeFunctions) BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	return nil
}

func (f *fakeFunctions) CreateDescriptorSetLayout(createInfo *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	layout := vk.DescriptorSetLayout(fakeHandle())
	f.createdLayouts = append(f.createdLayouts, layout)
	return layout, nil
}

func (f *fakeFunctions) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	f.destroyedLayouts[layout]++
}

func (f *fakeFunctions) AllocateMemory(size vk.DeviceSize, memoryTypeIndex uint32) (vk.DeviceMemory, error) {
	if f.failAllocateMemory != nil {
		return vk.NullDeviceMemory, f.failAllocateMemory
	}
	f.allocatedMemories++
	return vk.DeviceMemory(fakeHandle()), nil
}

func (f *fakeFunctions) FreeMemory(memory vk.DeviceMemory) {
	f.freedMemories[memory]++
}

func (f *fakeFunctions) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	return 0, nil
}

func newTestDevice() (*Device, *fakeFunctions) {
	fn := newFakeFunctions()
	return NewDevice(fn, vk.Queue(fakeHandle())), fn
}

// submitOne opens the pending command buffer and submits it, failing the
// test on error.
type testingT interface {
	Helper()
	Fatalf(format string, args ...interface{})
}

func submitOne(t testingT, d *Device) {
	t.Helper()
	if _, err := d.GetPendingCommandBuffer(); err != nil {
		t.Fatalf("GetPendingCommandBuffer: %v", err)
	}
	if err := d.SubmitPendingCommands(); err != nil {
		t.Fatalf("SubmitPendingCommands: %v", err)
	}
}
