package nxt

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ErrDeviceLost is the cause of every error returned after the native API
// reports an unrecoverable failure. Once lost, a device never recovers; all
// further operations fail fast with the latched error.
var ErrDeviceLost = errors.New("device lost")

type fenceInFlight struct {
	fence  vk.Fence
	serial Serial
}

// Device owns one submission timeline and everything keyed to it: the serial
// counters, the in-flight fence queue, the command buffer recycler, the
// fenced deleter, the bind group layout cache, and the memory allocator.
//
// A Device must be driven from a single goroutine. The only concurrency in
// the design is between the CPU recording work and the GPU executing it, and
// that is coordinated entirely through serials and fences.
type Device struct {
	fn    Functions
	queue vk.Queue

	allocator Allocator
	deleter   *FencedDeleter

	// In-flight tracking. Each submission gets the next serial and a fence;
	// fences signal in submission order because there is a single queue, so
	// completedSerial is simply the serial of the last signaled fence.
	nextSerial      Serial
	completedSerial Serial
	fencesInFlight  []fenceInFlight
	unusedFences    []vk.Fence

	pendingCommands  *CommandPoolAndBuffer
	unusedCommands   []*CommandPoolAndBuffer
	commandsInFlight SerialQueue[*CommandPoolAndBuffer]

	layoutCache map[uint64][]*BindGroupLayout

	lostErr error
}

// NewDevice wraps queue on a device reached through fn. Resources are backed
// by one dedicated memory allocation each; use NewDeviceWithAllocator to
// plug in a real sub-allocator.
func NewDevice(fn Functions, queue vk.Queue) *Device {
	return NewDeviceWithAllocator(fn, queue, nil)
}

func NewDeviceWithAllocator(fn Functions, queue vk.Queue, allocator Allocator) *Device {
	d := &Device{
		fn:          fn,
		queue:       queue,
		nextSerial:  1,
		layoutCache: make(map[uint64][]*BindGroupLayout),
	}
	d.deleter = &FencedDeleter{device: d}
	if allocator == nil {
		allocator = &DedicatedAllocator{device: d}
	}
	d.allocator = allocator
	return d
}

// Deleter returns the device's fenced deleter.
func (d *Device) Deleter() *FencedDeleter {
	return d.deleter
}

// CompletedSerial returns the highest serial the GPU has confirmed finished.
func (d *Device) CompletedSerial() Serial {
	return d.completedSerial
}

// PendingSerial returns the serial the next submission will be assigned.
// Work recorded now, or resources it references, complete no later than this
// serial.
func (d *Device) PendingSerial() Serial {
	return d.nextSerial
}

func (d *Device) allocateSerial() Serial {
	serial := d.nextSerial
	d.nextSerial++
	return serial
}

// lost latches err as the device-lost error and returns it. The first
// failure wins; everything after reports the same cause.
func (d *Device) lost(err error) error {
	if d.lostErr == nil {
		d.lostErr = err
	}
	return d.lostErr
}

func (d *Device) getUnusedFence() (vk.Fence, error) {
	if n := len(d.unusedFences); n > 0 {
		fence := d.unusedFences[n-1]
		d.unusedFences = d.unusedFences[:n-1]
		if err := d.fn.ResetFence(fence); err != nil {
			return vk.NullFence, d.lost(errors.Wrap(err, "resetting pooled fence"))
		}
		return fence, nil
	}
	fence, err := d.fn.CreateFence()
	if err != nil {
		return vk.NullFence, err
	}
	return fence, nil
}

// checkPassedFences polls in-flight fences in submission order, stopping at
// the first that has not signaled, and advances completedSerial to the last
// signaled one. Fences never signal out of order on a single queue, so
// nothing past the first unsignaled fence can be done either.
func (d *Device) checkPassedFences() error {
	for len(d.fencesInFlight) > 0 {
		record := d.fencesInFlight[0]
		status := d.fn.GetFenceStatus(record.fence)
		if status == vk.NotReady {
			break
		}
		if status != vk.Success {
			return d.lost(errors.Wrapf(ErrDeviceLost, "fence status query failed (%d)", status))
		}
		d.completedSerial = record.serial
		d.unusedFences = append(d.unusedFences, record.fence)
		d.fencesInFlight = d.fencesInFlight[1:]
	}
	return nil
}

// Tick advances the device: it polls fences, destroys handles whose guarding
// serial has passed, and recycles completed command buffers. Call it
// periodically; nothing is reclaimed without it.
func (d *Device) Tick() error {
	if d.lostErr != nil {
		return d.lostErr
	}
	if err := d.checkPassedFences(); err != nil {
		return err
	}
	d.deleter.Tick(d.completedSerial)
	return d.recycleCompletedCommands()
}

// WaitIdle blocks until the GPU has finished every submitted serial and all
// completion-gated reclamation has run. This is the only blocking primitive
// in the package; it exists for teardown, not for the steady-state path.
func (d *Device) WaitIdle() error {
	if d.lostErr != nil {
		return d.lostErr
	}
	if err := d.fn.QueueWaitIdle(d.queue); err != nil {
		return d.lost(errors.Wrap(err, "waiting for queue idle"))
	}
	for d.completedSerial < d.nextSerial-1 {
		if err := d.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Destroy drains in-flight work and frees the pooled fences and command
// buffers. On a lost device the drain is skipped and the remaining native
// objects are destroyed directly. The device is unusable afterwards.
func (d *Device) Destroy() error {
	var drainErr error
	if d.lostErr == nil {
		drainErr = d.WaitIdle()
	}

	if d.pendingCommands != nil {
		d.fn.DestroyCommandPool(d.pendingCommands.VKCommandPool)
		d.pendingCommands = nil
	}
	if d.lostErr == nil && drainErr == nil {
		// The queue is idle, so handles enqueued under the still-pending
		// serial can no longer be referenced by anything.
		d.deleter.Tick(d.nextSerial)
	}
	d.freeCommands()
	for _, fence := range d.unusedFences {
		d.fn.DestroyFence(fence)
	}
	d.unusedFences = nil

	if d.lostErr == nil && drainErr == nil {
		if !d.commandsInFlight.Empty() {
			panic(fmt.Sprintf("nxt: destroying a device with commands in flight since serial %d",
				d.commandsInFlight.FirstSerial()))
		}
		if !d.deleter.Empty() {
			panic("nxt: destroying a device with undrained deletions")
		}
	}

	// A lost device skips the drain, but its child objects still have to
	// be destroyed. The GPU is no longer executing them, so release
	// whatever is left.
	for _, record := range d.fencesInFlight {
		d.fn.DestroyFence(record.fence)
	}
	d.fencesInFlight = nil
	for _, commands := range d.commandsInFlight.ReclaimUpTo(d.nextSerial) {
		d.fn.DestroyCommandPool(commands.VKCommandPool)
	}
	d.deleter.Tick(d.nextSerial)

	return drainErr
}
