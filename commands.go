package nxt

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandPoolAndBuffer is one reusable unit of command recording: a
// transient pool and the single primary buffer allocated from it. Units are
// created on demand and then cycle between the free list, the pending slot
// and the in-flight queue for the life of the device; they are only
// destroyed at teardown.
type CommandPoolAndBuffer struct {
	VKCommandPool   vk.CommandPool
	VKCommandBuffer vk.CommandBuffer
}

// GetPendingCommandBuffer returns the command buffer new work should be
// recorded into, opening one if none is open. At most one unit is pending at
// a time; repeated calls between submissions return the same buffer.
func (d *Device) GetPendingCommandBuffer() (vk.CommandBuffer, error) {
	var none vk.CommandBuffer
	if d.lostErr != nil {
		return none, d.lostErr
	}
	if d.pendingCommands != nil {
		return d.pendingCommands.VKCommandBuffer, nil
	}

	commands, err := d.getUnusedCommands()
	if err != nil {
		return none, err
	}
	if err := d.fn.BeginCommandBuffer(commands.VKCommandBuffer); err != nil {
		d.unusedCommands = append(d.unusedCommands, commands)
		return none, err
	}
	d.pendingCommands = commands
	return commands.VKCommandBuffer, nil
}

func (d *Device) getUnusedCommands() (*CommandPoolAndBuffer, error) {
	if n := len(d.unusedCommands); n > 0 {
		commands := d.unusedCommands[n-1]
		d.unusedCommands = d.unusedCommands[:n-1]
		return commands, nil
	}

	pool, err := d.fn.CreateCommandPool()
	if err != nil {
		return nil, err
	}
	buffer, err := d.fn.AllocateCommandBuffer(pool)
	if err != nil {
		d.fn.DestroyCommandPool(pool)
		return nil, err
	}
	return &CommandPoolAndBuffer{VKCommandPool: pool, VKCommandBuffer: buffer}, nil
}

// SubmitPendingCommands ends recording and submits the pending unit with a
// fresh serial and fence, moving it to the in-flight queue. A no-op when
// nothing is pending.
func (d *Device) SubmitPendingCommands() error {
	if d.lostErr != nil {
		return d.lostErr
	}
	if d.pendingCommands == nil {
		return nil
	}

	// The fence comes first: if acquiring it fails the unit is still
	// recording and the submit can simply be retried, whereas an ended
	// buffer could not be recorded into or ended again.
	fence, err := d.getUnusedFence()
	if err != nil {
		return err
	}
	if err := d.fn.EndCommandBuffer(d.pendingCommands.VKCommandBuffer); err != nil {
		d.unusedFences = append(d.unusedFences, fence)
		return d.lost(err)
	}

	serial := d.allocateSerial()
	if err := d.fn.QueueSubmit(d.queue, d.pendingCommands.VKCommandBuffer, fence); err != nil {
		d.unusedFences = append(d.unusedFences, fence)
		return d.lost(err)
	}

	d.fencesInFlight = append(d.fencesInFlight, fenceInFlight{fence: fence, serial: serial})
	d.commandsInFlight.Enqueue(serial, d.pendingCommands)
	d.pendingCommands = nil
	return nil
}

// recycleCompletedCommands resets every unit whose serial has completed and
// returns it to the free list.
func (d *Device) recycleCompletedCommands() error {
	for _, commands := range d.commandsInFlight.ReclaimUpTo(d.completedSerial) {
		if err := d.fn.ResetCommandPool(commands.VKCommandPool); err != nil {
			return d.lost(err)
		}
		d.unusedCommands = append(d.unusedCommands, commands)
	}
	return nil
}

// freeCommands destroys the free list. Teardown only; destroying the pool
// frees its buffer with it.
func (d *Device) freeCommands() {
	for _, commands := range d.unusedCommands {
		d.fn.DestroyCommandPool(commands.VKCommandPool)
	}
	d.unusedCommands = nil
}
