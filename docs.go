/*
Package nxt implements the resource-lifecycle and synchronization engine of
a GPU command-execution runtime atop Vulkan. It sits between a validating
front-end, which hands it well-formed resource descriptions, and the native
API, which it reaches only through a pluggable table of entry points.

The problem this package solves is that the CPU and the GPU disagree about
time. The CPU finishes a "call" the moment it returns; the GPU may not run
the corresponding commands for milliseconds. Freeing or reusing anything the
GPU might still touch is a use-after-free that no CPU-side tooling will
catch. Everything here is organized around making that class of bug
impossible by construction.

The mechanism is a single monotonic serial. Every queue submission is
assigned the next serial and paired with a fence. Because a device uses one
queue, fences signal in submission order, so polling them front to back
yields the highest completed serial. Anything that must wait for the GPU -
recycling a command buffer, destroying an image, releasing memory - is
enqueued under the serial of the submission that could last touch it, and
reclaimed once that serial completes:

	device := nxt.NewDevice(fn, queue)
	texture, _ := device.CreateTexture(descriptor)
	texture.TransitionUsage(nxt.TextureUsageTransferDst)
	// ... record a copy into the pending command buffer ...
	device.SubmitPendingCommands()
	texture.Release()  // destruction waits for the submission above
	device.Tick()      // polls fences, reclaims what has completed

Textures and buffers carry their current usage as CPU-tracked state. Moving
a resource to a new usage synthesizes exactly the pipeline barrier that
transition requires and records it into the pending command buffer; the
translation from usages to native access masks, stages and image layouts
lives in this package so callers never spell out a barrier by hand.

Immutable descriptions that tend to repeat, like bind group layouts, are
canonicalized: structurally identical requests share one reference-counted
instance, so layout equality elsewhere in a renderer is pointer equality.

A Device and the objects it creates must be used from one goroutine. The
package contains no locks and no blocking calls on the steady-state path;
WaitIdle exists for teardown.
*/
package nxt
