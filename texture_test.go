package nxt

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

var allTextureUsages = []TextureUsage{
	TextureUsageTransferSrc,
	TextureUsageTransferDst,
	TextureUsageSampled,
	TextureUsageStorage,
	TextureUsageOutputAttachment,
	TextureUsagePresent,
}

var allTextureFormats = []TextureFormat{
	TextureFormatRGBA8Unorm,
	TextureFormatRGBA8Uint,
	TextureFormatBGRA8Unorm,
	TextureFormatD32FloatS8Uint,
}

func TestUsageTranslationCoversEveryBitAndFormat(t *testing.T) {
	for _, format := range allTextureFormats {
		for _, usage := range allTextureUsages {
			if vulkanAccessFlags(usage, format) == 0 {
				t.Errorf("usage %#x format %d: no access flags", usage, format)
			}
			if vulkanPipelineStage(usage, format) == 0 {
				t.Errorf("usage %#x format %d: no pipeline stages", usage, format)
			}
			if layout := vulkanImageLayout(usage, format); layout == vk.ImageLayoutUndefined {
				t.Errorf("usage %#x format %d: undefined layout", usage, format)
			}
		}

		// None has a defined triple too: nothing to flush, nothing to wait
		// on, contents undefined.
		if vulkanAccessFlags(TextureUsageNone, format) != 0 {
			t.Errorf("format %d: None should require no access", format)
		}
		if got := vulkanPipelineStage(TextureUsageNone, format); got != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
			t.Errorf("format %d: None stage = %#x, want top of pipe", format, got)
		}
		if got := vulkanImageLayout(TextureUsageNone, format); got != vk.ImageLayoutUndefined {
			t.Errorf("format %d: None layout = %d, want undefined", format, got)
		}
	}
}

func TestLayoutSelection(t *testing.T) {
	color := TextureFormatRGBA8Unorm
	depth := TextureFormatD32FloatS8Uint

	cases := []struct {
		usage  TextureUsage
		format TextureFormat
		want   vk.ImageLayout
	}{
		{TextureUsageTransferDst, color, vk.ImageLayoutTransferDstOptimal},
		{TextureUsageSampled, color, vk.ImageLayoutShaderReadOnlyOptimal},
		{TextureUsageOutputAttachment, color, vk.ImageLayoutColorAttachmentOptimal},
		{TextureUsageOutputAttachment, depth, vk.ImageLayoutDepthStencilAttachmentOptimal},
		// Pinned to General even as a single bit.
		{TextureUsageTransferSrc, color, vk.ImageLayoutGeneral},
		{TextureUsageStorage, color, vk.ImageLayoutGeneral},
		{TextureUsagePresent, color, vk.ImageLayoutGeneral},
		// Any combination degrades to General.
		{TextureUsageSampled | TextureUsageTransferDst, color, vk.ImageLayoutGeneral},
		{TextureUsageSampled | TextureUsageOutputAttachment, depth, vk.ImageLayoutGeneral},
	}
	for _, c := range cases {
		if got := vulkanImageLayout(c.usage, c.format); got != c.want {
			t.Errorf("layout(%#x, %d) = %d, want %d", c.usage, c.format, got, c.want)
		}
	}
}

func TestDepthStencilFormatFlipsAttachmentTranslation(t *testing.T) {
	depth := TextureFormatD32FloatS8Uint

	wantAccess := vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	if got := vulkanAccessFlags(TextureUsageOutputAttachment, depth); got != wantAccess {
		t.Errorf("access = %#x, want depth/stencil attachment read+write", got)
	}

	wantStages := vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	if got := vulkanPipelineStage(TextureUsageOutputAttachment, depth); got != wantStages {
		t.Errorf("stages = %#x, want early+late fragment tests", got)
	}

	wantAspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	if got := vulkanAspectMask(depth); got != wantAspect {
		t.Errorf("aspect = %#x, want depth+stencil", got)
	}
	if got := vulkanAspectMask(TextureFormatBGRA8Unorm); got != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Errorf("color aspect = %#x, want color", got)
	}
}

func TestImageUsageTranslation(t *testing.T) {
	color := TextureFormatRGBA8Unorm
	usage := TextureUsageTransferDst | TextureUsageSampled | TextureUsageOutputAttachment
	want := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit | vk.ImageUsageColorAttachmentBit)
	if got := vulkanImageUsage(usage, color); got != want {
		t.Errorf("image usage = %#x, want %#x", got, want)
	}

	depthWant := vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	if got := vulkanImageUsage(TextureUsageOutputAttachment, TextureFormatD32FloatS8Uint); got != depthWant {
		t.Errorf("depth image usage = %#x, want %#x", got, depthWant)
	}
}

func createTestTexture(t *testing.T, d *Device, format TextureFormat) *Texture {
	t.Helper()
	texture, err := d.CreateTexture(TextureDescriptor{
		Format:       format,
		Width:        16,
		Height:       16,
		MipLevels:    4,
		AllowedUsage: TextureUsageTransferDst | TextureUsageSampled | TextureUsageOutputAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return texture
}

func TestTransitionUsageRecordsBarriers(t *testing.T) {
	d, fn := newTestDevice()
	texture := createTestTexture(t, d, TextureFormatRGBA8Unorm)

	for _, usage := range []TextureUsage{TextureUsageSampled, TextureUsageOutputAttachment, TextureUsageSampled} {
		if err := texture.TransitionUsage(usage); err != nil {
			t.Fatalf("TransitionUsage(%#x): %v", usage, err)
		}
	}

	if len(fn.barriers) != 3 {
		t.Fatalf("recorded %d barriers, want 3", len(fn.barriers))
	}

	// None -> Sampled: nothing precedes a fresh texture, so the source is
	// the topmost pipeline stage and the old layout is undefined.
	first := fn.barriers[0]
	if first.srcStages != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("first barrier src stages = %#x, want top of pipe", first.srcStages)
	}
	if len(first.imageBarriers) != 1 {
		t.Fatalf("first transition recorded %d image barriers, want 1", len(first.imageBarriers))
	}
	if first.imageBarriers[0].OldLayout != vk.ImageLayoutUndefined {
		t.Errorf("first barrier old layout = %d, want undefined", first.imageBarriers[0].OldLayout)
	}
	if first.imageBarriers[0].NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("first barrier new layout = %d, want shader read only", first.imageBarriers[0].NewLayout)
	}

	second := fn.barriers[1].imageBarriers[0]
	if second.OldLayout != vk.ImageLayoutShaderReadOnlyOptimal || second.NewLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("second barrier layouts = %d -> %d, want shader read only -> color attachment",
			second.OldLayout, second.NewLayout)
	}

	third := fn.barriers[2].imageBarriers[0]
	if third.OldLayout != vk.ImageLayoutColorAttachmentOptimal || third.NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("third barrier layouts = %d -> %d, want color attachment -> shader read only",
			third.OldLayout, third.NewLayout)
	}

	// The barrier covers every mip of the one layer.
	subresource := third.SubresourceRange
	if subresource.BaseMipLevel != 0 || subresource.LevelCount != 4 ||
		subresource.BaseArrayLayer != 0 || subresource.LayerCount != 1 {
		t.Errorf("subresource range = %+v, want all 4 mips of one layer", subresource)
	}
}

func TestTransitionToCurrentUsageIsNoop(t *testing.T) {
	d, fn := newTestDevice()
	texture := createTestTexture(t, d, TextureFormatRGBA8Unorm)

	if err := texture.TransitionUsage(TextureUsageSampled); err != nil {
		t.Fatalf("TransitionUsage: %v", err)
	}
	if err := texture.TransitionUsage(TextureUsageSampled); err != nil {
		t.Fatalf("TransitionUsage: %v", err)
	}
	if len(fn.barriers) != 1 {
		t.Errorf("recorded %d barriers, want 1: same-usage transition must not emit", len(fn.barriers))
	}
	if texture.Usage() != TextureUsageSampled {
		t.Errorf("usage = %#x, want sampled", texture.Usage())
	}
}

func TestTextureReleaseDefersDestruction(t *testing.T) {
	d, fn := newTestDevice()
	texture := createTestTexture(t, d, TextureFormatRGBA8Unorm)
	image := texture.VKImage

	if err := texture.TransitionUsage(TextureUsageTransferDst); err != nil {
		t.Fatalf("TransitionUsage: %v", err)
	}
	texture.Release()
	if fn.destroyedImages[image] != 0 {
		t.Fatal("image destroyed while its commands are still pending")
	}

	if err := d.SubmitPendingCommands(); err != nil {
		t.Fatalf("SubmitPendingCommands: %v", err)
	}
	fn.signal(0)
	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if fn.destroyedImages[image] != 1 {
		t.Errorf("image destroyed %d times, want once after its serial completed", fn.destroyedImages[image])
	}
	if len(fn.freedMemories) != 1 {
		t.Errorf("%d memory frees, want 1", len(fn.freedMemories))
	}
}

func TestCreateTextureAllocationFailureCleansUp(t *testing.T) {
	d, fn := newTestDevice()
	fn.failAllocateMemory = errOutOfMemory

	if _, err := d.CreateTexture(TextureDescriptor{
		Format:    TextureFormatRGBA8Unorm,
		Width:     16,
		Height:    16,
		MipLevels: 1,
	}); err == nil {
		t.Fatal("CreateTexture should fail when allocation fails")
	}

	if len(fn.createdImages) != 1 {
		t.Fatalf("created %d images, want 1", len(fn.createdImages))
	}
	if fn.destroyedImages[fn.createdImages[0]] != 1 {
		t.Error("the orphaned image must be destroyed on the failure path")
	}
}
