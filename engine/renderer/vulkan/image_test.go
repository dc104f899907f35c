package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

func TestLookupTransition(t *testing.T) {
	supported := []struct {
		old, new vk.ImageLayout
		srcStage vk.PipelineStageFlagBits
		dstStage vk.PipelineStageFlagBits
	}{
		{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit},
		{vk.ImageLayoutUndefined, vk.ImageLayoutTransferSrcOptimal,
			vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit},
		{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit},
		{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageFragmentShaderBit, vk.PipelineStageTransferBit},
		{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal,
			vk.PipelineStageFragmentShaderBit, vk.PipelineStageTransferBit},
		{vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit},
		{vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageFragmentShaderBit},
	}
	for _, tt := range supported {
		masks, err := lookupTransition(tt.old, tt.new)
		require.NoError(t, err, "transition %d -> %d", tt.old, tt.new)
		assert.Equal(t, vk.PipelineStageFlags(tt.srcStage), masks.srcStage)
		assert.Equal(t, vk.PipelineStageFlags(tt.dstStage), masks.dstStage)
	}
}

func TestLookupTransitionUnsupported(t *testing.T) {
	_, err := lookupTransition(vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedTransition)

	_, err = lookupTransition(vk.ImageLayoutGeneral, vk.ImageLayoutGeneral)
	assert.ErrorIs(t, err, core.ErrUnsupportedTransition)
}

func TestTransitionUndefinedDiscardsContents(t *testing.T) {
	// Transitions out of UNDEFINED must not wait on any prior access.
	masks, err := lookupTransition(vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Zero(t, masks.srcAccess)
}
