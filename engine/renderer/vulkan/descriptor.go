package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// DescriptorLayoutBuilder accumulates bindings for one set layout.
type DescriptorLayoutBuilder struct {
	bindings []vk.DescriptorSetLayoutBinding
}

func NewDescriptorLayoutBuilder() *DescriptorLayoutBuilder {
	return &DescriptorLayoutBuilder{}
}

func (b *DescriptorLayoutBuilder) AddBinding(binding uint32, descriptorType vk.DescriptorType, count uint32, stages vk.ShaderStageFlags) *DescriptorLayoutBuilder {
	b.bindings = append(b.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: count,
		StageFlags:      stages,
	})
	return b
}

func (b *DescriptorLayoutBuilder) Create(context *VulkanContext) (vk.DescriptorSetLayout, error) {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(b.bindings)),
		PBindings:    b.bindings,
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, fmt.Errorf("vkCreateDescriptorSetLayout failed with %s", ResultString(res))
	}
	return layout, nil
}

// CreateDescriptorPool sizes a pool for the given per-type counts.
func CreateDescriptorPool(context *VulkanContext, maxSets uint32, sizes map[vk.DescriptorType]uint32) (vk.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for descriptorType, count := range sizes {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            descriptorType,
			DescriptorCount: count,
		})
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		return vk.NullDescriptorPool, fmt.Errorf("vkCreateDescriptorPool failed with %s", ResultString(res))
	}
	return pool, nil
}

type queuedWrite struct {
	binding        uint32
	descriptorType vk.DescriptorType
	buffers        []vk.DescriptorBufferInfo
	images         []vk.DescriptorImageInfo
}

// DescriptorSet wraps an allocated set. Updates are queued on the host and
// flushed in one vkUpdateDescriptorSets call by Commit.
type DescriptorSet struct {
	Handle vk.DescriptorSet
	Layout vk.DescriptorSetLayout

	queued []queuedWrite
}

func AllocateDescriptorSet(context *VulkanContext, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (*DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	var handle vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkAllocateDescriptorSets failed with %s", ResultString(res))
	}
	return &DescriptorSet{Handle: handle, Layout: layout}, nil
}

// QueueUniformBuffer stages a uniform buffer write for binding.
func (ds *DescriptorSet) QueueUniformBuffer(binding uint32, buffer *VulkanBuffer, offset, size vk.DeviceSize) *DescriptorSet {
	ds.queued = append(ds.queued, queuedWrite{
		binding:        binding,
		descriptorType: vk.DescriptorTypeUniformBuffer,
		buffers: []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: offset,
			Range:  size,
		}},
	})
	return ds
}

// QueueCombinedImageSampler stages a sampled image write for binding.
func (ds *DescriptorSet) QueueCombinedImageSampler(binding uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) *DescriptorSet {
	ds.queued = append(ds.queued, queuedWrite{
		binding:        binding,
		descriptorType: vk.DescriptorTypeCombinedImageSampler,
		images: []vk.DescriptorImageInfo{{
			Sampler:     sampler,
			ImageView:   view,
			ImageLayout: layout,
		}},
	})
	return ds
}

// QueueCombinedImageSamplerArray stages an arrayed sampled image write
// starting at element 0 of binding.
func (ds *DescriptorSet) QueueCombinedImageSamplerArray(binding uint32, views []vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) *DescriptorSet {
	images := make([]vk.DescriptorImageInfo, len(views))
	for i, view := range views {
		images[i] = vk.DescriptorImageInfo{
			Sampler:     sampler,
			ImageView:   view,
			ImageLayout: layout,
		}
	}
	ds.queued = append(ds.queued, queuedWrite{
		binding:        binding,
		descriptorType: vk.DescriptorTypeCombinedImageSampler,
		images:         images,
	})
	return ds
}

// Commit flushes all queued writes. The caller must guarantee the GPU is not
// reading the set.
func (ds *DescriptorSet) Commit(context *VulkanContext) {
	if len(ds.queued) == 0 {
		return
	}

	writes := make([]vk.WriteDescriptorSet, len(ds.queued))
	for i, q := range ds.queued {
		write := vk.WriteDescriptorSet{
			SType:          vk.StructureTypeWriteDescriptorSet,
			DstSet:         ds.Handle,
			DstBinding:     q.binding,
			DescriptorType: q.descriptorType,
		}
		if len(q.buffers) > 0 {
			write.DescriptorCount = uint32(len(q.buffers))
			write.PBufferInfo = q.buffers
		} else {
			write.DescriptorCount = uint32(len(q.images))
			write.PImageInfo = q.images
		}
		writes[i] = write
	}

	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	ds.queued = ds.queued[:0]
}

func (ds *DescriptorSet) Destroy(context *VulkanContext, pool vk.DescriptorPool) {
	vk.FreeDescriptorSets(context.Device.LogicalDevice, pool, 1, &ds.Handle)
}
