package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/quazuo/pbr-model-viewer/engine/assets"
	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// SwizzleComponent selects the source for one output channel.
type SwizzleComponent uint8

const (
	SwizzleR SwizzleComponent = iota
	SwizzleG
	SwizzleB
	SwizzleA
	SwizzleZero
	SwizzleOne
	SwizzleMax
)

// Swizzle remaps RGBA channels. SwizzleIdentity leaves pixels untouched.
type Swizzle [4]SwizzleComponent

var SwizzleIdentity = Swizzle{SwizzleR, SwizzleG, SwizzleB, SwizzleA}

// ApplyBytes rewrites tightly packed 8-bit RGBA pixels in place.
func (s Swizzle) ApplyBytes(pixels []byte) {
	if s == SwizzleIdentity {
		return
	}
	for i := 0; i+3 < len(pixels); i += 4 {
		var src [4]byte
		copy(src[:], pixels[i:i+4])
		for c := 0; c < 4; c++ {
			switch s[c] {
			case SwizzleR, SwizzleG, SwizzleB, SwizzleA:
				pixels[i+c] = src[s[c]]
			case SwizzleZero:
				pixels[i+c] = 0
			case SwizzleOne, SwizzleMax:
				pixels[i+c] = math.MaxUint8
			}
		}
	}
}

// ApplyFloats rewrites tightly packed 32-bit float RGBA pixels in place.
func (s Swizzle) ApplyFloats(pixels []float32) {
	if s == SwizzleIdentity {
		return
	}
	for i := 0; i+3 < len(pixels); i += 4 {
		var src [4]float32
		copy(src[:], pixels[i:i+4])
		for c := 0; c < 4; c++ {
			switch s[c] {
			case SwizzleR, SwizzleG, SwizzleB, SwizzleA:
				pixels[i+c] = src[s[c]]
			case SwizzleZero:
				pixels[i+c] = 0
			case SwizzleOne:
				pixels[i+c] = 1
			case SwizzleMax:
				pixels[i+c] = math.MaxFloat32
			}
		}
	}
}

// Texture bundles an image with its derived views and sampler. Per-face views
// exist only for cubemaps.
type Texture struct {
	ID           uuid.UUID
	Image        *VulkanImage
	View         vk.ImageView
	MipViews     []vk.ImageView
	FaceViews    []vk.ImageView
	FaceMipViews [][]vk.ImageView
	Sampler      vk.Sampler
}

func (t *Texture) MipLevels() uint32 {
	return t.Image.MipLevels
}

func (t *Texture) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if t.Sampler != vk.NullSampler {
		vk.DestroySampler(device, t.Sampler, context.Allocator)
	}
	for _, views := range t.FaceMipViews {
		for _, v := range views {
			vk.DestroyImageView(device, v, context.Allocator)
		}
	}
	for _, v := range t.FaceViews {
		vk.DestroyImageView(device, v, context.Allocator)
	}
	for _, v := range t.MipViews {
		vk.DestroyImageView(device, v, context.Allocator)
	}
	if t.View != vk.NullImageView {
		vk.DestroyImageView(device, t.View, context.Allocator)
	}
	t.Image.Destroy(context)
}

// TextureBuilder accumulates configuration and validates it in Create.
type TextureBuilder struct {
	format           vk.Format
	layout           vk.ImageLayout
	usage            vk.ImageUsageFlags
	cubemap          bool
	hdr              bool
	separateChannels bool
	mipmaps          bool
	uninitialized    bool
	width            uint32
	height           uint32
	paths            []string
	memoryPixels     []byte
	swizzle          Swizzle
	addressMode      vk.SamplerAddressMode
}

func NewTextureBuilder() *TextureBuilder {
	return &TextureBuilder{
		format:      vk.FormatR8g8b8a8Srgb,
		layout:      vk.ImageLayoutShaderReadOnlyOptimal,
		usage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		swizzle:     SwizzleIdentity,
		addressMode: vk.SamplerAddressModeRepeat,
	}
}

func (b *TextureBuilder) WithFormat(format vk.Format) *TextureBuilder {
	b.format = format
	return b
}

func (b *TextureBuilder) WithLayout(layout vk.ImageLayout) *TextureBuilder {
	b.layout = layout
	return b
}

func (b *TextureBuilder) WithUsage(usage vk.ImageUsageFlags) *TextureBuilder {
	b.usage = usage
	return b
}

func (b *TextureBuilder) AsCubemap() *TextureBuilder {
	b.cubemap = true
	return b
}

func (b *TextureBuilder) AsHDR() *TextureBuilder {
	b.hdr = true
	return b
}

func (b *TextureBuilder) AsSeparateChannels() *TextureBuilder {
	b.separateChannels = true
	return b
}

func (b *TextureBuilder) WithMipmaps() *TextureBuilder {
	b.mipmaps = true
	return b
}

func (b *TextureBuilder) Uninitialized(width, height uint32) *TextureBuilder {
	b.uninitialized = true
	b.width = width
	b.height = height
	return b
}

func (b *TextureBuilder) FromPaths(paths ...string) *TextureBuilder {
	b.paths = paths
	return b
}

// FromMemory sources the texture from pre-decoded pixel data laid out to
// match the builder's format.
func (b *TextureBuilder) FromMemory(pixels []byte, width, height uint32) *TextureBuilder {
	b.memoryPixels = pixels
	b.width = width
	b.height = height
	return b
}

func (b *TextureBuilder) WithSwizzle(swizzle Swizzle) *TextureBuilder {
	b.swizzle = swizzle
	return b
}

func (b *TextureBuilder) WithSamplerAddressMode(mode vk.SamplerAddressMode) *TextureBuilder {
	b.addressMode = mode
	return b
}

func isFourByteFourComponent(format vk.Format) bool {
	switch format {
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb, vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb:
		return true
	}
	return false
}

func fillerSwizzle(c SwizzleComponent) bool {
	return c == SwizzleZero || c == SwizzleOne || c == SwizzleMax
}

func (b *TextureBuilder) validate() error {
	hasSource := len(b.paths) > 0 || b.memoryPixels != nil
	if b.uninitialized == hasSource {
		return fmt.Errorf("texture builder requires either a pixel source or an uninitialized extent")
	}
	if b.cubemap && b.separateChannels {
		return fmt.Errorf("cubemap textures cannot be loaded from separate channels")
	}
	if b.cubemap && !b.uninitialized && len(b.paths) != 6 {
		return fmt.Errorf("cubemap texture requires 6 source paths, got %d", len(b.paths))
	}
	if b.separateChannels {
		if len(b.paths) != 3 {
			return fmt.Errorf("separate-channel texture requires 3 source paths, got %d", len(b.paths))
		}
		if !isFourByteFourComponent(b.format) {
			return fmt.Errorf("separate-channel texture requires a 4-byte 4-component format")
		}
		for i, path := range b.paths {
			if path == "" && !fillerSwizzle(b.swizzle[i]) {
				return fmt.Errorf("empty source path for channel %d requires a ZERO/ONE/MAX swizzle", i)
			}
		}
	}
	return nil
}

func (b *TextureBuilder) bytesPerPixel() uint32 {
	if b.hdr {
		return 16
	}
	return 4
}

// loadPixelData decodes and merges the source images into one tightly packed
// buffer, all layers back to back, returning the buffer and the extent.
func (b *TextureBuilder) loadPixelData() ([]byte, uint32, uint32, error) {
	if b.separateChannels {
		return b.loadSeparateChannels()
	}

	var merged []byte
	var width, height uint32
	for _, path := range b.paths {
		var data []byte
		var w, h int
		var err error
		if b.hdr {
			var floats []float32
			floats, w, h, err = assets.LoadHDRFloat(path, true)
			if err == nil {
				b.swizzle.ApplyFloats(floats)
				data = floatsToBytes(floats)
			}
		} else {
			data, w, h, err = assets.LoadLDR(path)
			if err == nil {
				b.swizzle.ApplyBytes(data)
			}
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if width == 0 {
			width, height = uint32(w), uint32(h)
		} else if uint32(w) != width || uint32(h) != height {
			return nil, 0, 0, fmt.Errorf("source %s extent %dx%d does not match %dx%d", path, w, h, width, height)
		}
		merged = append(merged, data...)
	}
	return merged, width, height, nil
}

// loadSeparateChannels merges three single-channel sources into one RGBA
// buffer with a constant alpha, then applies the swizzle.
func (b *TextureBuilder) loadSeparateChannels() ([]byte, uint32, uint32, error) {
	var channels [3][]byte
	var width, height uint32
	for i, path := range b.paths {
		if path == "" {
			continue
		}
		data, w, h, err := assets.LoadLDR(path)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if width == 0 {
			width, height = uint32(w), uint32(h)
		} else if uint32(w) != width || uint32(h) != height {
			return nil, 0, 0, fmt.Errorf("source %s extent %dx%d does not match %dx%d", path, w, h, width, height)
		}
		channels[i] = data
	}
	if width == 0 {
		return nil, 0, 0, fmt.Errorf("separate-channel texture has no non-empty source")
	}

	merged := make([]byte, width*height*4)
	for p := uint32(0); p < width*height; p++ {
		for c := 0; c < 3; c++ {
			if channels[c] != nil {
				merged[p*4+uint32(c)] = channels[c][p*4]
			}
		}
		merged[p*4+3] = math.MaxUint8
	}
	b.swizzle.ApplyBytes(merged)
	return merged, width, height, nil
}

// Create validates the configuration, builds the image with all of its views
// and the sampler, and uploads pixel data unless the texture is uninitialized.
func (b *TextureBuilder) Create(context *VulkanContext) (*Texture, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	var pixels []byte
	width, height := b.width, b.height
	if b.memoryPixels != nil {
		pixels = b.memoryPixels
	} else if !b.uninitialized {
		var err error
		pixels, width, height, err = b.loadPixelData()
		if err != nil {
			return nil, err
		}
	}

	mipLevels := uint32(1)
	if b.mipmaps {
		mipLevels = MipLevelCount(width, height)
	}

	layers := uint32(1)
	if b.cubemap {
		layers = 6
	}

	usage := b.usage
	if b.mipmaps {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
	}

	image, err := ImageCreate(context, ImageConfig{
		Width:     width,
		Height:    height,
		Format:    b.format,
		Tiling:    vk.ImageTilingOptimal,
		Usage:     usage,
		Memory:    vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		MipLevels: mipLevels,
		Layers:    layers,
		Cubemap:   b.cubemap,
	})
	if err != nil {
		return nil, err
	}

	texture := &Texture{
		ID:    uuid.New(),
		Image: image,
	}

	if !b.uninitialized {
		if err := b.upload(context, texture, pixels); err != nil {
			texture.Destroy(context)
			return nil, err
		}
	}

	if err := b.createViews(context, texture); err != nil {
		texture.Destroy(context)
		return nil, err
	}
	if err := b.createSampler(context, texture); err != nil {
		texture.Destroy(context)
		return nil, err
	}

	core.LogDebug("created %dx%d texture (mips: %d, layers: %d)", width, height, mipLevels, layers)
	return texture, nil
}

func (b *TextureBuilder) upload(context *VulkanContext, texture *Texture, pixels []byte) error {
	staging, err := NewBuffer(context, vk.DeviceSize(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	defer staging.Destroy(context)

	if err := staging.Map(context); err != nil {
		return err
	}
	if err := staging.Write(pixels, 0); err != nil {
		return err
	}
	staging.Unmap(context)

	if err := texture.Image.TransitionLayout(context, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	if err := texture.Image.CopyFromBuffer(context, staging.Handle); err != nil {
		return err
	}

	if b.mipmaps {
		return texture.Image.GenerateMipmaps(context, b.layout)
	}
	return texture.Image.TransitionLayout(context, vk.ImageLayoutTransferDstOptimal, b.layout)
}

func (b *TextureBuilder) createViews(context *VulkanContext, texture *Texture) error {
	image := texture.Image
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)

	viewType := vk.ImageViewType2d
	if b.cubemap {
		viewType = vk.ImageViewTypeCube
	}

	view, err := image.CreateView(context, viewType, aspect, 0, image.MipLevels, 0, image.LayerCount)
	if err != nil {
		return err
	}
	texture.View = view

	for mip := uint32(0); mip < image.MipLevels; mip++ {
		mipView, err := image.CreateView(context, viewType, aspect, mip, 1, 0, image.LayerCount)
		if err != nil {
			return err
		}
		texture.MipViews = append(texture.MipViews, mipView)
	}

	if !b.cubemap {
		return nil
	}

	for face := uint32(0); face < 6; face++ {
		faceView, err := image.CreateView(context, vk.ImageViewType2d, aspect, 0, image.MipLevels, face, 1)
		if err != nil {
			return err
		}
		texture.FaceViews = append(texture.FaceViews, faceView)

		var faceMips []vk.ImageView
		for mip := uint32(0); mip < image.MipLevels; mip++ {
			v, err := image.CreateView(context, vk.ImageViewType2d, aspect, mip, 1, face, 1)
			if err != nil {
				return err
			}
			faceMips = append(faceMips, v)
		}
		texture.FaceMipViews = append(texture.FaceMipViews, faceMips)
	}
	return nil
}

func (b *TextureBuilder) createSampler(context *VulkanContext, texture *Texture) error {
	properties := context.Device.Properties
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            b.addressMode,
		AddressModeV:            b.addressMode,
		AddressModeW:            b.addressMode,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           properties.Limits.MaxSamplerAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MinLod:                  0,
		MaxLod:                  float32(texture.Image.MipLevels),
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler); res != vk.Success {
		return fmt.Errorf("vkCreateSampler failed with %s", ResultString(res))
	}
	texture.Sampler = sampler
	return nil
}
