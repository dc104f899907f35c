package assets

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/mdouchement/hdr"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// LoadLDR decodes an image file into tightly packed 8-bit RGBA pixels.
func LoadLDR(path string) ([]byte, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s: %v", core.ErrDecodeFailed, path, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba.Pix, width, height, nil
}

// LoadHDRFloat decodes a Radiance HDR file into tightly packed 32-bit float
// RGBA pixels with alpha fixed at 1. When flip is set the rows are reversed
// so the first pixel is the bottom-left corner.
func LoadHDRFloat(path string, flip bool) ([]float32, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s: %v", core.ErrDecodeFailed, path, err)
	}
	hdrImg, ok := img.(hdr.Image)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%w: %s is not a high dynamic range image", core.ErrDecodeFailed, path)
	}

	bounds := hdrImg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pixels := make([]float32, width*height*4)
	for y := 0; y < height; y++ {
		row := y
		if flip {
			row = height - 1 - y
		}
		for x := 0; x < width; x++ {
			r, g, b, _ := hdrImg.HDRAt(bounds.Min.X+x, bounds.Min.Y+y).HDRRGBA()
			offset := (row*width + x) * 4
			pixels[offset+0] = float32(r)
			pixels[offset+1] = float32(g)
			pixels[offset+2] = float32(b)
			pixels[offset+3] = 1
		}
	}
	return pixels, width, height, nil
}
