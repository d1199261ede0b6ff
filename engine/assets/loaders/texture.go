package loaders

import (
	"fmt"
	"image"
	"os"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type textureFile struct {
	Name       string `yaml:"name"`
	BinaryPath string `yaml:"binaryPath"`
	// MaxSize bounds the larger side. Bigger images are downscaled.
	MaxSize int  `yaml:"maxSize"`
	FlipY   bool `yaml:"flipY"`
}

func (l *YAMLLoader) LoadTexture(path string) (*metadata.TextureDecl, error) {
	var f textureFile
	if err := readDecl(path, &f); err != nil {
		return nil, err
	}
	if f.BinaryPath == "" {
		return nil, fmt.Errorf("texture '%s' has no binaryPath", path)
	}

	img, err := decodeImage(resolve(path, f.BinaryPath))
	if err != nil {
		return nil, err
	}
	rgba := toRGBA(img, f.MaxSize)
	if f.FlipY {
		flipRows(rgba)
	}

	b := rgba.Bounds()
	return &metadata.TextureDecl{
		Name:   nameOr(f.Name, path),
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pixels: rgba.Pix,
	}, nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image '%s': %w", path, err)
	}
	core.LogDebug("decoded %s image '%s' (%dx%d)", format, path, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

// toRGBA converts any decoded image into tightly packed RGBA8 with the
// origin at zero, scaling it down when maxSize is set and exceeded.
func toRGBA(img image.Image, maxSize int) *image.RGBA {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
		return dst
	}

	if rgba, ok := img.(*image.RGBA); ok && src.Min == (image.Point{}) && rgba.Stride == 4*w {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}

func flipRows(img *image.RGBA) {
	h := img.Bounds().Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
