package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ToNRGBA converts any image to a tightly packed NRGBA image with its
// origin at zero.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// DecodeImage decodes an encoded image (PNG) to NRGBA.
func DecodeImage(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return ToNRGBA(img), nil
}

// ArrayFromImages decodes each encoded layer and builds an array.
func ArrayFromImages(layers ...[]byte) (*Array, error) {
	imgs := make([]*image.NRGBA, 0, len(layers))
	for i, data := range layers {
		img, err := DecodeImage(data)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		imgs = append(imgs, img)
	}
	return NewArray(imgs...)
}

// UintFromImage builds a tile-index texture from a non-premultiplied
// image. 16-bit images carry the full tile index range; 8-bit images are
// accepted for small atlases. Premultiplied formats are rejected because
// the alpha channel is data, not coverage.
func UintFromImage(img image.Image) (*UintTexture, error) {
	b := img.Bounds()
	t := NewUintTexture(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.NRGBA64:
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				c := src.NRGBA64At(b.Min.X+x, b.Min.Y+y)
				t.Set(x, y, [4]uint32{uint32(c.R), uint32(c.G), uint32(c.B), uint32(c.A)})
			}
		}
	case *image.NRGBA:
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				c := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				t.Set(x, y, [4]uint32{uint32(c.R), uint32(c.G), uint32(c.B), uint32(c.A)})
			}
		}
	default:
		return nil, fmt.Errorf("tile index image %T: %w", img, ErrUnsupportedFormat)
	}
	return t, nil
}

// DecodeUint decodes an encoded image into a tile-index texture.
func DecodeUint(data []byte) (*UintTexture, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile index: %w", err)
	}
	return UintFromImage(img)
}
