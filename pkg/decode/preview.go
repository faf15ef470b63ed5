package decode

import (
	"image"

	"golang.org/x/image/draw"
)

// Preview scales img to fit a w x h box, keeping its aspect ratio.
func Preview(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Empty() || w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	if b.Dx()*h > b.Dy()*w {
		h = max(1, b.Dy()*w/b.Dx())
	} else {
		w = max(1, b.Dx()*h/b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
