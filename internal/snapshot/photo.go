package snapshot

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

// Photo defaults for pin attachments.
const (
	PhotoMaxWidth = 600
	PhotoQuality  = 70
)

// Downscale resizes img to width maxWidth keeping its aspect ratio. Images
// already narrow enough are returned as is.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(1, b.Dy()*maxWidth/b.Dx())
	out := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// CompressPhoto decodes a JPEG or PNG photo, shrinks it to PhotoMaxWidth and
// re-encodes it as JPEG. Oversized images are refused before decoding.
func CompressPhoto(w io.Writer, r io.Reader) (image.Rectangle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Rectangle{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := checkSize(cfg); err != nil {
		return image.Rectangle{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return image.Rectangle{}, err
	}
	small := Downscale(img, PhotoMaxWidth)
	return small.Bounds(), jpeg.Encode(w, small, &jpeg.Options{Quality: PhotoQuality})
}
