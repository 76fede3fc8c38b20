// Package snapshot post-processes map renders: it trims the empty margin
// around exported screenshots and shrinks uploaded pin photos.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
)

// DefaultTolerance is the luminance distance below which a pixel counts as
// background.
const DefaultTolerance = 12

// DefaultPadding is the margin kept around the detected content.
const DefaultPadding = 8

// MaxPixels caps the dimensions of images decoded from uploads.
const MaxPixels = 25_000_000

var (
	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("image has no pixels")
	// ErrTooManyPixels is returned before decoding images larger than MaxPixels.
	ErrTooManyPixels = errors.New("image dimensions too large")
)

// Luminance returns the Rec. 601 luma of the pixel at (x, y) in the 0-255 range.
func Luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
}

// Background returns the most common luminance along the image border.
func Background(img image.Image) float64 {
	b := img.Bounds()
	var hist [256]int
	count := func(x, y int) {
		hist[int(math.Round(Luminance(img, x, y)))]++
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		count(x, b.Min.Y)
		if b.Dy() > 1 {
			count(x, b.Max.Y-1)
		}
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		count(b.Min.X, y)
		if b.Dx() > 1 {
			count(b.Max.X-1, y)
		}
	}

	best := 0
	for l, n := range hist {
		if n > hist[best] {
			best = l
		}
	}
	return float64(best)
}

// ContentBounds finds the smallest rectangle holding every pixel whose
// luminance differs from the border background by more than tolerance. ok
// is false when the whole image matches the background.
func ContentBounds(img image.Image, tolerance float64) (bounds image.Rectangle, ok bool) {
	b := img.Bounds()
	if b.Empty() {
		return image.Rectangle{}, false
	}
	bg := Background(img)

	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if math.Abs(Luminance(img, x, y)-bg) <= tolerance {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// AutoCrop trims the background margin of img, keeping padding pixels of it
// around the content. An image that is all background is returned unchanged.
func AutoCrop(img image.Image, tolerance float64, padding int) (image.Image, error) {
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	content, ok := ContentBounds(img, tolerance)
	if !ok {
		return img, nil
	}
	rect := content.Inset(-padding).Intersect(img.Bounds())

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

// checkSize rejects images whose header declares more than MaxPixels.
func checkSize(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	return nil
}

// CropPNG decodes a PNG from r, auto-crops it and writes the result to w.
func CropPNG(w io.Writer, r io.Reader, tolerance float64, padding int) (image.Rectangle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Rectangle{}, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := checkSize(cfg); err != nil {
		return image.Rectangle{}, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return image.Rectangle{}, err
	}
	cropped, err := AutoCrop(img, tolerance, padding)
	if err != nil {
		return image.Rectangle{}, err
	}
	return cropped.Bounds(), EncodePNG(w, cropped)
}

// EncodePNG writes img with best-speed compression.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
