package snapshot

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	background = color.RGBA{R: 26, G: 26, B: 26, A: 255}
	ink        = color.RGBA{R: 245, G: 158, B: 11, A: 255}
)

func canvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, background)
		}
	}
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func TestContentBounds(t *testing.T) {
	img := canvas(100, 80)
	fill(img, image.Rect(20, 30, 40, 35), ink)
	img.Set(70, 60, ink)

	got, ok := ContentBounds(img, DefaultTolerance)
	require.True(t, ok)
	assert.Equal(t, image.Rect(20, 30, 71, 61), got)
}

func TestContentBounds_IgnoresNearBackground(t *testing.T) {
	img := canvas(50, 50)
	fill(img, image.Rect(10, 10, 20, 20), color.RGBA{R: 30, G: 30, B: 30, A: 255})

	_, ok := ContentBounds(img, DefaultTolerance)
	assert.False(t, ok)

	_, ok = ContentBounds(img, 1)
	assert.True(t, ok)
}

func TestAutoCrop(t *testing.T) {
	tests := []struct {
		name    string
		content image.Rectangle
		padding int
		want    image.Point
	}{
		{"no padding", image.Rect(20, 30, 40, 35), 0, image.Pt(20, 5)},
		{"padding", image.Rect(20, 30, 40, 35), 5, image.Pt(30, 15)},
		{"padding clipped at edge", image.Rect(0, 0, 10, 10), 5, image.Pt(15, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := canvas(100, 80)
			fill(img, tt.content, ink)

			got, err := AutoCrop(img, DefaultTolerance, tt.padding)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Bounds().Size())
			assert.Equal(t, image.Pt(0, 0), got.Bounds().Min)
		})
	}
}

func TestContentBounds_ContentInCorner(t *testing.T) {
	img := canvas(100, 80)
	fill(img, image.Rect(0, 0, 10, 10), color.RGBA{R: 255, G: 255, B: 255, A: 255})

	got, ok := ContentBounds(img, DefaultTolerance)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 10, 10), got)

	cropped, err := AutoCrop(img, DefaultTolerance, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), cropped.Bounds().Size())
}

func TestBackground(t *testing.T) {
	img := canvas(20, 20)
	fill(img, image.Rect(0, 0, 20, 3), ink)
	assert.InDelta(t, 26, Background(img), 0.5)
}

// hugePNG returns a valid PNG header declaring a 30000x30000 image.
func hugePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, canvas(1, 1)))
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[16:20], 30000)
	binary.BigEndian.PutUint32(data[20:24], 30000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecode_RefusesHugeDimensions(t *testing.T) {
	var out bytes.Buffer
	_, err := CropPNG(&out, bytes.NewReader(hugePNG(t)), DefaultTolerance, 0)
	assert.ErrorIs(t, err, ErrTooManyPixels)

	_, err = CompressPhoto(&out, bytes.NewReader(hugePNG(t)))
	assert.ErrorIs(t, err, ErrTooManyPixels)
	assert.Zero(t, out.Len())
}

func TestAutoCrop_AllBackground(t *testing.T) {
	img := canvas(40, 30)
	got, err := AutoCrop(img, DefaultTolerance, DefaultPadding)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), got.Bounds())
}

func TestAutoCrop_Empty(t *testing.T) {
	_, err := AutoCrop(image.NewRGBA(image.Rect(0, 0, 0, 0)), DefaultTolerance, 0)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestCropPNG(t *testing.T) {
	img := canvas(64, 64)
	fill(img, image.Rect(10, 10, 20, 30), ink)

	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, img))

	var out bytes.Buffer
	bounds, err := CropPNG(&out, &in, DefaultTolerance, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(14, 24), bounds.Size())

	decoded, err := png.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, bounds.Size(), decoded.Bounds().Size())
}

func TestDownscale(t *testing.T) {
	img := canvas(1200, 900)
	small := Downscale(img, PhotoMaxWidth)
	assert.Equal(t, image.Pt(600, 450), small.Bounds().Size())

	r, g, b, _ := small.At(10, 10).RGBA()
	assert.InDelta(t, 26*257, r, 257)
	assert.InDelta(t, 26*257, g, 257)
	assert.InDelta(t, 26*257, b, 257)

	narrow := canvas(300, 200)
	assert.Same(t, narrow, Downscale(narrow, PhotoMaxWidth))
}

func TestCompressPhoto(t *testing.T) {
	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, canvas(1000, 500)))

	var out bytes.Buffer
	bounds, err := CompressPhoto(&out, &in)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(600, 300), bounds.Size())

	cfg, err := jpeg.DecodeConfig(&out)
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Width)
}

func TestCompressPhoto_RejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	_, err := CompressPhoto(&out, bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
