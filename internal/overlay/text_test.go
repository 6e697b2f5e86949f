package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func countChanged(img *image.RGBA, base color.RGBA) int {
	changed := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) != base {
				changed++
			}
		}
	}
	return changed
}

func TestDrawStatusTextModifiesLowerLeft(t *testing.T) {
	base := color.RGBA{30, 30, 30, 255}
	img := solidImage(200, 100, base)

	DrawStatusText(img, "Waiting for video stream...")

	assert.Positive(t, countChanged(img, base))

	// The top half stays untouched
	for y := 0; y < 50; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y) != base {
				t.Fatalf("pixel (%d,%d) changed outside the status bar", x, y)
			}
		}
	}
}

func TestDrawStatusTextEmptyIsNoOp(t *testing.T) {
	base := color.RGBA{30, 30, 30, 255}
	img := solidImage(64, 64, base)

	DrawStatusText(img, "")

	assert.Zero(t, countChanged(img, base))
}

func TestDrawStatusTextClipsToSmallImage(t *testing.T) {
	base := color.RGBA{0, 0, 0, 255}
	img := solidImage(20, 10, base)

	// Longer than the image is wide; must not panic
	DrawStatusText(img, "No video stream (timeout)")
}
