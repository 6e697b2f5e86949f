package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const padding = 5

// DrawStatusText stamps a status line onto the lower-left corner of img, with
// a dark bar behind it for legibility. Used on placeholder and stalled frames
// so a viewer sees why there is no live video.
func DrawStatusText(img *image.RGBA, text string) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
	}

	textWidth := d.MeasureString(text).Ceil()
	textHeight := face.Metrics().Height.Ceil()

	bounds := img.Bounds()
	x := bounds.Min.X + padding
	y := bounds.Max.Y - padding

	// Background bar
	bg := image.Rect(
		x-padding, y-textHeight-padding,
		x+textWidth+padding, y+padding,
	).Intersect(bounds)
	draw.Draw(img, bg, image.NewUniform(color.RGBA{0, 0, 0, 200}), image.Point{}, draw.Over)

	d.Dot = fixed.P(x, y-face.Metrics().Descent.Ceil())
	d.DrawString(text)
}
