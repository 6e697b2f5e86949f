package receiver

import (
	"image"
	"image/color"
)

// bytesPerPixel is fixed by the pipeline's caps filter (packed RGB)
const bytesPerPixel = 3

// Frame is one decoded video frame: an owned packed-RGB pixel buffer plus its
// dimensions. Frames are never mutated after creation; a newer frame
// supersedes an older one.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Clone returns an independent copy of the frame
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height}
}

// ToRGBA converts the frame to an image.RGBA for consumers that render or
// encode via the standard image packages
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*bytesPerPixel:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// frameFromSample builds an owned frame from mapped sample data, honoring the
// source row stride so padding is excluded. Returns false when the data is
// shorter than the geometry claims.
func frameFromSample(data []byte, info SampleInfo) (*Frame, bool) {
	if info.Width <= 0 || info.Height <= 0 || info.Stride < info.Width*bytesPerPixel {
		return nil, false
	}
	// The last row may be unpadded
	minLen := info.Stride*(info.Height-1) + info.Width*bytesPerPixel
	if len(data) < minLen {
		return nil, false
	}

	rowBytes := info.Width * bytesPerPixel
	pix := make([]byte, rowBytes*info.Height)
	for y := 0; y < info.Height; y++ {
		copy(pix[y*rowBytes:(y+1)*rowBytes], data[y*info.Stride:y*info.Stride+rowBytes])
	}
	return &Frame{Pix: pix, Width: info.Width, Height: info.Height}, true
}

// mirrored returns the frame flipped along the requested axes. The capture
// geometry of the stock sender needs both flips; which ones apply is
// configuration.
func (f *Frame) mirrored(horizontal, vertical bool) *Frame {
	if !horizontal && !vertical {
		return f
	}
	pix := make([]byte, len(f.Pix))
	rowBytes := f.Width * bytesPerPixel
	for y := 0; y < f.Height; y++ {
		srcY := y
		if vertical {
			srcY = f.Height - 1 - y
		}
		srcRow := f.Pix[srcY*rowBytes : (srcY+1)*rowBytes]
		dstRow := pix[y*rowBytes : (y+1)*rowBytes]
		if !horizontal {
			copy(dstRow, srcRow)
			continue
		}
		for x := 0; x < f.Width; x++ {
			srcX := f.Width - 1 - x
			copy(dstRow[x*3:x*3+3], srcRow[srcX*3:srcX*3+3])
		}
	}
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height}
}

// placeholderFrame returns a solid black frame served before any video has
// arrived
func placeholderFrame(width, height int) *Frame {
	return solidFrame(width, height, color.RGBA{0, 0, 0, 255})
}

func solidFrame(width, height int, c color.RGBA) *Frame {
	pix := make([]byte, width*height*bytesPerPixel)
	for i := 0; i < len(pix); i += bytesPerPixel {
		pix[i+0] = c.R
		pix[i+1] = c.G
		pix[i+2] = c.B
	}
	return &Frame{Pix: pix, Width: width, Height: height}
}
