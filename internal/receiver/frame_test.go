package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFromSampleExcludesStridePadding(t *testing.T) {
	// 2x2 RGB with rows padded to 8 bytes (stride 8, row data 6)
	data := []byte{
		1, 2, 3, 4, 5, 6, 0xAA, 0xAA,
		7, 8, 9, 10, 11, 12,
	}
	frame, ok := frameFromSample(data, SampleInfo{Width: 2, Height: 2, Stride: 8})
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, frame.Pix)
}

func TestFrameFromSampleRejectsShortBuffers(t *testing.T) {
	_, ok := frameFromSample(make([]byte, 10), SampleInfo{Width: 4, Height: 4, Stride: 12})
	assert.False(t, ok)

	_, ok = frameFromSample(nil, SampleInfo{Width: 1, Height: 1, Stride: 3})
	assert.False(t, ok)

	_, ok = frameFromSample(make([]byte, 100), SampleInfo{Width: 0, Height: 4, Stride: 12})
	assert.False(t, ok)

	// Stride smaller than a row is nonsense
	_, ok = frameFromSample(make([]byte, 100), SampleInfo{Width: 4, Height: 4, Stride: 6})
	assert.False(t, ok)
}

func TestMirroredHorizontal(t *testing.T) {
	f := &Frame{
		Width:  2,
		Height: 1,
		Pix:    []byte{1, 2, 3, 4, 5, 6},
	}
	m := f.mirrored(true, false)
	assert.Equal(t, []byte{4, 5, 6, 1, 2, 3}, m.Pix)
	// Source untouched
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, f.Pix)
}

func TestMirroredVertical(t *testing.T) {
	f := &Frame{
		Width:  1,
		Height: 2,
		Pix:    []byte{1, 2, 3, 4, 5, 6},
	}
	m := f.mirrored(false, true)
	assert.Equal(t, []byte{4, 5, 6, 1, 2, 3}, m.Pix)
}

func TestMirroredBothAxes(t *testing.T) {
	f := &Frame{
		Width:  2,
		Height: 2,
		Pix: []byte{
			1, 1, 1, 2, 2, 2,
			3, 3, 3, 4, 4, 4,
		},
	}
	m := f.mirrored(true, true)
	assert.Equal(t, []byte{
		4, 4, 4, 3, 3, 3,
		2, 2, 2, 1, 1, 1,
	}, m.Pix)
}

func TestMirroredNoFlipsReturnsSameFrame(t *testing.T) {
	f := &Frame{Width: 1, Height: 1, Pix: []byte{9, 9, 9}}
	assert.Same(t, f, f.mirrored(false, false))
}

func TestCloneIsIndependent(t *testing.T) {
	f := &Frame{Width: 1, Height: 1, Pix: []byte{1, 2, 3}}
	c := f.Clone()
	c.Pix[0] = 99
	assert.Equal(t, byte(1), f.Pix[0])
}

func TestToRGBA(t *testing.T) {
	f := &Frame{Width: 2, Height: 1, Pix: []byte{10, 20, 30, 40, 50, 60}}
	img := f.ToRGBA()
	require.Equal(t, 2, img.Bounds().Dx())
	require.Equal(t, 1, img.Bounds().Dy())
	r, g, b, a := img.At(1, 0).RGBA()
	assert.Equal(t, uint32(40), r>>8)
	assert.Equal(t, uint32(50), g>>8)
	assert.Equal(t, uint32(60), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)
}

func TestPlaceholderFrameIsBlack(t *testing.T) {
	f := placeholderFrame(4, 3)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Len(t, f.Pix, 4*3*3)
	for _, b := range f.Pix {
		assert.Zero(t, b)
	}
}
