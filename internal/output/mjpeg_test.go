package output

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestWriteFrameRequiresStart(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	assert.Error(t, out.WriteFrame(testFrame(8, 8)))
}

func TestStartStopLifecycle(t *testing.T) {
	out := NewMJPEGOutput(Config{})

	require.NoError(t, out.Start())
	assert.True(t, out.IsRunning())
	assert.Error(t, out.Start())

	require.NoError(t, out.Stop())
	assert.False(t, out.IsRunning())
	require.NoError(t, out.Stop())
}

func TestQualityDefaultsWhenOutOfRange(t *testing.T) {
	for _, q := range []int{0, -5, 150} {
		out := NewMJPEGOutput(Config{Quality: q})
		assert.Equal(t, defaultQuality, out.config.Quality)
	}

	out := NewMJPEGOutput(Config{Quality: 50})
	assert.Equal(t, 50, out.config.Quality)
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())
	defer out.Stop()

	rec := httptest.NewRecorder()
	out.SnapshotHandler()(rec, httptest.NewRequest("GET", "/snapshot", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotServesLatestFrame(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())
	defer out.Stop()

	require.NoError(t, out.WriteFrame(testFrame(32, 24)))

	rec := httptest.NewRecorder()
	out.SnapshotHandler()(rec, httptest.NewRequest("GET", "/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	img, err := jpeg.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestStreamDeliversMultipartFrames(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())
	defer out.Stop()

	ts := httptest.NewServer(out.StreamHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	// The client registers asynchronously; keep writing until it is seen
	require.Eventually(t, func() bool {
		return out.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Two frames: a part only terminates at the next boundary
	require.NoError(t, out.WriteFrame(testFrame(16, 16)))
	require.NoError(t, out.WriteFrame(testFrame(16, 16)))

	reader := multipart.NewReader(bufio.NewReader(resp.Body), "frame")
	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))

	data, err := io.ReadAll(part)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestStreamRespondsBeforeFirstFrame(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())
	defer out.Stop()

	ts := httptest.NewServer(out.StreamHandler())
	defer ts.Close()

	// Headers must arrive even though no frame has ever been written
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")
}

func TestStreamSeedsLateJoinerWithCachedFrame(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())
	defer out.Stop()

	require.NoError(t, out.WriteFrame(testFrame(16, 16)))

	ts := httptest.NewServer(out.StreamHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return out.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The cached frame was written at connect time; a fresh frame supplies
	// the boundary that terminates it
	require.NoError(t, out.WriteFrame(testFrame(16, 16)))

	reader := multipart.NewReader(bufio.NewReader(resp.Body), "frame")
	part, err := reader.NextPart()
	require.NoError(t, err)

	data, err := io.ReadAll(part)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestStopDisconnectsClients(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	require.NoError(t, out.Start())

	ts := httptest.NewServer(out.StreamHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return out.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, out.Stop())

	// Handler returns once its channel closes, ending the response body
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, out.ClientCount())
}

func TestName(t *testing.T) {
	assert.Equal(t, "MJPEG HTTP Stream", NewMJPEGOutput(Config{}).Name())
}
