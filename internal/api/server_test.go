package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrover/driverstation/internal/config"
	"github.com/openrover/driverstation/internal/receiver"
)

// fakeStream records lifecycle calls and serves a canned status
type fakeStream struct {
	started []int
	stops   int
	status  receiver.Status
	frame   *receiver.Frame
}

func (f *fakeStream) StartStream(port int) {
	f.started = append(f.started, port)
	f.status.IsStreaming = true
}

func (f *fakeStream) StopStream() {
	f.stops++
	f.status.IsStreaming = false
}

func (f *fakeStream) Status() receiver.Status { return f.status }
func (f *fakeStream) Frame() *receiver.Frame  { return f.frame }

func newTestServer(t *testing.T) (*Server, *fakeStream) {
	t.Helper()

	configMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	stream := &fakeStream{status: receiver.Status{Message: "Ready"}}
	return NewServer(stream, configMgr, nil), stream
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestStreamStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/stream/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status receiver.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "Ready", status.Message)
	assert.False(t, status.IsStreaming)
}

func TestStreamStartUsesConfiguredPortByDefault(t *testing.T) {
	srv, stream := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/stream/start", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stream.started, 1)
	assert.Equal(t, 5000, stream.started[0])
}

func TestStreamStartWithExplicitPort(t *testing.T) {
	srv, stream := newTestServer(t)

	body := bytes.NewBufferString(`{"port": 5600}`)
	req := httptest.NewRequest("POST", "/api/stream/start", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stream.started, 1)
	assert.Equal(t, 5600, stream.started[0])
}

func TestStreamStartRejectsInvalidPort(t *testing.T) {
	srv, stream := newTestServer(t)

	for _, body := range []string{`{"port": -1}`, `{"port": 70000}`} {
		req := httptest.NewRequest("POST", "/api/stream/start", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, stream.started)
}

func TestStreamStopEndpoint(t *testing.T) {
	srv, stream := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/stream/stop", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stream.stops)
}

func TestDriveEndpointsWithoutTelemetry(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/drive", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("POST", "/api/drive", strings.NewReader(`{"angle":0,"throttle":0}`))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 5000, cfg.Video.Port)
	assert.Equal(t, 8080, cfg.ServerPort)
}

func TestStreamEventsPushesStatusUpdates(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Initial status arrives without a publish
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var status receiver.Status
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "Ready", status.Message)

	srv.PublishStatus(receiver.Status{IsStreaming: true, Message: "Streaming on port 5000"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&status))
	assert.True(t, status.IsStreaming)
	assert.Equal(t, "Streaming on port 5000", status.Message)
}

func TestCORSPreflightHandled(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/stream/status", nil)
	rec := httptest.NewRecorder()
	srv.enableCORS(srv.Router()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
