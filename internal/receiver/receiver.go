package receiver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrover/driverstation/internal/config"
	"github.com/openrover/driverstation/internal/logger"
)

// Status messages exposed to consumers. Consumers always see a non-empty
// message plus the two booleans, enough to render idle / connecting / live /
// stalled / error without engine-specific detail.
const (
	statusReady     = "Ready"
	statusStarting  = "Starting stream..."
	statusReceiving = "Streaming (receiving frames)"
	statusWaiting   = "Waiting for video stream..."
	statusTimeout   = "No video stream (timeout)"
	statusEnded     = "Stream ended"
	statusStopped   = "Stopped"

	// statusStreamingPrefix prefixes the per-port streaming message
	statusStreamingPrefix = "Streaming on port "
)

// livenessOwnedMessage reports whether the liveness monitor may replace msg.
// Error and end-of-stream statuses stick until the caller stops the stream.
func livenessOwnedMessage(msg string) bool {
	switch msg {
	case statusStarting, statusReceiving, statusWaiting, statusTimeout:
		return true
	}
	return strings.HasPrefix(msg, statusStreamingPrefix)
}

const (
	// sinkName names the appsink element inside the topology string
	sinkName = "sink"

	defaultBusPollInterval  = 50 * time.Millisecond
	defaultLivenessInterval = time.Second
	defaultFrameTimeout     = 3 * time.Second
	defaultHandoffDepth     = 8
)

// Status is a snapshot of the receiver's observable properties
type Status struct {
	// IsStreaming reports whether the pipeline is in its running state
	IsStreaming bool `json:"is_streaming"`

	// HasActiveStream reports whether frames have been observed within the
	// liveness window. Implies IsStreaming, never the reverse.
	HasActiveStream bool `json:"has_active_stream"`

	// Message is a human-readable status line
	Message string `json:"message"`

	// FrameID identifies the latest frame; strictly increasing, never reused
	FrameID uint64 `json:"frame_id"`

	// FPS is the frames-received rate over the last liveness interval
	FPS int `json:"fps"`
}

// Events carries the receiver's change notifications. All callbacks run on
// the receiver's consumer loop and must return quickly; nil callbacks are
// skipped. Each fires only on an actual value change.
type Events struct {
	// OnStatus fires when IsStreaming, HasActiveStream, Message or FPS change
	OnStatus func(Status)

	// OnFrame fires after a new frame lands in the slot
	OnFrame func(id uint64)

	// OnError fires once per error notification
	OnError func(msg string)
}

// Options configures a Receiver
type Options struct {
	// Engine is the transport/decode engine. Required.
	Engine Engine

	// Video holds the pipeline parameters and correction flags
	Video config.VideoConfig

	// Events receives change notifications
	Events Events

	// BusPollInterval is the control-plane drain cadence (default 50ms)
	BusPollInterval time.Duration

	// LivenessInterval is the frame-timeout check cadence (default 1s)
	LivenessInterval time.Duration

	// FrameTimeout overrides Video.FrameTimeoutSec when non-zero
	FrameTimeout time.Duration

	// HandoffDepth bounds the producer-to-consumer frame queue (default 8)
	HandoffDepth int
}

// Receiver ingests a UDP/RTP video stream through the engine and keeps the
// latest decoded frame available for pull-based rendering.
//
// A single consumer loop goroutine owns the pipeline handle, both timers, the
// status flags and writes to the frame slot. The engine's streaming thread
// only ever touches the ingestion callback, which hands frames to the loop
// through an ordered, non-blocking channel.
type Receiver struct {
	opts Options
	log  *zerolog.Logger

	cmds   chan func()
	frames chan *Frame
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once

	// Everything below is owned by the consumer loop
	pipeline  Pipeline
	sink      Sink
	bus       Bus
	busTicker *time.Ticker
	livTicker *time.Ticker
	busC      <-chan time.Time
	livC      <-chan time.Time
	startedAt time.Time
	lastFrame time.Time
	streaming bool
	active    bool
	message   string
	fps       int
	frameTick int

	slot frameSlot

	placeholder *Frame

	// statusMu guards the snapshot read by Status() from any goroutine
	statusMu sync.RWMutex
	snapshot Status
}

// New creates a Receiver and starts its consumer loop. Close releases it.
func New(opts Options) (*Receiver, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("receiver: engine is required")
	}
	if opts.BusPollInterval <= 0 {
		opts.BusPollInterval = defaultBusPollInterval
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = defaultLivenessInterval
	}
	if opts.FrameTimeout <= 0 {
		if opts.Video.FrameTimeoutSec > 0 {
			opts.FrameTimeout = time.Duration(opts.Video.FrameTimeoutSec) * time.Second
		} else {
			opts.FrameTimeout = defaultFrameTimeout
		}
	}
	if opts.HandoffDepth <= 0 {
		opts.HandoffDepth = defaultHandoffDepth
	}
	if opts.Video.PlaceholderWidth <= 0 {
		opts.Video.PlaceholderWidth = 640
	}
	if opts.Video.PlaceholderHeight <= 0 {
		opts.Video.PlaceholderHeight = 480
	}
	if opts.Video.QueueDepth <= 0 {
		opts.Video.QueueDepth = 100
	}
	if opts.Video.BufferSize <= 0 {
		opts.Video.BufferSize = 200000
	}

	r := &Receiver{
		opts:        opts,
		log:         logger.WithComponent("receiver"),
		cmds:        make(chan func()),
		frames:      make(chan *Frame, opts.HandoffDepth),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		message:     statusReady,
		placeholder: placeholderFrame(opts.Video.PlaceholderWidth, opts.Video.PlaceholderHeight),
	}
	r.snapshot = Status{Message: statusReady}

	go r.run()
	return r, nil
}

// StartStream builds the pipeline for the given UDP port and transitions it
// to the running state. Any existing pipeline is fully stopped first. Build
// or start failures surface as an error notification and leave the receiver
// stopped. The call returns after the start attempt has been processed.
func (r *Receiver) StartStream(port int) {
	r.do(func() { r.startStream(port) })
}

// StopStream tears the pipeline down in dependency order. A no-op when
// already stopped. Returns after timers and references have been released;
// the engine finishes its own shutdown asynchronously.
func (r *Receiver) StopStream() {
	r.do(func() { r.stopStream() })
}

// Close stops any running stream and terminates the consumer loop
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		r.do(func() { r.stopStream() })
		close(r.quit)
		<-r.done
	})
}

// Status returns the current status snapshot
func (r *Receiver) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.snapshot
}

// FrameID returns the identifier of the latest frame, zero before the first
func (r *Receiver) FrameID() uint64 {
	return r.slot.currentID()
}

// Frame returns a copy of the latest frame, or the placeholder when no frame
// has ever arrived. The returned frame never aliases the slot's storage.
func (r *Receiver) Frame() *Frame {
	f, _ := r.slot.snapshot()
	if f == nil {
		return r.placeholder.Clone()
	}
	return f
}

// do runs fn on the consumer loop and waits for it to complete
func (r *Receiver) do(fn func()) {
	doneC := make(chan struct{})
	select {
	case r.cmds <- func() {
		fn()
		close(doneC)
	}:
		select {
		case <-doneC:
		case <-r.done:
		}
	case <-r.quit:
	}
}

func (r *Receiver) run() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case f := <-r.frames:
			r.applyFrame(f)
		case <-r.busC:
			r.drainBus()
		case <-r.livC:
			r.checkLiveness()
		case <-r.quit:
			return
		}
	}
}

// pipelineDescription renders the fixed topology, parameterized by port:
// UDP source, RTP/JPEG depayload, bounded leaky queue (oldest dropped under
// pressure), JPEG decode, conversion to packed RGB, named appsink.
func (r *Receiver) pipelineDescription(port int) string {
	return fmt.Sprintf(
		"udpsrc port=%d buffer-size=%d ! "+
			"application/x-rtp,encoding-name=JPEG ! "+
			"rtpjpegdepay ! "+
			"queue max-size-buffers=%d leaky=downstream ! "+
			"jpegdec ! "+
			"videoconvert ! "+
			"video/x-raw,format=RGB ! "+
			"appsink name=%s sync=false max-buffers=%d drop=false",
		port, r.opts.Video.BufferSize,
		r.opts.Video.QueueDepth,
		sinkName, r.opts.Video.QueueDepth,
	)
}

func (r *Receiver) startStream(port int) {
	if r.pipeline != nil {
		r.stopStream()
	}

	r.setMessage(statusStarting)

	desc := r.pipelineDescription(port)
	r.log.Debug().Str("pipeline", desc).Msg("Creating pipeline")

	pipeline, err := r.opts.Engine.BuildPipeline(desc)
	if err != nil {
		msg := fmt.Sprintf("Failed to create pipeline: %v", err)
		r.log.Error().Err(err).Msg("Pipeline build failed")
		r.setMessage("Error: " + err.Error())
		r.emitError(msg)
		return
	}

	sink, err := pipeline.SinkByName(sinkName)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to get sink element")
		r.setMessage("Error: Failed to initialize")
		pipeline.Release()
		r.emitError(fmt.Sprintf("Failed to get sink element: %v", err))
		return
	}

	sink.SetSampleHandler(r.handleSample)

	r.pipeline = pipeline
	r.sink = sink
	r.bus = pipeline.Bus()

	// Timers come up before the state change so control-plane messages from
	// the transition itself are observed
	r.busTicker = time.NewTicker(r.opts.BusPollInterval)
	r.busC = r.busTicker.C
	r.livTicker = time.NewTicker(r.opts.LivenessInterval)
	r.livC = r.livTicker.C

	r.startedAt = time.Now()
	r.lastFrame = time.Time{}
	r.frameTick = 0
	r.setActive(false)

	if err := pipeline.SetState(StatePlaying); err != nil {
		r.log.Error().Err(err).Msg("Failed to start pipeline")
		r.setMessage("Error: Failed to start")
		r.emitError("Failed to start stream")
		r.stopStream()
		return
	}

	r.setStreaming(true)
	r.setMessage(fmt.Sprintf("%s%d", statusStreamingPrefix, port))
	r.log.Info().Int("port", port).Msg("Stream started")
}

func (r *Receiver) stopStream() {
	if r.pipeline == nil {
		return
	}

	// Timers first, so no tick can touch a pipeline mid-teardown
	if r.busTicker != nil {
		r.busTicker.Stop()
		r.busTicker = nil
		r.busC = nil
	}
	if r.livTicker != nil {
		r.livTicker.Stop()
		r.livTicker = nil
		r.livC = nil
	}

	// Drain pending control-plane messages
	if r.bus != nil {
		for {
			if _, ok := r.bus.Pop(); !ok {
				break
			}
		}
	}

	// Fire-and-forget: waiting for the transition can deadlock if the
	// engine's own loop is being torn down concurrently
	if err := r.pipeline.SetState(StateNull); err != nil {
		r.log.Warn().Err(err).Msg("Failed to set pipeline to NULL state")
	}

	if r.sink != nil {
		r.sink.Release()
		r.sink = nil
	}
	if r.bus != nil {
		r.bus.Release()
		r.bus = nil
	}
	r.pipeline.Release()
	r.pipeline = nil

	// Discard frames that were queued but never applied
drain:
	for {
		select {
		case <-r.frames:
		default:
			break drain
		}
	}

	r.setStreaming(false)
	r.setActive(false)
	r.setFPS(0)
	r.setMessage(statusStopped)
	r.log.Info().Msg("Stream stopped")
}

// handleSample is the frame ingestion callback. It runs on the engine's
// streaming thread: validate, map, copy honoring stride, apply the mirror
// correction, unmap, then hand off without blocking. A malformed sample is a
// skipped tick, not an error.
func (r *Receiver) handleSample(s Sample) {
	info, ok := s.Info()
	if !ok {
		return
	}
	data, ok := s.Map()
	if !ok {
		return
	}
	frame, ok := frameFromSample(data, info)
	s.Unmap()
	if !ok {
		return
	}

	frame = frame.mirrored(r.opts.Video.MirrorHorizontal, r.opts.Video.MirrorVertical)

	// Ordered, non-blocking handoff. When the consumer loop is behind, the
	// frame is dropped here rather than stalling the streaming thread.
	select {
	case r.frames <- frame:
	default:
	}
}

// applyFrame runs on the consumer loop: store, bump the identifier, update
// liveness bookkeeping
func (r *Receiver) applyFrame(f *Frame) {
	if r.pipeline == nil {
		// Late delivery from a pipeline already torn down
		return
	}

	id := r.slot.store(f)
	r.lastFrame = time.Now()
	r.frameTick++

	if !r.active {
		r.setActive(true)
		r.setMessage(statusReceiving)
	}

	r.updateSnapshot()
	if cb := r.opts.Events.OnFrame; cb != nil {
		cb(id)
	}
}

func (r *Receiver) drainBus() {
	if r.bus == nil || r.pipeline == nil {
		return
	}
	// Drain everything queued rather than one message per tick
	for {
		msg, ok := r.bus.Pop()
		if !ok {
			return
		}
		r.handleBusMessage(msg)
	}
}

func (r *Receiver) handleBusMessage(msg Message) {
	switch msg.Kind {
	case MessageError:
		r.log.Error().Str("error", msg.Text).Msg("Pipeline error")
		r.setMessage("Error: " + msg.Text)
		r.emitError("Pipeline error: " + msg.Text)
	case MessageWarning:
		r.log.Warn().Str("warning", msg.Text).Msg("Pipeline warning")
	case MessageEOS:
		// A live UDP feed has no natural end; treat as an anomaly signal
		r.log.Info().Msg("End of stream")
		r.setMessage(statusEnded)
	case MessageStateChanged:
		if msg.FromPipeline {
			r.log.Debug().Str("transition", msg.Text).Msg("Pipeline state changed")
		}
	default:
	}
}

// checkLiveness flips the active-stream flag when frames stop arriving. The
// pipeline keeps running; the sender may resume at any time.
func (r *Receiver) checkLiveness() {
	if !r.streaming || r.pipeline == nil {
		return
	}

	r.setFPS(r.frameTick)
	r.frameTick = 0

	if r.lastFrame.IsZero() {
		if r.active {
			r.setActive(false)
		}
		// Never clobber a status the error/EOS paths put up
		if !livenessOwnedMessage(r.message) {
			return
		}
		if time.Since(r.startedAt) > r.opts.FrameTimeout {
			r.setMessage(statusTimeout)
		} else {
			r.setMessage(statusWaiting)
		}
		return
	}

	if time.Since(r.lastFrame) > r.opts.FrameTimeout && r.active {
		r.setActive(false)
		if livenessOwnedMessage(r.message) {
			r.setMessage(statusTimeout)
		}
		r.log.Debug().
			Dur("since_last_frame", time.Since(r.lastFrame)).
			Msg("Stream timeout")
	}
}

// Setters below fire notifications only on an actual value change

func (r *Receiver) setStreaming(streaming bool) {
	if r.streaming == streaming {
		return
	}
	r.streaming = streaming
	r.notifyStatus()
}

func (r *Receiver) setActive(active bool) {
	if r.active == active {
		return
	}
	r.active = active
	r.notifyStatus()
}

func (r *Receiver) setMessage(msg string) {
	if r.message == msg {
		return
	}
	r.message = msg
	r.notifyStatus()
}

func (r *Receiver) setFPS(fps int) {
	if r.fps == fps {
		return
	}
	r.fps = fps
	r.notifyStatus()
}

func (r *Receiver) emitError(msg string) {
	if cb := r.opts.Events.OnError; cb != nil {
		cb(msg)
	}
}

func (r *Receiver) notifyStatus() {
	s := r.updateSnapshot()
	if cb := r.opts.Events.OnStatus; cb != nil {
		cb(s)
	}
}

func (r *Receiver) updateSnapshot() Status {
	s := Status{
		IsStreaming:     r.streaming,
		HasActiveStream: r.active,
		Message:         r.message,
		FrameID:         r.slot.currentID(),
		FPS:             r.fps,
	}
	r.statusMu.Lock()
	r.snapshot = s
	r.statusMu.Unlock()
	return s
}
