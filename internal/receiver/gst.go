package receiver

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var gstInitOnce sync.Once

// InitEngine performs GStreamer's process-wide initialization. Idempotent;
// call once at process start rather than relying on a constructor to do it.
func InitEngine() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// GstEngine is the production Engine backed by GStreamer
type GstEngine struct{}

// NewGstEngine returns a GStreamer-backed engine, initializing the library
// if this is the first engine in the process
func NewGstEngine() *GstEngine {
	InitEngine()
	return &GstEngine{}
}

// BuildPipeline parses the launch-syntax description into a pipeline
func (e *GstEngine) BuildPipeline(description string) (Pipeline, error) {
	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &gstPipeline{pipeline: pipeline}, nil
}

type gstPipeline struct {
	pipeline *gst.Pipeline
}

func (p *gstPipeline) SinkByName(name string) (Sink, error) {
	elem, err := p.pipeline.GetElementByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get element %q: %w", name, err)
	}
	return &gstSink{elem: elem, sink: app.SinkFromElement(elem)}, nil
}

func (p *gstPipeline) Bus() Bus {
	return &gstBus{
		bus:          p.pipeline.GetPipelineBus(),
		pipelineName: p.pipeline.GetName(),
	}
}

func (p *gstPipeline) SetState(s State) error {
	return p.pipeline.SetState(gstState(s))
}

func (p *gstPipeline) Release() {
	p.pipeline.Unref()
}

func gstState(s State) gst.State {
	switch s {
	case StateReady:
		return gst.StateReady
	case StatePaused:
		return gst.StatePaused
	case StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}

type gstSink struct {
	elem *gst.Element
	sink *app.Sink
}

func (s *gstSink) SetSampleHandler(h SampleHandler) {
	s.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(as *app.Sink) gst.FlowReturn {
			sample := as.PullSample()
			if sample == nil {
				// A null pull is a skipped tick, not end of stream
				return gst.FlowOK
			}
			// Don't unref the sample here; the bindings own its lifetime
			h(&gstSample{sample: sample})
			return gst.FlowOK
		},
	})
}

func (s *gstSink) Release() {
	s.elem.Unref()
}

type gstSample struct {
	sample *gst.Sample
	buffer *gst.Buffer
}

func (s *gstSample) Info() (SampleInfo, bool) {
	caps := s.sample.GetCaps()
	if caps == nil {
		return SampleInfo{}, false
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return SampleInfo{}, false
	}

	widthVal, err := structure.GetValue("width")
	if err != nil {
		return SampleInfo{}, false
	}
	heightVal, err := structure.GetValue("height")
	if err != nil {
		return SampleInfo{}, false
	}
	width, ok := widthVal.(int)
	if !ok {
		return SampleInfo{}, false
	}
	height, ok := heightVal.(int)
	if !ok {
		return SampleInfo{}, false
	}

	// GStreamer pads packed-RGB rows out to 4-byte boundaries
	stride := (width*bytesPerPixel + 3) &^ 3

	return SampleInfo{Width: width, Height: height, Stride: stride}, true
}

func (s *gstSample) Map() ([]byte, bool) {
	buffer := s.sample.GetBuffer()
	if buffer == nil {
		return nil, false
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, false
	}
	s.buffer = buffer
	return mapInfo.Bytes(), true
}

func (s *gstSample) Unmap() {
	if s.buffer != nil {
		s.buffer.Unmap()
		s.buffer = nil
	}
}

type gstBus struct {
	bus          *gst.Bus
	pipelineName string
}

func (b *gstBus) Pop() (Message, bool) {
	msg := b.bus.Pop()
	if msg == nil {
		return Message{}, false
	}
	return b.translate(msg), true
}

func (b *gstBus) translate(msg *gst.Message) Message {
	fromPipeline := msg.Source() == b.pipelineName

	switch msg.Type() {
	case gst.MessageError:
		return Message{Kind: MessageError, Text: msg.ParseError().Error(), FromPipeline: fromPipeline}
	case gst.MessageWarning:
		return Message{Kind: MessageWarning, Text: msg.String(), FromPipeline: fromPipeline}
	case gst.MessageEOS:
		return Message{Kind: MessageEOS, FromPipeline: fromPipeline}
	case gst.MessageStateChanged:
		return Message{Kind: MessageStateChanged, Text: msg.String(), FromPipeline: fromPipeline}
	default:
		return Message{Kind: MessageOther, FromPipeline: fromPipeline}
	}
}

func (b *gstBus) Release() {
	b.bus.Unref()
}
