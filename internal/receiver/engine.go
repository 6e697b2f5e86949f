package receiver

// The transport/decode engine is an external collaborator. The receiver only
// depends on the small contract below: build a pipeline from a declarative
// topology string, look up the sink endpoint by name, register a new-sample
// handler, pop pending control-plane messages without blocking, and drive
// state transitions. The production implementation wraps GStreamer (gst.go);
// tests substitute a fake.

// State is one of the engine's pipeline states.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String returns the engine's name for the state
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	}
	return "UNKNOWN"
}

// MessageKind classifies control-plane messages
type MessageKind int

const (
	// MessageOther covers every category the receiver ignores
	MessageOther MessageKind = iota
	MessageError
	MessageWarning
	MessageEOS
	MessageStateChanged
)

// Message is one control-plane event popped from the pipeline bus
type Message struct {
	Kind MessageKind

	// Text carries the error/warning text, or a readable rendering of a
	// state transition
	Text string

	// FromPipeline is true when the message subject is the top-level
	// pipeline rather than one of its child elements
	FromPipeline bool
}

// SampleInfo describes a decoded sample's geometry. Pixel layout is packed
// 3-byte RGB; Stride may exceed Width*3 when rows carry padding.
type SampleInfo struct {
	Width  int
	Height int
	Stride int
}

// Sample is one decoded frame plus its format metadata, delivered by the
// sink. Mapped data is only valid until Unmap; implementations of the
// ingestion path must copy before returning.
type Sample interface {
	// Info returns the sample's format metadata, false when absent
	Info() (SampleInfo, bool)

	// Map exposes the raw pixel data for reading, false when the sample
	// carries no buffer
	Map() ([]byte, bool)

	// Unmap releases the mapping. Safe to call after a failed Map.
	Unmap()
}

// SampleHandler is invoked on the engine's streaming thread, once per decoded
// sample. It must not block and must not retain the sample past the call.
type SampleHandler func(Sample)

// Sink is the terminal pipeline element decoded samples are pulled from
type Sink interface {
	SetSampleHandler(SampleHandler)

	// Release drops the lookup reference acquired by SinkByName
	Release()
}

// Bus carries asynchronous error/warning/state events from the pipeline
type Bus interface {
	// Pop returns the next pending message without blocking; ok is false
	// when the queue is empty
	Pop() (msg Message, ok bool)

	// Release drops the bus reference
	Release()
}

// Pipeline is an opaque handle to a built engine pipeline
type Pipeline interface {
	// SinkByName looks up the named sink endpoint
	SinkByName(name string) (Sink, error)

	// Bus returns the pipeline's control-plane message channel
	Bus() Bus

	// SetState requests a state transition. The request may complete
	// asynchronously inside the engine; callers must not wait on it.
	SetState(State) error

	// Release drops the pipeline handle. Call only after SetState(StateNull).
	Release()
}

// Engine builds pipelines from declarative topology strings
type Engine interface {
	BuildPipeline(description string) (Pipeline, error)
}
