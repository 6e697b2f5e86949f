package output

import (
	"image"
)

// Output defines the interface for frame renderers. The receiver does not
// care who consumes its frames; anything that can accept RGBA images can be
// plugged in here.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// Quality is the JPEG encode quality (1-100)
	Quality int
}
