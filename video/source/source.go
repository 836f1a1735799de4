package source

import (
	"context"
	"errors"
	"image"
	"time"
)

// Frame is one grayscale sample buffer from the video source. Data holds
// Width*Height intensity values (0-255) in row-major order. The detection
// loop owns a frame for exactly one comparison; it is superseded by the next
// capture and must not be retained beyond the "previous frame" slot.
type Frame struct {
	Data   []uint8
	Width  int
	Height int
	Time   time.Time
}

func (f Frame) Size() image.Point {
	return image.Point{X: f.Width, Y: f.Height}
}

// ErrNoFrame indicates a transient capture failure. The detection loop logs
// it and continues with the next iteration.
var ErrNoFrame = errors.New("no frame available from capture source")

// Source defines a stream of grayscale frames, such as a camera.
type Source interface {
	// Capture blocks until the next frame is available. Frame dimensions are
	// fixed at configuration time. An error wrapping ErrNoFrame is
	// recoverable by retrying on the next iteration.
	Capture(ctx context.Context) (Frame, error)

	// Size returns the size of the capture source.
	Size() image.Point

	// Close disconnects from the capture source and frees up all resources.
	Close()
}
