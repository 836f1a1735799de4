package sink

import (
	"motioncam/video/source"
)

// Sink is a destination for encoded recording segments, such as an ffmpeg
// child process writing a video file.
type Sink interface {
	// Start begins directing encoded output to the file at path. The
	// recorder never calls Start twice without an intervening Stop.
	Start(path string) error

	// Put feeds one frame to the active segment. Frames arriving while no
	// segment is active are dropped.
	Put(f source.Frame)

	// Stop finalizes the file at path. When Stop returns, the file is a
	// complete, readable segment.
	Stop(path string) error
}
