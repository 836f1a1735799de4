package util

import (
	"os"
	"os/exec"
)

// LocateFFmpeg returns the path to the ffmpeg binary. The FFMPEG environment
// variable takes precedence over a $PATH lookup.
func LocateFFmpeg() (string, error) {
	if p := os.Getenv("FFMPEG"); p != "" {
		return p, nil
	}
	return exec.LookPath("ffmpeg")
}
