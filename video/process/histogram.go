package process

import (
	"errors"
	"fmt"

	"motioncam/video/source"
)

// Bins is the number of intensity buckets compared between frames.
const Bins = 256

// ErrShapeMismatch reports two frames of different dimensions. Frame sizes
// are fixed at configuration time, so this is a logic error; the caller
// should abort rather than skip the frame.
var ErrShapeMismatch = errors.New("frame shapes differ")

// Histogram counts the intensity values of a frame into 256 bins.
func Histogram(f source.Frame) [Bins]int {
	var h [Bins]int
	for _, v := range f.Data {
		h[v]++
	}
	return h
}

// Score computes the dissimilarity of two equal-shaped frames as the mean
// absolute per-bin difference of their intensity histograms. The result is
// non-negative and position-invariant: tolerant to small exposure and sensor
// jitter that raw pixel subtraction would amplify, while still sensitive to
// scene-content change.
func Score(current, previous source.Frame) (float64, error) {
	if current.Width != previous.Width || current.Height != previous.Height {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			current.Width, current.Height, previous.Width, previous.Height)
	}

	ch := Histogram(current)
	ph := Histogram(previous)

	var sum float64
	for i := 0; i < Bins; i++ {
		d := ch[i] - ph[i]
		if d < 0 {
			d = -d
		}
		sum += float64(d)
	}
	return sum / Bins, nil
}
