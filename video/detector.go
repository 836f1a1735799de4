package video

import (
	"context"

	log "github.com/sirupsen/logrus"

	"motioncam/video/process"
	"motioncam/video/sink"
	"motioncam/video/source"
)

// Detector drives the capture, score, transition sequence from a single
// goroutine. One frame is retained as the comparison baseline; everything
// else is superseded each iteration.
type Detector struct {
	src source.Source
	snk sink.Sink
	rec *Recorder
}

func NewDetector(src source.Source, snk sink.Sink, rec *Recorder) *Detector {
	return &Detector{
		src: src,
		snk: snk,
		rec: rec,
	}
}

// Run loops until ctx is canceled or a logic error surfaces from scoring.
// Transient capture errors are logged and the loop continues with the next
// frame. On return, any in-flight segment has been finalized.
func (d *Detector) Run(ctx context.Context) error {
	defer d.rec.Stop()

	var prev *source.Frame
	for ctx.Err() == nil {
		f, err := d.src.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			metricCaptureErrors.Inc()
			log.Errorf("An error occurred in the motion detection loop: %v", err)
			continue
		}
		metricFrames.Inc()

		if prev != nil {
			score, err := process.Score(f, *prev)
			if err != nil {
				// Shape mismatch is a logic error; do not swallow it.
				return err
			}
			metricScore.Set(score)
			d.rec.Observe(score, f.Time)
		}

		// Feed the encoder after the transition so a segment started on this
		// frame includes it and a finalized one does not.
		d.snk.Put(f)
		prev = &f
	}
	return nil
}
