package video

import (
	"time"

	log "github.com/sirupsen/logrus"

	"motioncam/video/sink"
)

// SilenceTimeout is the quiescence window: an active recording is finalized
// once this much time passes without a score above the motion threshold.
const SilenceTimeout = 5 * time.Second

// Publisher receives finalized segments for transport. Implementations must
// not block the caller.
type Publisher interface {
	Publish(r *SegmentRecord)
}

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	}
	return "unknown"
}

type RecorderOptions struct {
	// MotionThreshold is the minimum difference score that counts as motion.
	MotionThreshold float64

	// MaxDuration caps the length of a single segment. 0 means unlimited.
	MaxDuration time.Duration
}

// Recorder owns the record/stop state machine. While Recording, startedAt
// and lastMotionAt are set and lastMotionAt >= startedAt; both are zero while
// Idle. The recorder is driven from the detection loop only; its methods are
// not safe for concurrent use.
type Recorder struct {
	opts RecorderOptions
	fs   *Filesystem
	sink sink.Sink
	pub  Publisher

	state        State
	startedAt    time.Time
	lastMotionAt time.Time
	rec          *SegmentRecord
}

func NewRecorder(fs *Filesystem, s sink.Sink, pub Publisher, opts RecorderOptions) *Recorder {
	return &Recorder{
		opts:  opts,
		fs:    fs,
		sink:  s,
		pub:   pub,
		state: Idle,
	}
}

func (r *Recorder) State() State {
	return r.state
}

// Observe feeds one (score, now) pair through the state machine. Precedence:
// motion start or refresh, then the duration cap, then the silence timeout.
// A score above threshold while already recording refreshes lastMotionAt but
// never starts a new segment; the active episode stays continuous.
func (r *Recorder) Observe(score float64, now time.Time) {
	switch {
	case score > r.opts.MotionThreshold && !r.maxDurationExceeded(now):
		if r.state == Idle {
			r.start(now)
		} else {
			r.lastMotionAt = now
		}

	case r.maxDurationExceeded(now):
		log.Infof("Max recording duration exceeded after %v", now.Sub(r.startedAt))
		r.Stop()

	case r.state == Recording && now.Sub(r.lastMotionAt) > SilenceTimeout:
		log.Info("Max time since last motion detection exceeded")
		r.Stop()
	}
}

func (r *Recorder) maxDurationExceeded(now time.Time) bool {
	return r.opts.MaxDuration > 0 && r.state == Recording &&
		now.Sub(r.startedAt) >= r.opts.MaxDuration
}

func (r *Recorder) start(now time.Time) {
	rec := r.fs.NewRecord(now)
	if err := r.sink.Start(rec.Path); err != nil {
		// Stay Idle; the next motion frame retries with a fresh path.
		log.Errorf("Failed to start segment %v: %v", rec.Path, err)
		return
	}
	log.Infof("Start recording of new segment: %v", rec.Path)
	r.state = Recording
	r.startedAt = now
	r.lastMotionAt = now
	r.rec = rec
	metricRecordingsStarted.Inc()
}

// Stop finalizes the active segment and hands it to the publisher. It is a
// no-op while Idle, so the shutdown path may call it unconditionally.
func (r *Recorder) Stop() {
	if r.state != Recording {
		return
	}
	rec := r.rec
	log.Infof("Writing segment %v", rec.Path)
	if err := r.sink.Stop(rec.Path); err != nil {
		log.Errorf("Failed to finalize segment %v: %v", rec.Path, err)
	}
	r.fs.Commit(rec)
	if r.pub != nil {
		r.pub.Publish(rec)
	}

	r.state = Idle
	r.startedAt = time.Time{}
	r.lastMotionAt = time.Time{}
	r.rec = nil
	metricRecordingsCompleted.Inc()
}
