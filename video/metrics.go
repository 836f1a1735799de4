package video

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_frames_processed_total",
		Help: "Number of frames pulled from the capture source.",
	})
	metricCaptureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_capture_errors_total",
		Help: "Number of transient frame capture failures.",
	})
	metricScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motioncam_motion_score",
		Help: "Most recent frame difference score.",
	})
	metricRecordingsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_recordings_started_total",
		Help: "Number of recording episodes started.",
	})
	metricRecordingsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_recordings_completed_total",
		Help: "Number of recording episodes finalized.",
	})
)
