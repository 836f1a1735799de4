package notify

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"motioncam/util"
	"motioncam/video"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultQueueSize = 8
)

var (
	metricPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_publish_failures_total",
		Help: "Number of failed segment publish attempts.",
	})
	metricPublishDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motioncam_publish_dropped_total",
		Help: "Number of segments skipped because the publish queue was full.",
	})
)

// Notification describes one finalized recording segment. It is sent to all
// Listeners registered with the Notifier.
type Notification struct {
	Time        time.Time
	TimeString  string
	Identifier  string
	Path        string
	DurationSec int
}

type Listener interface {
	Notify(ctx context.Context, n *Notification) error
}

type Options struct {
	// DeleteAfterPublish removes the local segment file once every listener
	// has had its single attempt, regardless of outcome.
	DeleteAfterPublish bool

	// Timeout bounds one listener attempt. 0 means DefaultTimeout.
	Timeout time.Duration

	// QueueSize bounds the number of segments waiting for transport.
	// 0 means DefaultQueueSize.
	QueueSize int
}

// Notifier fans finalized segments out to its listeners from a dedicated
// worker goroutine, so a slow transport never stalls the detection loop.
// Each listener gets a single bounded attempt per segment; there is no retry.
type Notifier struct {
	Listeners []Listener

	opts    Options
	fs      *video.Filesystem
	queue   chan *video.SegmentRecord
	drained *util.Event
}

func NewNotifier(fs *video.Filesystem, opts Options) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	n := &Notifier{
		opts:    opts,
		fs:      fs,
		queue:   make(chan *video.SegmentRecord, opts.QueueSize),
		drained: util.NewEvent(),
	}
	go n.worker()
	return n
}

// Publish implements video.Publisher. It never blocks: when the queue is
// full the segment is skipped and the file kept on disk.
func (n *Notifier) Publish(r *video.SegmentRecord) {
	select {
	case n.queue <- r:
	default:
		metricPublishDropped.Inc()
		log.Errorf("Publish queue full, keeping %v on disk without transport", r.Path)
	}
}

// Close stops accepting segments and waits for queued publishes to finish.
// The caller must ensure no Publish call runs concurrently.
func (n *Notifier) Close() {
	close(n.queue)
	n.drained.Wait()
}

func (n *Notifier) worker() {
	for r := range n.queue {
		n.publish(r)
	}
	n.drained.Notify()
}

func (n *Notifier) publish(r *video.SegmentRecord) {
	notification := &Notification{
		Time:        r.Time,
		TimeString:  r.Time.Format("3:04 PM"),
		Identifier:  r.Identifier(),
		Path:        r.Path,
		DurationSec: r.DurationSec,
	}
	for _, l := range n.Listeners {
		ctx, cancel := context.WithTimeout(context.Background(), n.opts.Timeout)
		if err := l.Notify(ctx, notification); err != nil {
			metricPublishFailures.Inc()
			log.Errorf("Failed to publish %v: %v", r.Path, err)
		}
		cancel()
	}
	if n.opts.DeleteAfterPublish {
		log.Infof("Deleting local recording %v", r.Path)
		if err := n.fs.Delete(r); err != nil {
			log.Errorf("Failed to delete local recording %v: %v", r.Path, err)
		}
	}
}
