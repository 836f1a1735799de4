package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motioncam/video"
)

type recordingListener struct {
	mu       sync.Mutex
	received []*Notification
	err      error
}

func (l *recordingListener) Notify(ctx context.Context, n *Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, n)
	return l.err
}

func (l *recordingListener) notifications() []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received[:]
}

// gatedListener blocks each delivery until released.
type gatedListener struct {
	started chan string
	release chan struct{}
}

func (l *gatedListener) Notify(ctx context.Context, n *Notification) error {
	l.started <- n.Identifier
	<-l.release
	return nil
}

func testSegment(t *testing.T, fs *video.Filesystem, at time.Time) *video.SegmentRecord {
	t.Helper()
	r := fs.NewRecord(at)
	require.NoError(t, os.WriteFile(r.Path, []byte("segment"), 0644))
	fs.Commit(r)
	return r
}

func newTestFS(t *testing.T) *video.Filesystem {
	t.Helper()
	fs, err := video.NewFilesystem(video.FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)
	return fs
}

func TestPublishDeliversToAllListeners(t *testing.T) {
	fs := newTestFS(t)
	a := &recordingListener{}
	b := &recordingListener{}
	n := NewNotifier(fs, Options{})
	n.Listeners = append(n.Listeners, a, b)

	r := testSegment(t, fs, time.Now())
	n.Publish(r)
	n.Close()

	require.Len(t, a.notifications(), 1)
	require.Len(t, b.notifications(), 1)
	got := a.notifications()[0]
	assert.Equal(t, r.Path, got.Path)
	assert.Equal(t, r.Identifier(), got.Identifier)
}

func TestListenerFailureDoesNotBlockOthers(t *testing.T) {
	fs := newTestFS(t)
	failing := &recordingListener{err: errors.New("smtp auth failed")}
	ok := &recordingListener{}
	n := NewNotifier(fs, Options{})
	n.Listeners = append(n.Listeners, failing, ok)

	r := testSegment(t, fs, time.Now())
	n.Publish(r)
	n.Close()

	assert.Len(t, ok.notifications(), 1)
	// Single attempt per segment; the file stays on disk.
	_, err := os.Stat(r.Path)
	assert.NoError(t, err)
}

func TestDeleteAfterPublish(t *testing.T) {
	fs := newTestFS(t)
	failing := &recordingListener{err: errors.New("timeout")}
	n := NewNotifier(fs, Options{DeleteAfterPublish: true})
	n.Listeners = append(n.Listeners, failing)

	r := testSegment(t, fs, time.Now())
	n.Publish(r)
	n.Close()

	// Deleted per configuration regardless of publish outcome.
	_, err := os.Stat(r.Path)
	assert.True(t, os.IsNotExist(err))
	assert.Nil(t, fs.GetRecordByID(r.Identifier()))
}

func TestPublishNeverBlocksWhenQueueFull(t *testing.T) {
	fs := newTestFS(t)
	gate := &gatedListener{
		started: make(chan string, 3),
		release: make(chan struct{}),
	}
	n := NewNotifier(fs, Options{QueueSize: 1})
	n.Listeners = append(n.Listeners, gate)

	t0 := time.Now()
	r1 := testSegment(t, fs, t0)
	r2 := testSegment(t, fs, t0.Add(time.Second))
	r3 := testSegment(t, fs, t0.Add(2*time.Second))

	n.Publish(r1)
	// Wait until the worker is inside the r1 delivery so r2 occupies the
	// queue slot deterministically.
	require.Equal(t, r1.Identifier(), <-gate.started)

	n.Publish(r2)

	done := make(chan struct{})
	go func() {
		n.Publish(r3) // queue full, must drop without blocking
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(gate.release)
	require.Equal(t, r2.Identifier(), <-gate.started)
	n.Close()

	select {
	case id := <-gate.started:
		t.Fatalf("unexpected delivery of %v", id)
	default:
	}
}

func TestListenerTimeoutBounded(t *testing.T) {
	fs := newTestFS(t)
	slow := listenerFunc(func(ctx context.Context, n *Notification) error {
		<-ctx.Done()
		return ctx.Err()
	})
	n := NewNotifier(fs, Options{Timeout: 20 * time.Millisecond})
	n.Listeners = append(n.Listeners, slow)

	r := testSegment(t, fs, time.Now())
	start := time.Now()
	n.Publish(r)
	n.Close()
	assert.Less(t, time.Since(start), time.Second)
}

type listenerFunc func(ctx context.Context, n *Notification) error

func (f listenerFunc) Notify(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

func TestCloseDrainsQueue(t *testing.T) {
	fs := newTestFS(t)
	l := &recordingListener{}
	n := NewNotifier(fs, Options{})
	n.Listeners = append(n.Listeners, l)

	t0 := time.Now()
	for i := 0; i < 5; i++ {
		n.Publish(testSegment(t, fs, t0.Add(time.Duration(i)*time.Second)))
	}
	n.Close()
	assert.Len(t, l.notifications(), 5)
}
