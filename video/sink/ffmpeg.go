package sink

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"motioncam/util"
	"motioncam/video/source"
)

type FFmpegOptions struct {
	// Size of incoming frames. Must match the capture configuration.
	Size image.Point
	// FPS to declare on the raw input stream.
	FPS int
}

// FFmpegSink encodes grayscale frames to H.264 by piping raw video into an
// ffmpeg child process. One process is spawned per segment; Stop closes the
// pipe and waits for the encoder to flush, so the output file is complete
// when Stop returns.
type FFmpegSink struct {
	ffmpeg string
	opts   FFmpegOptions

	startc chan *startRequest
	b      chan []byte
	stopc  chan chan error
	closec chan chan bool
}

type startRequest struct {
	path string
	err  chan error
}

func NewFFmpegSink(opts FFmpegOptions) (*FFmpegSink, error) {
	ffmpeg, err := util.LocateFFmpeg()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg is required for saving video files: %w", err)
	}
	f := &FFmpegSink{
		ffmpeg: ffmpeg,
		opts:   opts,

		startc: make(chan *startRequest),
		b:      make(chan []byte),
		stopc:  make(chan chan error),
		closec: make(chan chan bool),
	}
	go f.loop()
	return f, nil
}

func (f *FFmpegSink) command(path string) *exec.Cmd {
	return exec.Command(
		f.ffmpeg,
		// Configure ffmpeg to read raw grayscale frames from stdin.
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", fmt.Sprintf("%dx%d", f.opts.Size.X, f.opts.Size.Y),
		"-framerate", fmt.Sprintf("%d", f.opts.FPS),
		"-i", "-",
		// Use h264 encoding with reasonable quality and speed. Note that
		// "preset" can be adjusted if the system is too slow to handle encoding.
		"-c:v", "libx264",
		"-preset", "superfast",
		"-crf", "30",
		"-pix_fmt", "yuv420p",
		// Enable fast-start so segments can be displayed in the browser
		// without full download.
		"-movflags", "+faststart",
		path,
	)
}

func (f *FFmpegSink) loop() {
	var cmd *exec.Cmd
	var pipe io.WriteCloser

	finish := func() error {
		if cmd == nil {
			return nil
		}
		pipe.Close()
		log.Info("Waiting for ffmpeg shutdown.")
		err := cmd.Wait()
		log.Infof("ffmpeg exit with status %v", err)
		cmd = nil
		pipe = nil
		return err
	}

	for {
		select {
		case req := <-f.startc:
			if cmd != nil {
				req.err <- errors.New("segment already active")
				continue
			}
			c := f.command(req.path)
			p, err := c.StdinPipe()
			if err != nil {
				req.err <- err
				continue
			}
			if err := c.Start(); err != nil {
				req.err <- fmt.Errorf("failed to start ffmpeg: %w", err)
				continue
			}
			cmd = c
			pipe = p
			req.err <- nil

		case b := <-f.b:
			if pipe == nil {
				// Not recording, drop the frame.
				continue
			}
			if _, err := pipe.Write(b); err != nil {
				log.Errorf("Error writing frame to ffmpeg pipe: %v", err)
			}

		case c := <-f.stopc:
			c <- finish()

		case c := <-f.closec:
			if err := finish(); err != nil {
				log.Errorf("Error finalizing segment on close: %v", err)
			}
			c <- true
			return
		}
	}
}

func (f *FFmpegSink) Start(path string) error {
	req := &startRequest{
		path: path,
		err:  make(chan error),
	}
	f.startc <- req
	return <-req.err
}

func (f *FFmpegSink) Put(input source.Frame) {
	f.b <- input.Data
}

func (f *FFmpegSink) Stop(path string) error {
	c := make(chan error)
	f.stopc <- c
	if err := <-c; err != nil {
		return fmt.Errorf("failed to finalize %v: %w", path, err)
	}
	return nil
}

// Close finalizes any active segment and terminates the sink.
func (f *FFmpegSink) Close() {
	c := make(chan bool)
	f.closec <- c
	<-c
}
