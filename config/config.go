package config

import (
	"fmt"
	"image"
	"time"
)

type SMTP struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// Enabled reports whether enough is configured to send mail.
func (s SMTP) Enabled() bool {
	return s.Username != "" && s.Password != "" && s.Recipient != ""
}

type Config struct {
	// URI identifies the camera: a device index ("0") or a stream address.
	URI string

	// Full capture resolution.
	Width  int
	Height int

	// Low resolution alternative, selected by CaptureLores.
	LoresWidth  int
	LoresHeight int

	// CaptureLores runs detection and recording on the low resolution
	// stream, trading video quality for CPU headroom.
	CaptureLores bool

	// MotionThreshold is the minimum histogram difference score between two
	// frames that counts as motion.
	MotionThreshold float64

	// MaxRecordingSec limits a single segment. 0 means unlimited.
	MaxRecordingSec int

	RecordingDir string

	// FilesystemMaxSize caps total bytes of stored segments. 0 disables.
	FilesystemMaxSize int64

	// DeleteAfterPublish removes local segments once published.
	DeleteAfterPublish bool

	SMTP SMTP

	// WebPushDSN is the MySQL DSN for push subscription storage. Empty
	// disables web push.
	WebPushDSN string

	// PushSubscriber is the contact address reported to push services.
	PushSubscriber string

	FPS int

	LogLevel string
}

func Default() *Config {
	return &Config{
		URI:             "0",
		Width:           1280,
		Height:          720,
		LoresWidth:      320,
		LoresHeight:     240,
		MotionThreshold: 7.2,
		RecordingDir:    "./recordings/",
		SMTP: SMTP{
			Server: "smtp.gmail.com",
			Port:   465,
		},
		FPS:      15,
		LogLevel: "info",
	}
}

// CaptureSize is the frame size the whole pipeline runs at.
func (c *Config) CaptureSize() image.Point {
	if c.CaptureLores {
		return image.Point{X: c.LoresWidth, Y: c.LoresHeight}
	}
	return image.Point{X: c.Width, Y: c.Height}
}

func (c *Config) MaxRecordingDuration() time.Duration {
	return time.Duration(c.MaxRecordingSec) * time.Second
}

func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.LoresWidth <= 0 || c.LoresHeight <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d / %dx%d",
			c.Width, c.Height, c.LoresWidth, c.LoresHeight)
	}
	if c.MotionThreshold < 0 {
		return fmt.Errorf("motion threshold must be non-negative, got %v", c.MotionThreshold)
	}
	if c.MaxRecordingSec < 0 {
		return fmt.Errorf("max recording length must be non-negative, got %d", c.MaxRecordingSec)
	}
	if c.RecordingDir == "" {
		return fmt.Errorf("recording directory is required")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	return nil
}
