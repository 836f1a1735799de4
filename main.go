package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"motioncam/config"
	"motioncam/notify"
	"motioncam/serve"
	"motioncam/video"
	"motioncam/video/sink"
	"motioncam/video/source"
)

var (
	port       = flag.Int("port", 8080, "Port to host the archive API.")
	configPath = flag.String("config", "motioncam.json", "Path to JSON configuration file.")
)

// shutdownGrace bounds how long we wait for the detection loop to finalize
// an in-flight segment after a stop signal.
const shutdownGrace = 10 * time.Second

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	cfg := config.Get()

	snk, err := sink.NewFFmpegSink(sink.FFmpegOptions{
		Size: cfg.CaptureSize(),
		FPS:  cfg.FPS,
	})
	if err != nil {
		log.Fatalf("Failed to create video sink: %v", err)
	}

	notifier := notify.NewNotifier(fs, notify.Options{
		DeleteAfterPublish: cfg.DeleteAfterPublish,
	})
	if cfg.SMTP.Enabled() {
		notifier.Listeners = append(notifier.Listeners, notify.NewMailer(notify.MailerOptions{
			Server:    cfg.SMTP.Server,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			Recipient: cfg.SMTP.Recipient,
		}))
	}
	var wp *notify.WebPush
	if cfg.WebPushDSN != "" {
		wp, err = notify.NewWebPush(cfg.WebPushDSN, cfg.PushSubscriber)
		if err != nil {
			log.Fatalf("Failed to initialize web push: %v", err)
		}
		notifier.Listeners = append(notifier.Listeners, wp)
	}

	updates := serve.NewUpdateServer()
	fs.Listeners = append(fs.Listeners, updates)
	notifier.Listeners = append(notifier.Listeners, updates)

	src, err := source.NewVideoCapture(cfg.URI, cfg.CaptureSize())
	if err != nil {
		log.Fatalf("Failed to open capture source: %v", err)
	}

	rec := video.NewRecorder(fs, snk, notifier, video.RecorderOptions{
		MotionThreshold: cfg.MotionThreshold,
		MaxDuration:     cfg.MaxRecordingDuration(),
	})
	det := video.NewDetector(src, snk, rec)

	go serveHTTP(fs, updates, wp)

	runErr := make(chan error, 1)
	go func() {
		runErr <- det.Run(ctx)
	}()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Infof("Caught signal %v, shutting down", sig)
		cancel()
		go func() {
			<-sigs
			log.Warn("Second signal, forcing exit")
			os.Exit(1)
		}()
		select {
		case <-runErr:
		case <-time.After(shutdownGrace):
			// The loop may still publish; skip the clean drain.
			log.Warn("Detection loop did not stop in time, exiting")
			os.Exit(1)
		}
	case err := <-runErr:
		if err != nil {
			log.Errorf("Detection loop failed: %v", err)
		}
		cancel()
	}

	// Drain queued publishes, then release the camera and encoder.
	notifier.Close()
	src.Close()
	snk.Close()
}

func setup(ctx context.Context) (*video.Filesystem, error) {
	// The reload callback runs on the watcher goroutine, possibly before the
	// filesystem exists; hand it over through an atomic slot.
	var fsv atomic.Value
	err := config.Load(ctx, *configPath, func(c *config.Config) {
		applyLogLevel(c)
		if fs, ok := fsv.Load().(*video.Filesystem); ok {
			fs.SetMaxSize(c.FilesystemMaxSize)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %v: %w", *configPath, err)
	}
	cfg := config.Get()
	applyLogLevel(cfg)

	fs, err := video.NewFilesystem(video.FilesystemOptions{
		BasePath: cfg.RecordingDir,
		MaxSize:  cfg.FilesystemMaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open recording directory: %w", err)
	}
	fsv.Store(fs)
	return fs, nil
}

func applyLogLevel(c *config.Config) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, keeping %v", c.LogLevel, log.GetLevel())
		return
	}
	log.SetLevel(level)
}

func serveHTTP(fs *video.Filesystem, updates *serve.UpdateServer, wp *notify.WebPush) {
	mux := http.NewServeMux()
	mux.Handle("/events", &serve.MetaServer{FS: fs})
	mux.Handle("/eventsws", updates)
	mux.Handle("/video", serve.NewVideoServer(fs))
	mux.Handle("/delete", &serve.DeleteServer{FS: fs})
	mux.Handle("/metrics", promhttp.Handler())
	if wp != nil {
		wp.RegisterHandlers(mux)
	}

	log.Infof("Hosting archive API on port %d", *port)
	h := handlers.LoggingHandler(os.Stdout, mux)
	log.Println(http.ListenAndServe(fmt.Sprintf(":%d", *port), h))
}
