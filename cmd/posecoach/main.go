// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package main runs a coaching session against the analysis service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	plogging "github.com/pion/logging"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // Registers host camera drivers.
	"github.com/pion/posecoach/config"
	"github.com/pion/posecoach/keypoint"
	"github.com/pion/posecoach/logging"
	"github.com/pion/posecoach/media"
	"github.com/pion/posecoach/media/filecam"
	"github.com/pion/posecoach/pose"
	"github.com/pion/posecoach/pose/movenet"
	"github.com/pion/posecoach/render"
	"github.com/pion/posecoach/session"
	"github.com/pion/posecoach/stats"
	"github.com/pion/posecoach/transport"
	"golang.org/x/sync/errgroup"
)

// maxInferenceSide bounds the frame edge handed to the model.
const maxInferenceSide = 640

const statsInterval = time.Second

var (
	errUnknownLogLevel = errors.New("unknown log level")
	errNoModel         = errors.New("a pose model is required for this camera")
)

type flags struct {
	config     string
	server     string
	exercise   string
	resolution string
	device     string
	camera     string
	video      string
	model      string
	fps        int
	log        string
	stats      string
	frameLog   string
	snapshot   string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.config, "config", "posecoach.yaml", "Config file")
	flag.StringVar(&f.server, "server", "", "Analysis service base URL")
	flag.StringVar(&f.exercise, "exercise", "", "Exercise: push_up/squat")
	flag.StringVar(&f.resolution, "resolution", "", "Camera resolution: 480p/720p/1080p")
	flag.StringVar(&f.device, "device", "", "Exact camera device id")
	flag.StringVar(&f.camera, "camera", "", "Capture backend: device/file/virtual")
	flag.StringVar(&f.video, "video", "", "Video file played as the camera")
	flag.StringVar(&f.model, "model", "", "ONNX pose model")
	flag.IntVar(&f.fps, "fps", 0, "Pose sampling rate")
	flag.StringVar(&f.log, "log", "info", "Log level")
	flag.StringVar(&f.stats, "stats", "", "Serve live stats on this address")
	flag.StringVar(&f.frameLog, "frame-log", "", "Per-frame trace: file, stdout or stderr")
	flag.StringVar(&f.snapshot, "snapshot", "", "Write the last overlay to this PNG on exit")
	flag.Parse()

	return f
}

// apply overrides cfg with the flags given on the command line.
func (f *flags) apply(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "server":
			cfg.ServerURL = f.server
		case "exercise":
			cfg.Exercise = f.exercise
		case "resolution":
			cfg.Resolution = f.resolution
		case "device":
			cfg.DeviceID = f.device
		case "camera":
			cfg.Camera = config.Camera(f.camera)
		case "video":
			cfg.VideoFile = f.video
		case "model":
			cfg.ModelPath = f.model
		case "fps":
			cfg.TargetFPS = f.fps
		case "stats":
			cfg.StatsAddr = f.stats
		case "frame-log":
			cfg.FrameLog = f.frameLog
		}
	})
}

func main() {
	f := parseFlags()

	loggerFactory, err := getLoggerFactory(f.log)
	if err != nil {
		log.Fatalf("get logger factory: %v", err)
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	f.apply(cfg)
	if err = cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f.snapshot, loggerFactory); err != nil {
		log.Fatalf("posecoach: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, snapshot string, loggerFactory *plogging.DefaultLoggerFactory) error {
	logger := loggerFactory.NewLogger("posecoach")

	capturer, err := newCapturer(cfg, loggerFactory)
	if err != nil {
		return err
	}
	manager, err := media.NewManager(capturer, media.SetLoggerFactory(loggerFactory))
	if err != nil {
		return err
	}
	devices, err := manager.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for id, d := range devices {
		logger.Infof("camera %s: %s", id, d.DisplayName())
	}

	poseRuntime, err := newRuntime(cfg, loggerFactory)
	if err != nil {
		return err
	}
	defer func() {
		if err := poseRuntime.Dispose(); err != nil {
			logger.Warnf("dispose model: %v", err)
		}
	}()
	// Load the model while the camera warms up.
	go func() {
		if err := poseRuntime.Initialize(ctx); err != nil {
			logger.Warnf("preload model: %v", err)
		}
	}()

	frameLog, err := logging.GetLogFile(cfg.FrameLog)
	if err != nil {
		return err
	}
	defer func() { _ = frameLog.Close() }()

	var monitor *stats.Server
	if cfg.StatsAddr != "" {
		if monitor, err = stats.New(stats.SetLoggerFactory(loggerFactory)); err != nil {
			return err
		}
	}

	var link atomic.Pointer[transport.Transport]
	dial := session.TransportDialer(cfg.ServerURL,
		transport.MaxBufferedBytes(cfg.MaxBufferedBytes),
		transport.FrameLogWriter(frameLog),
		transport.SetLoggerFactory(loggerFactory),
		transport.OnClose(func(err error) {
			if err != nil {
				logger.Warnf("service connection lost: %v", err)
			}
		}),
	)

	renderer := render.New()
	renderer.Threshold = cfg.RenderThreshold

	ctrl, err := session.New(manager, poseRuntime,
		session.WithExercise(keypoint.Exercise(cfg.Exercise)),
		session.WithConstraints(cfg.Constraints()),
		session.WithRenderer(renderer),
		session.WithSamplerOptions(pose.TargetFPS(cfg.TargetFPS), pose.MinScore(cfg.MinScore)),
		session.SetLoggerFactory(loggerFactory),
		session.WithDialer(func(ctx context.Context, ex keypoint.Exercise, onTick func(keypoint.Tick)) (session.Link, error) {
			l, err := dial(ctx, ex, onTick)
			if err != nil {
				return nil, err
			}
			if t, ok := l.(*transport.Transport); ok {
				link.Store(t)
			}

			return l, nil
		}),
		session.OnTick(func(tick keypoint.Tick) {
			logger.Info(strings.TrimSuffix(logging.TickFormat(time.Now(), tick), "\n"))
			if monitor != nil {
				monitor.Record("reps", float64(tick.RepCount))
			}
		}),
	)
	if err != nil {
		return err
	}

	if err := ctrl.Start(ctx); err != nil {
		var de *media.DeviceError
		if errors.As(err, &de) {
			return fmt.Errorf("%s: %w", de.Message, err)
		}

		return err
	}
	if st := ctrl.Status(); st.LinkError != nil {
		logger.Warnf("running without the analysis service: %v", st.LinkError)
	}
	logger.Infof("session %s started: exercise=%s", ctrl.ID(), cfg.Exercise)

	g, gctx := errgroup.WithContext(ctx)
	if monitor != nil {
		g.Go(func() error {
			return monitor.Start(gctx, cfg.StatsAddr)
		})
		g.Go(func() error {
			feedMonitor(gctx, monitor, ctrl, &link)

			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if snapshot != "" {
			if err := writeSnapshot(snapshot, ctrl); err != nil {
				logger.Errorf("snapshot: %v", err)
			}
		}

		return ctrl.Close()
	})

	return g.Wait()
}

func newCapturer(cfg *config.Config, loggerFactory plogging.LoggerFactory) (media.Capturer, error) {
	switch cfg.Camera {
	case config.CameraFile:
		return filecam.New(cfg.VideoFile, filecam.SetLoggerFactory(loggerFactory))
	case config.CameraVirtual:
		return media.NewVirtualCapturer(media.VirtualDevice{
			ID:     "virtual0",
			Label:  "Virtual camera",
			Facing: media.FacingUser,
		}).WithGenerator(gradient, pose.DefaultTargetFPS), nil
	default:
		return media.NewDeviceCapturer(loggerFactory), nil
	}
}

func newRuntime(cfg *config.Config, loggerFactory plogging.LoggerFactory) (*pose.Runtime, error) {
	if cfg.ModelPath == "" {
		if cfg.Camera != config.CameraVirtual {
			return nil, errNoModel
		}

		return pose.StaticRuntime(demoEstimator()), nil
	}

	load := movenet.Loader(cfg.ModelPath, cfg.ModelInputSize)

	return pose.NewRuntime(func(ctx context.Context) (pose.Estimator, error) {
		est, err := load(ctx)
		if err != nil {
			return nil, err
		}

		return pose.Downscale(est, maxInferenceSide), nil
	}, pose.RuntimeLoggerFactory(loggerFactory))
}

// feedMonitor samples session counters into the stats page.
func feedMonitor(ctx context.Context, monitor *stats.Server, ctrl *session.Controller, link *atomic.Pointer[transport.Transport]) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := ctrl.Status()
			monitor.Record("emitted", float64(st.Sampler.Emitted))
			monitor.Record("inference_errors", float64(st.Sampler.InferenceErrors))
			if t := link.Load(); t != nil {
				ts := t.Stats()
				monitor.Record("sent", float64(ts.Sent))
				monitor.Record("dropped", float64(ts.Dropped))
			}
		}
	}
}

func getLoggerFactory(logLevel string) (*plogging.DefaultLoggerFactory, error) {
	logLevels := map[string]plogging.LogLevel{
		"disable": plogging.LogLevelDisabled,
		"error":   plogging.LogLevelError,
		"warn":    plogging.LogLevelWarn,
		"info":    plogging.LogLevelInfo,
		"debug":   plogging.LogLevelDebug,
		"trace":   plogging.LogLevelTrace,
	}

	level, ok := logLevels[strings.ToLower(logLevel)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownLogLevel, logLevel)
	}

	loggerFactory := &plogging.DefaultLoggerFactory{
		Writer:          os.Stdout,
		DefaultLogLevel: level,
		ScopeLevels:     make(map[string]plogging.LogLevel),
	}

	return loggerFactory, nil
}
