package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-shelf/config"
	"github.com/nvr-ai/go-shelf/images"
	"github.com/nvr-ai/go-shelf/inference"
	"github.com/nvr-ai/go-shelf/inference/providers"
	"github.com/nvr-ai/go-shelf/profiler"
	"github.com/nvr-ai/go-shelf/server"
)

var errUsage = errors.New("no mode selected")

type options struct {
	configPath string
	imagePath  string
	dirPath    string
	videoPath  string
	deviceID   int
	outPath    string
	serve      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (defaults apply when empty)")
	flag.StringVar(&opts.imagePath, "image", "", "Path to an image to annotate")
	flag.StringVar(&opts.dirPath, "dir", "", "Directory of images to annotate")
	flag.StringVar(&opts.videoPath, "video", "", "Path to a video file to scan")
	flag.IntVar(&opts.deviceID, "camera", -1, "Video capture device to scan (-1 disables)")
	flag.StringVar(&opts.outPath, "out", "", "Where to write the annotated image, directory or video")
	flag.BoolVar(&opts.serve, "serve", false, "Serve detections over HTTP")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts)
	stop()

	switch {
	case errors.Is(err, errUsage):
		flag.Usage()
		os.Exit(2)
	case err != nil:
		logrus.WithError(err).Fatal("shelfaudit failed")
	}
}

// mode picks the action selected by opts, or nil when none is.
func (o options) mode() func(context.Context, *app) error {
	switch {
	case o.serve:
		return func(ctx context.Context, a *app) error { return a.serve(ctx) }
	case o.imagePath != "":
		return func(ctx context.Context, a *app) error { return a.annotateImage(ctx, o.imagePath, o.outPath) }
	case o.dirPath != "":
		return func(ctx context.Context, a *app) error { return a.annotateDir(ctx, o.dirPath, o.outPath) }
	case o.videoPath != "":
		return func(ctx context.Context, a *app) error { return a.scan(ctx, o.videoPath, o.outPath) }
	case o.deviceID >= 0:
		return func(ctx context.Context, a *app) error { return a.scan(ctx, o.deviceID, o.outPath) }
	}
	return nil
}

// run loads the models, executes the selected mode and releases the models
// before returning.
func run(ctx context.Context, opts options) error {
	mode := opts.mode()
	if mode == nil {
		return errUsage
	}

	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}
	}
	logger := cfg.Logger()

	a, err := newApp(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to load models")
	}
	defer a.Close()

	return mode(ctx, a)
}

type app struct {
	cfg        config.Config
	log        *logrus.Logger
	engine     inference.Engine
	classifier *inference.Classifier
	prof       *profiler.Profiler
}

func newApp(cfg config.Config, logger *logrus.Logger) (*app, error) {
	runner, err := providers.NewRunner(cfg.Model)
	if err != nil {
		return nil, errors.Wrap(err, "detection model")
	}
	prof := profiler.New(profiler.DefaultMaxSamples)
	engine, err := inference.NewEngineBuilder().
		WithRunner(runner).
		WithPostProcess(cfg.PostProcess).
		WithLogger(logger).
		WithProfiler(prof).
		Build()
	if err != nil {
		runner.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, engine: engine, prof: prof}
	if cfg.Classifier != nil {
		cr, err := providers.NewRunner(*cfg.Classifier)
		if err != nil {
			engine.Close()
			return nil, errors.Wrap(err, "classification model")
		}
		if a.classifier, err = inference.NewClassifier(cr); err != nil {
			cr.Close()
			engine.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close detector")
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close classifier")
		}
	}
}

func (a *app) serve(ctx context.Context) error {
	opts := []server.Option{server.WithProfiler(a.prof)}
	if a.classifier != nil {
		opts = append(opts, server.WithClassifier(a.classifier))
	}
	return server.New(a.engine, a.cfg.Server, a.log, opts...).ListenAndServe(ctx)
}

func (a *app) annotateImage(ctx context.Context, path, out string) error {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return errors.Errorf("cannot read image %s", path)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return errors.Wrap(err, "failed to convert frame")
	}
	boxes, err := a.engine.Detect(ctx, img)
	if err != nil {
		return err
	}

	for i := range boxes {
		a.log.WithField("box", i).Info(boxes[i].String())
	}
	if a.classifier != nil && len(boxes) > 0 {
		scores, err := a.classifier.ClassifyAll(ctx, img, boxes)
		if err != nil {
			return err
		}
		for i := range scores {
			a.log.WithFields(logrus.Fields{"box": i, "scores": scores[i]}).Info("classified")
		}
	}

	if out == "" {
		out = filepath.Join(filepath.Dir(path), "annotated_"+filepath.Base(path))
	}
	drawn := images.DrawBoxes(&mat, boxes)
	if !gocv.IMWrite(out, mat) {
		return errors.Errorf("failed to write %s", out)
	}
	a.log.WithFields(logrus.Fields{
		"boxes": len(boxes),
		"drawn": drawn,
		"out":   out,
	}).Info("annotated image")
	return nil
}
