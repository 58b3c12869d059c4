package main

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-shelf/common"
	"github.com/nvr-ai/go-shelf/images"
	"github.com/nvr-ai/go-shelf/inference"
)

const defaultFPS = 30

type scanJob struct {
	frame int
	img   image.Image
}

// frameWorker detects one frame at a time on its own goroutine.
type frameWorker struct {
	engine inference.Engine
	log    logrus.FieldLogger
	jobs   chan scanJob
	busy   atomic.Bool
	wg     sync.WaitGroup
	once   sync.Once

	mu       sync.Mutex
	latest   []common.BoundingBox
	detected int
	dropped  int
}

func newFrameWorker(ctx context.Context, engine inference.Engine, log logrus.FieldLogger) *frameWorker {
	w := &frameWorker{engine: engine, log: log, jobs: make(chan scanJob, 1)}
	w.wg.Add(1)
	go w.run(ctx)
	return w
}

func (w *frameWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for job := range w.jobs {
		boxes, err := w.engine.Detect(ctx, job.img)
		if err != nil {
			w.log.WithError(err).WithField("frame", job.frame).Warn("detection failed")
		} else {
			w.log.WithFields(logrus.Fields{"frame": job.frame, "boxes": len(boxes)}).Debug("frame detected")
			w.mu.Lock()
			w.latest = boxes
			w.detected++
			w.mu.Unlock()
		}
		w.busy.Store(false)
	}
}

// Offer hands frame n to the worker when it is idle. A busy worker drops the
// frame without calling convert.
func (w *frameWorker) Offer(n int, convert func() (image.Image, error)) (bool, error) {
	if w.busy.Load() {
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		return false, nil
	}
	img, err := convert()
	if err != nil {
		return false, err
	}
	w.busy.Store(true)
	w.jobs <- scanJob{frame: n, img: img}
	return true, nil
}

// Latest returns the boxes of the most recent detected frame.
func (w *frameWorker) Latest() []common.BoundingBox {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Stop waits for the frame in flight and returns the detected and dropped
// frame counts. It is safe to call more than once.
func (w *frameWorker) Stop() (detected, dropped int) {
	w.once.Do(func() { close(w.jobs) })
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detected, w.dropped
}

// scan reads frames from a video file or capture device. Frames read while
// the worker is busy are dropped. When out is set, frames are written there
// with the latest boxes.
func (a *app) scan(ctx context.Context, source any, out string) error {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return errors.Wrapf(err, "cannot open %v", source)
	}
	defer capture.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	var (
		writer *gocv.VideoWriter
		frames int
	)
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	worker := newFrameWorker(ctx, a.engine, a.log)
	defer worker.Stop()

	for ctx.Err() == nil {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}
		frames++

		if _, err := worker.Offer(frames, frame.ToImage); err != nil {
			return errors.Wrap(err, "failed to convert frame")
		}

		if out == "" {
			continue
		}
		if writer == nil {
			fps := capture.Get(gocv.VideoCaptureFPS)
			if fps <= 0 {
				fps = defaultFPS
			}
			if writer, err = gocv.VideoWriterFile(out, "MJPG", fps, frame.Cols(), frame.Rows(), true); err != nil {
				return errors.Wrapf(err, "cannot create %s", out)
			}
		}
		annotated, _ := images.Annotate(frame, worker.Latest())
		err = writer.Write(annotated)
		annotated.Close()
		if err != nil {
			return errors.Wrap(err, "failed to write frame")
		}
	}
	detected, dropped := worker.Stop()

	fields := logrus.Fields{
		"frames":   frames,
		"detected": detected,
		"dropped":  dropped,
	}
	for stage, op := range a.prof.Snapshot().Operations {
		fields[stage+"_avg"] = op.Avg
	}
	a.log.WithFields(fields).Info("scan finished")
	return nil
}
