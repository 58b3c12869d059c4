package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-shelf/images"
	"github.com/nvr-ai/go-shelf/util"
)

// annotateDir runs detection over every image in dir and writes the
// annotated copies to out (dir/annotated by default). Undecodable files are
// logged and skipped.
func (a *app) annotateDir(ctx context.Context, dir, out string) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Join(dir, "annotated")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", out)
	}

	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := a.log.WithField("file", f.Path)

		meta, img, err := images.Decode(f.Data)
		if err != nil {
			log.WithError(err).Warn("skipping file")
			continue
		}
		boxes, err := a.engine.Detect(ctx, img)
		if err != nil {
			return errors.Wrapf(err, "detection failed for %s", f.Path)
		}
		total += len(boxes)

		mat, err := gocv.IMDecode(f.Data, gocv.IMReadColor)
		if err != nil {
			log.WithError(err).Warn("cannot decode for annotation")
			continue
		}
		if mat.Empty() {
			log.Warn("cannot decode for annotation")
			mat.Close()
			continue
		}
		images.DrawBoxes(&mat, boxes)
		target := filepath.Join(out, filepath.Base(f.Path))
		if meta.Format == images.FormatWebP {
			// OpenCV builds are not guaranteed to encode WebP.
			target = target[:len(target)-len(filepath.Ext(target))] + ".png"
		}
		ok := gocv.IMWrite(target, mat)
		mat.Close()
		if !ok {
			return errors.Errorf("failed to write %s", target)
		}

		log.WithFields(logrus.Fields{"boxes": len(boxes), "frame": f.Frame}).Info("annotated")
	}

	a.log.WithFields(logrus.Fields{"files": len(files), "boxes": total, "out": out}).Info("directory done")
	return nil
}
