// Package server - HTTP transport for shelf detection.
package server

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-shelf/common"
	"github.com/nvr-ai/go-shelf/config"
	"github.com/nvr-ai/go-shelf/images"
	"github.com/nvr-ai/go-shelf/inference"
	"github.com/nvr-ai/go-shelf/models/postprocess"
	"github.com/nvr-ai/go-shelf/profiler"
)

// RequestIDHeader carries the request ID on every response.
const RequestIDHeader = "X-Request-ID"

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidImage   = "invalid_image"
	CodeBusy           = "busy"
	CodeProcessing     = "processing_error"
)

// Classifier scores the detected boxes of a frame.
type Classifier interface {
	ClassifyAll(ctx context.Context, img image.Image, boxes []common.BoundingBox) ([][]float32, error)
}

// DetectResponse is the body of a successful detection.
type DetectResponse struct {
	RequestID string               `json:"request_id"`
	Format    images.ImageFormat   `json:"format"`
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Count     int                  `json:"count"`
	Boxes     []common.BoundingBox `json:"boxes"`
	// Scores holds the classifier output per box when a classifier is set.
	Scores [][]float32 `json:"scores,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server serves detections over HTTP.
type Server struct {
	engine     inference.Engine
	classifier Classifier
	prof       *profiler.Profiler
	cfg        config.ServerConfig
	log        logrus.FieldLogger
	router     *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithClassifier scores every detected box with c.
func WithClassifier(c Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

// WithProfiler exposes the snapshot of p on GET /v1/stats.
func WithProfiler(p *profiler.Profiler) Option {
	return func(s *Server) { s.prof = p }
}

// New creates a server in front of engine.
//
// Arguments:
//   - engine: The detection engine. Requests never wait for it; a busy engine answers 503.
//   - cfg: Listen address, timeouts and upload limit.
//   - logger: Destination for request logs. Nil uses the logrus standard logger.
//
// Returns:
//   - *Server: The server. Handler exposes it for tests and embedding.
func New(engine inference.Engine, cfg config.ServerConfig, logger logrus.FieldLogger, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{engine: engine, cfg: cfg, log: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(s.requestID)
	r.HandleFunc("/v1/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.prof != nil {
		r.HandleFunc("/v1/stats", s.handleStats).Methods(http.MethodGet)
	}
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Handler:      s.router,
		Addr:         s.cfg.Addr,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

type ctxKey struct{}

// RequestID returns the ID assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
		}).Debug("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.prof.Snapshot())
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := RequestID(ctx)

	data, opts, err := s.readRequest(w, r)
	if err != nil {
		sendError(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	meta, img, err := images.Decode(data)
	if err != nil {
		sendError(w, CodeInvalidImage, err.Error(), http.StatusBadRequest)
		return
	}

	boxes, err := s.engine.TryDetect(ctx, img, opts...)
	switch {
	case errors.Is(err, inference.ErrBusy):
		sendError(w, CodeBusy, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, postprocess.ErrInvalidThreshold):
		sendError(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.WithError(err).WithField("request_id", id).Error("detection failed")
		sendError(w, CodeProcessing, err.Error(), http.StatusInternalServerError)
		return
	}

	if boxes == nil {
		boxes = []common.BoundingBox{}
	}
	resp := DetectResponse{
		RequestID: id,
		Format:    meta.Format,
		Width:     meta.Width,
		Height:    meta.Height,
		Count:     len(boxes),
		Boxes:     boxes,
	}
	if s.classifier != nil && len(boxes) > 0 {
		scores, err := s.classifier.ClassifyAll(ctx, img, boxes)
		if err != nil {
			s.log.WithError(err).WithField("request_id", id).Error("classification failed")
			sendError(w, CodeProcessing, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Scores = scores
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

// readRequest returns the uploaded frame and any threshold overrides.
//
// A multipart body carries the frame in the "file" field and optional
// "detection_threshold" and "iou_threshold" values. Any other body is the
// frame itself, with overrides taken from the query string.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) ([]byte, []postprocess.Option, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			return nil, nil, errors.Wrap(err, "invalid multipart body")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, errors.Wrap(err, "missing file field")
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			return nil, nil, errors.Wrap(err, "failed to read file")
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return nil, nil, errors.Wrap(err, "failed to read body")
		}
	}
	if len(data) == 0 {
		return nil, nil, errors.New("empty image")
	}

	var opts []postprocess.Option
	if v, ok, err := formFloat(r, "detection_threshold"); err != nil {
		return nil, nil, err
	} else if ok {
		opts = append(opts, postprocess.WithDetectionThreshold(v))
	}
	if v, ok, err := formFloat(r, "iou_threshold"); err != nil {
		return nil, nil, err
	} else if ok {
		opts = append(opts, postprocess.WithIoUThreshold(v))
	}
	return data, opts, nil
}

func formFloat(r *http.Request, key string) (float32, bool, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid %s", key)
	}
	return float32(v), true, nil
}

// writeJSON encodes v before writing status. An encoding failure answers 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).WithField("request_id", RequestID(r.Context())).Error("failed to encode response")
		sendError(w, CodeProcessing, "failed to encode response", http.StatusInternalServerError)
		return
	}
	writeBody(w, status, body)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	body, _ := json.Marshal(ErrorResponse{Code: code, Message: message})
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
