package api

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/middleware"
	"github.com/patrickwarner/adtarget/internal/models"
)

// pixelGIF is a transparent 1x1 GIF returned for tracking pixels.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// ImpressionHandler handles GET /impression pixel requests, crediting an
// impression to the targeting group that served the advertisement.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ImpressionHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/impression"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "impression"
	const method = "GET"

	groupID := r.URL.Query().Get("tg")
	if groupID == "" {
		logger.Warn("missing targeting group id")
		s.Metrics.IncrementImpressions("400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "tg required", http.StatusBadRequest)
		return
	}

	if _, err := s.DataStore.GetGroup(groupID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.Metrics.IncrementImpressions("404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	span.SetAttributes(attribute.String("targeting_group_id", groupID))

	if s.Store != nil && s.Store.Client != nil {
		if err := s.Store.IncrementImpression(groupID); err != nil {
			logger.Error("increment impression counter", zap.Error(err), zap.String("group_id", groupID))
			// Feedback counters are best effort; the pixel is still served.
		}
	}

	if s.Analytics != nil {
		if err := s.Analytics.RecordFeedback(ctx, "impression", groupID); err != nil {
			logger.Warn("record impression feedback", zap.Error(err))
		}
	}

	s.Metrics.IncrementImpressions("200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// ClickHandler handles GET /click pixel requests, crediting a click to the
// targeting group that served the advertisement.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/click"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "click"
	const method = "GET"

	groupID := r.URL.Query().Get("tg")
	if groupID == "" {
		logger.Warn("missing targeting group id")
		s.Metrics.IncrementClicks("400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "tg required", http.StatusBadRequest)
		return
	}

	if _, err := s.DataStore.GetGroup(groupID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.Metrics.IncrementClicks("404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	span.SetAttributes(attribute.String("targeting_group_id", groupID))

	if s.Store != nil && s.Store.Client != nil {
		if err := s.Store.IncrementClick(groupID); err != nil {
			logger.Error("increment click counter", zap.Error(err), zap.String("group_id", groupID))
		}
	}

	if s.Analytics != nil {
		if err := s.Analytics.RecordFeedback(ctx, "click", groupID); err != nil {
			logger.Warn("record click feedback", zap.Error(err))
		}
	}

	s.Metrics.IncrementClicks("200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}
