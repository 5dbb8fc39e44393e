package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/analytics"
	"github.com/patrickwarner/adtarget/internal/middleware"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

var tracer = otel.Tracer("adtarget")

// AdRequest is the body of POST /ad.
type AdRequest struct {
	CustomerID    string `json:"customer_id"`
	MarketplaceID string `json:"marketplace_id"`
}

// AdResponse is the body returned by POST /ad. Content fields are empty when
// no advertisement was eligible; the pixel URLs credit feedback to the
// targeting group that won the selection.
type AdResponse struct {
	ID                string `json:"id"`
	ContentID         string `json:"content_id,omitempty"`
	RenderableContent string `json:"renderable_content,omitempty"`
	TargetingGroupID  string `json:"targeting_group_id,omitempty"`
	ImpressionURL     string `json:"impression_url,omitempty"`
	ClickURL          string `json:"click_url,omitempty"`
}

// decodeAdRequest reads and unmarshals an ad request body.
func decodeAdRequest(r *http.Request) (*AdRequest, error) {
	defer func() {
		_ = r.Body.Close()
	}()
	var req AdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &req, nil
}

// SelectAdHandler handles POST /ad requests. Selection never returns a 5xx
// for an unfillable request: the empty advertisement is a normal 200.
func (s *Server) SelectAdHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "SelectAdHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/ad"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "ad"
	const method = "POST"

	req, err := decodeAdRequest(r)
	if err != nil {
		logger.Error("decode request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if s.Limiter != nil && !s.Limiter.Allow(req.MarketplaceID) {
		logger.Warn("ad request rate limited", zap.String("marketplace_id", req.MarketplaceID))
		s.Metrics.IncrementRequests(endpoint, method, "429")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	rc := targeting.NewRequestContext(req.CustomerID, req.MarketplaceID)

	span.SetAttributes(
		attribute.String("marketplace_id", req.MarketplaceID),
		attribute.Bool("customer.recognized", rc.IsRecognized()),
	)

	ad := s.Selector.SelectAdvertisement(ctx, req.MarketplaceID, rc)

	span.SetAttributes(
		attribute.Bool("ad.filled", !ad.IsEmpty()),
		attribute.String("ad.id", ad.ID),
	)

	if s.Analytics != nil {
		event := analytics.DecisionEvent{
			AdvertisementID:  ad.ID,
			ContentID:        ad.Content.ID,
			MarketplaceID:    req.MarketplaceID,
			CustomerID:       req.CustomerID,
			TargetingGroupID: ad.TargetingGroupID,
			Recognized:       rc.IsRecognized(),
			Filled:           !ad.IsEmpty(),
			ClickThroughRate: ad.ClickThroughRate,
			DeviceType:       resolveDeviceType(r),
			Country:          resolveCountry(r, s.GeoIP),
			DurationMs:       float64(time.Since(start).Microseconds()) / 1000,
		}
		if err := s.Analytics.RecordDecision(ctx, event); err != nil {
			// Analytics failures never block serving.
			logger.Warn("record decision", zap.Error(err))
		}
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	resp := AdResponse{
		ID:                ad.ID,
		ContentID:         ad.Content.ID,
		RenderableContent: ad.Content.RenderableContent,
		TargetingGroupID:  ad.TargetingGroupID,
	}
	if ad.TargetingGroupID != "" {
		resp.ImpressionURL = "/impression?tg=" + url.QueryEscape(ad.TargetingGroupID)
		resp.ClickURL = "/click?tg=" + url.QueryEscape(ad.TargetingGroupID)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}
