package api

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/analytics"
	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/geoip"
	"github.com/patrickwarner/adtarget/internal/logic/selectors"
	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/observability"
	"github.com/patrickwarner/adtarget/internal/ratelimit"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Store     *db.RedisStore
	PG        *db.Postgres
	Analytics analytics.AnalyticsService
	GeoIP     *geoip.GeoIP
	Selector  selectors.Selector
	DataStore models.ContentDataStore
	Factory   *targeting.Factory
	Metrics   observability.MetricsRegistry
	Limiter   *ratelimit.MarketplaceLimiter
	Config    config.Config
	reloadMu  sync.Mutex
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, pg *db.Postgres, analyticsSvc analytics.AnalyticsService, geo *geoip.GeoIP, selector selectors.Selector, dataStore models.ContentDataStore, factory *targeting.Factory, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &Server{
		Logger:    logger,
		Store:     store,
		PG:        pg,
		Analytics: analyticsSvc,
		GeoIP:     geo,
		Selector:  selector,
		DataStore: dataStore,
		Factory:   factory,
		Metrics:   metrics,
		Limiter: ratelimit.NewMarketplaceLimiter(ratelimit.Config{
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillRate,
			Enabled:    cfg.RateLimitEnabled,
		}, metrics),
		Config: cfg,
	}
}

// Reload refreshes content and targeting groups from Postgres and rebuilds
// the predicates for every group.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}

	contents, err := s.PG.LoadContent()
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	groups, err := s.PG.LoadTargetingGroups()
	if err != nil {
		return fmt.Errorf("load targeting groups: %w", err)
	}

	for i := range groups {
		preds, err := s.Factory.BuildAll(groups[i].PredicateSpecs)
		if err != nil {
			return fmt.Errorf("build predicates for group %s: %w", groups[i].ID, err)
		}
		groups[i].Predicates = preds
	}

	s.DataStore.ReloadAll(contents, groups)
	s.UpdateCTR()

	return nil
}

// UpdateCTR recomputes the click-through rate of every targeting group from
// the feedback counters in Redis using a smoothed estimate: groups with no
// feedback stay at the default, and the prior's influence fades as
// impressions accumulate.
func (s *Server) UpdateCTR() {
	if s.Store == nil || s.Store.Client == nil {
		return
	}

	groups := s.DataStore.ListGroups()
	updates := make(map[string]float64, len(groups))

	for _, g := range groups {
		imps, clicks := s.Store.GetFeedbackCounts(g.ID)
		if imps == 0 && clicks == 0 {
			continue
		}
		ctr := (float64(clicks) + s.Config.DefaultCTR*s.Config.CTRWeight) / (float64(imps) + s.Config.CTRWeight)
		updates[g.ID] = ctr
	}

	if len(updates) == 0 {
		return
	}
	if err := s.DataStore.UpdateClickThroughRates(updates); err != nil {
		s.Logger.Error("failed to bulk update click-through rates", zap.Error(err))
		return
	}
	if s.PG != nil {
		if err := s.PG.UpdateClickThroughRates(updates); err != nil {
			s.Logger.Error("persist click-through rates", zap.Error(err))
			// In-memory store remains the source of truth.
		}
	}
}
