package selectors

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/observability"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// candidate pairs a content item with the targeting group that qualified it.
type candidate struct {
	content models.AdvertisementContent
	groupID string
	ctr     float64
}

// RuleBasedSelector picks the advertisement whose highest-CTR matching
// targeting group beats every other content's matching group. Within a
// content item the groups are tried in CTR-descending order and the first
// matching group qualifies the content; predicates inside each group are
// evaluated in parallel by the evaluator.
type RuleBasedSelector struct {
	store     models.ContentDataStore
	evaluator *targeting.Evaluator
	metrics   observability.MetricsRegistry
	logger    *zap.Logger
}

// NewRuleBasedSelector constructs a selector over the given store and
// evaluator.
func NewRuleBasedSelector(store models.ContentDataStore, evaluator *targeting.Evaluator, metrics observability.MetricsRegistry, logger *zap.Logger) *RuleBasedSelector {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &RuleBasedSelector{store: store, evaluator: evaluator, metrics: metrics, logger: logger}
}

// SelectAdvertisement returns the winning advertisement for the marketplace,
// or the empty sentinel when nothing is eligible. Selection never fails: any
// internal error degrades to the empty advertisement.
func (s *RuleBasedSelector) SelectAdvertisement(ctx context.Context, marketplaceID string, rc targeting.RequestContext) models.GeneratedAdvertisement {
	start := time.Now()
	defer func() {
		s.metrics.RecordSelectionDuration(time.Since(start))
	}()

	if strings.TrimSpace(marketplaceID) == "" {
		s.metrics.IncrementSelections("empty")
		return models.EmptyAdvertisement()
	}

	contents := s.store.ListContentByMarketplace(marketplaceID)
	if len(contents) == 0 {
		s.metrics.IncrementSelections("empty")
		return models.EmptyAdvertisement()
	}

	var winner *candidate
	for _, content := range contents {
		cand, err := s.evaluateContent(ctx, content, rc)
		if err != nil {
			s.logger.Error("content evaluation failed",
				zap.String("content_id", content.ID),
				zap.String("marketplace_id", marketplaceID),
				zap.Error(err))
			s.metrics.IncrementSelections("error")
			return models.EmptyAdvertisement()
		}
		if cand == nil {
			continue
		}
		if winner == nil || betterCandidate(*cand, *winner) {
			winner = cand
		}
	}

	if winner == nil {
		s.logger.Debug("no eligible content",
			zap.String("marketplace_id", marketplaceID),
			zap.String("customer_id", rc.CustomerID()))
		s.metrics.IncrementSelections("empty")
		return models.EmptyAdvertisement()
	}

	s.metrics.IncrementSelections("filled")
	s.logger.Debug("advertisement selected",
		zap.String("marketplace_id", marketplaceID),
		zap.String("content_id", winner.content.ID),
		zap.String("targeting_group_id", winner.groupID),
		zap.Float64("ctr", winner.ctr))
	return models.NewGeneratedAdvertisement(winner.content, winner.groupID, winner.ctr)
}

// evaluateContent walks the content's targeting groups from highest CTR down
// and returns a candidate for the first group whose predicates all hold. A
// content with no matching group yields (nil, nil).
func (s *RuleBasedSelector) evaluateContent(ctx context.Context, content models.AdvertisementContent, rc targeting.RequestContext) (*candidate, error) {
	groups := s.store.GroupsForContent(content.ID)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].ClickThroughRate > groups[j].ClickThroughRate
	})

	for _, group := range groups {
		verdict, err := s.evaluator.EvaluateGroup(ctx, rc, group.Predicates)
		if err != nil {
			return nil, err
		}
		s.metrics.IncrementGroupEvaluations(verdict.String())
		if verdict == targeting.True {
			return &candidate{content: content, groupID: group.ID, ctr: group.ClickThroughRate}, nil
		}
	}
	return nil, nil
}

// betterCandidate orders candidates by CTR descending, breaking exact ties on
// the lexicographically smaller content ID so selection is deterministic.
func betterCandidate(a, b candidate) bool {
	if a.ctr != b.ctr {
		return a.ctr > b.ctr
	}
	return a.content.ID < b.content.ID
}
