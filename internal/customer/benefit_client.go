package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/observability"
)

// BenefitClient fetches the benefit program memberships a customer holds in
// a marketplace, such as expedited shipping or media streaming.
type BenefitClient struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedBenefits
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type cachedBenefits struct {
	benefits  []string
	timestamp time.Time
}

// NewBenefitClient creates a benefit client against the given base URL.
func NewBenefitClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *BenefitClient {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &BenefitClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]*cachedBenefits),
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// GetBenefits returns the benefit types the customer holds in the given
// marketplace. A customer with no subscription yields an empty list without
// error.
func (c *BenefitClient) GetBenefits(ctx context.Context, customerID, marketplaceID string) ([]string, error) {
	key := customerID + ":" + marketplaceID
	c.cacheMu.RLock()
	cached, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if ok && time.Since(cached.timestamp) <= c.cacheTTL {
		return cached.benefits, nil
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordCollaboratorLatency("benefit", time.Since(start))
		c.metrics.IncrementCollaboratorRequests("benefit", outcome)
	}()

	endpoint := fmt.Sprintf("%s/customers/%s/benefits?marketplace=%s",
		c.baseURL, url.PathEscape(customerID), url.QueryEscape(marketplaceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("benefit service request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		c.storeBenefits(key, []string{})
		return []string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("benefit service http %d: %s", resp.StatusCode, string(body))
	}

	var benefits []string
	if err := json.NewDecoder(resp.Body).Decode(&benefits); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode benefits: %w", err)
	}

	c.storeBenefits(key, benefits)
	return benefits, nil
}

func (c *BenefitClient) storeBenefits(key string, benefits []string) {
	c.cacheMu.Lock()
	c.cache[key] = &cachedBenefits{benefits: benefits, timestamp: time.Now()}
	c.cacheMu.Unlock()
}

// ClearCache drops all cached benefit data.
func (c *BenefitClient) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedBenefits)
}
