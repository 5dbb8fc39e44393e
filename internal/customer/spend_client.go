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

// SpendClient fetches per-category purchase history from the order history
// service. Responses are cached per customer and marketplace.
type SpendClient struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedSpend
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type cachedSpend struct {
	byCategory map[string]Spend
	timestamp  time.Time
}

// NewSpendClient creates a spend client against the given base URL.
func NewSpendClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *SpendClient {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &SpendClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]*cachedSpend),
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// GetSpendByCategory returns the customer's purchase totals keyed by product
// category for one marketplace. A customer with no order history yields an
// empty map without error.
func (c *SpendClient) GetSpendByCategory(ctx context.Context, customerID, marketplaceID string) (map[string]Spend, error) {
	key := customerID + ":" + marketplaceID
	c.cacheMu.RLock()
	cached, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if ok && time.Since(cached.timestamp) <= c.cacheTTL {
		return cached.byCategory, nil
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordCollaboratorLatency("spend", time.Since(start))
		c.metrics.IncrementCollaboratorRequests("spend", outcome)
	}()

	endpoint := fmt.Sprintf("%s/customers/%s/spend?marketplace=%s",
		c.baseURL, url.PathEscape(customerID), url.QueryEscape(marketplaceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("spend service request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		empty := map[string]Spend{}
		c.storeSpend(key, empty)
		return empty, nil
	}
	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spend service http %d: %s", resp.StatusCode, string(body))
	}

	var byCategory map[string]Spend
	if err := json.NewDecoder(resp.Body).Decode(&byCategory); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode spend: %w", err)
	}
	if byCategory == nil {
		byCategory = map[string]Spend{}
	}

	c.storeSpend(key, byCategory)
	return byCategory, nil
}

func (c *SpendClient) storeSpend(key string, byCategory map[string]Spend) {
	c.cacheMu.Lock()
	c.cache[key] = &cachedSpend{byCategory: byCategory, timestamp: time.Now()}
	c.cacheMu.Unlock()
}

// ClearCache drops all cached spend data.
func (c *SpendClient) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedSpend)
}
