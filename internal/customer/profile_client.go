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

// ProfileClient fetches demographic profiles from the customer profile
// service and caches them for a short TTL.
type ProfileClient struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedProfile
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type cachedProfile struct {
	profile   Profile
	timestamp time.Time
}

// NewProfileClient creates a profile client against the given base URL.
func NewProfileClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *ProfileClient {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &ProfileClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]*cachedProfile),
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// GetProfile returns the profile for a customer. An unknown customer yields
// the zero Profile without error; a transport or decode failure is returned
// as an error.
func (c *ProfileClient) GetProfile(ctx context.Context, customerID string) (Profile, error) {
	c.cacheMu.RLock()
	cached, ok := c.cache[customerID]
	c.cacheMu.RUnlock()
	if ok && time.Since(cached.timestamp) <= c.cacheTTL {
		return cached.profile, nil
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordCollaboratorLatency("profile", time.Since(start))
		c.metrics.IncrementCollaboratorRequests("profile", outcome)
	}()

	endpoint := fmt.Sprintf("%s/profiles/%s", c.baseURL, url.PathEscape(customerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		outcome = "failure"
		return Profile{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return Profile{}, fmt.Errorf("profile service request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		c.storeProfile(customerID, Profile{})
		return Profile{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(resp.Body)
		return Profile{}, fmt.Errorf("profile service http %d: %s", resp.StatusCode, string(body))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		outcome = "failure"
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	c.storeProfile(customerID, profile)
	return profile, nil
}

func (c *ProfileClient) storeProfile(customerID string, p Profile) {
	c.cacheMu.Lock()
	c.cache[customerID] = &cachedProfile{profile: p, timestamp: time.Now()}
	c.cacheMu.Unlock()
}

// ClearCache drops all cached profiles.
func (c *ProfileClient) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedProfile)
}
