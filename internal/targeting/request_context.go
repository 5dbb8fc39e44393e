package targeting

import "strings"

// RequestContext carries the resolved identity for one ad selection request.
// It is created once per request, never mutated, and shared read-only across
// all concurrent predicate evaluations for that request.
type RequestContext struct {
	customerID    string
	marketplaceID string
	recognized    bool
}

// NewRequestContext builds a RequestContext. A customer is recognized iff the
// customer ID is non-blank.
func NewRequestContext(customerID, marketplaceID string) RequestContext {
	return RequestContext{
		customerID:    customerID,
		marketplaceID: marketplaceID,
		recognized:    strings.TrimSpace(customerID) != "",
	}
}

// CustomerID returns the raw customer identifier, possibly empty.
func (rc RequestContext) CustomerID() string { return rc.customerID }

// MarketplaceID returns the marketplace the request was made against.
func (rc RequestContext) MarketplaceID() string { return rc.marketplaceID }

// IsRecognized reports whether the request carries a usable customer identity.
func (rc RequestContext) IsRecognized() bool { return rc.recognized }
