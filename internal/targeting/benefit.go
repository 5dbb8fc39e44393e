package targeting

import (
	"context"
	"fmt"
)

// BenefitPredicate matches customers holding a named prime benefit in the
// request's marketplace. Unrecognized customers evaluate to Indeterminate.
type BenefitPredicate struct {
	negatable
	benefit  string
	benefits BenefitLookup
}

// NewBenefitPredicate builds a BenefitPredicate bound to a benefit lookup.
func NewBenefitPredicate(benefit string, negate bool, benefits BenefitLookup) *BenefitPredicate {
	return &BenefitPredicate{negatable: negatable{negate: negate}, benefit: benefit, benefits: benefits}
}

func (p *BenefitPredicate) Kind() string { return KindPrimeBenefit }

func (p *BenefitPredicate) Evaluate(ctx context.Context, rc RequestContext) (Result, error) {
	if !rc.IsRecognized() {
		return Indeterminate, nil
	}
	held, err := p.benefits.GetBenefits(ctx, rc.CustomerID(), rc.MarketplaceID())
	if err != nil {
		return Indeterminate, fmt.Errorf("benefit predicate: benefit lookup: %w", err)
	}
	for _, b := range held {
		if b == p.benefit {
			return p.finish(True), nil
		}
	}
	return p.finish(False), nil
}
