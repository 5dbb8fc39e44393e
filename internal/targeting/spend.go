package targeting

import (
	"context"
	"fmt"

	"github.com/patrickwarner/adtarget/internal/customer"
)

// SpendFrequencyPredicate matches customers whose purchase count in a category
// satisfies the comparison against the target. A category absent from the
// spend map, or an unrecognized customer, evaluates to Indeterminate.
type SpendFrequencyPredicate struct {
	negatable
	category string
	cmp      Comparison
	target   int
	spend    SpendLookup
}

// NewSpendFrequencyPredicate builds a SpendFrequencyPredicate bound to a spend
// lookup.
func NewSpendFrequencyPredicate(category string, cmp Comparison, target int, negate bool, spend SpendLookup) *SpendFrequencyPredicate {
	return &SpendFrequencyPredicate{
		negatable: negatable{negate: negate},
		category:  category,
		cmp:       cmp,
		target:    target,
		spend:     spend,
	}
}

func (p *SpendFrequencyPredicate) Kind() string { return KindCategorySpendFrequency }

func (p *SpendFrequencyPredicate) Evaluate(ctx context.Context, rc RequestContext) (Result, error) {
	observed, ok, err := observeSpend(ctx, p.spend, rc, p.category)
	if err != nil {
		return Indeterminate, fmt.Errorf("spend frequency predicate: %w", err)
	}
	if !ok {
		return Indeterminate, nil
	}
	return p.finish(resultOf(p.cmp.Matches(observed.PurchaseCount, p.target))), nil
}

// SpendValuePredicate matches customers whose spend amount in a category
// satisfies the comparison against the target. Indeterminate semantics mirror
// SpendFrequencyPredicate.
type SpendValuePredicate struct {
	negatable
	category string
	cmp      Comparison
	target   int
	spend    SpendLookup
}

// NewSpendValuePredicate builds a SpendValuePredicate bound to a spend lookup.
func NewSpendValuePredicate(category string, cmp Comparison, target int, negate bool, spend SpendLookup) *SpendValuePredicate {
	return &SpendValuePredicate{
		negatable: negatable{negate: negate},
		category:  category,
		cmp:       cmp,
		target:    target,
		spend:     spend,
	}
}

func (p *SpendValuePredicate) Kind() string { return KindCategorySpendValue }

func (p *SpendValuePredicate) Evaluate(ctx context.Context, rc RequestContext) (Result, error) {
	observed, ok, err := observeSpend(ctx, p.spend, rc, p.category)
	if err != nil {
		return Indeterminate, fmt.Errorf("spend value predicate: %w", err)
	}
	if !ok {
		return Indeterminate, nil
	}
	return p.finish(resultOf(p.cmp.Matches(observed.AmountSpent, p.target))), nil
}

// observeSpend fetches the spend entry for one category. ok is false when the
// customer is unrecognized or the category has no history.
func observeSpend(ctx context.Context, lookup SpendLookup, rc RequestContext, category string) (customer.Spend, bool, error) {
	if !rc.IsRecognized() {
		return customer.Spend{}, false, nil
	}
	byCategory, err := lookup.GetSpendByCategory(ctx, rc.CustomerID(), rc.MarketplaceID())
	if err != nil {
		return customer.Spend{}, false, fmt.Errorf("spend lookup: %w", err)
	}
	observed, ok := byCategory[category]
	return observed, ok, nil
}
