package targeting

import (
	"context"

	"github.com/patrickwarner/adtarget/internal/customer"
)

// Predicate kinds. The variant set is closed; the factory rejects anything else.
const (
	KindAge                    = "age"
	KindCategorySpendFrequency = "categorySpendFrequency"
	KindCategorySpendValue     = "categorySpendValue"
	KindPrimeBenefit           = "primeBenefit"
	KindParent                 = "parent"
	KindRecognized             = "recognized"
)

// Kinds lists every predicate kind the factory accepts.
var Kinds = []string{
	KindAge,
	KindCategorySpendFrequency,
	KindCategorySpendValue,
	KindPrimeBenefit,
	KindParent,
	KindRecognized,
}

// Predicate is a single eligibility rule evaluated against a request context.
// Evaluate may block on a collaborator lookup; a transport failure is returned
// as an error, never silently folded into a Result.
type Predicate interface {
	// Kind names the predicate variant, used for logs and metrics.
	Kind() string
	// Negated reports whether the raw evaluation is inverted.
	Negated() bool
	// Evaluate resolves the rule for one request. The returned Result already
	// has negation applied; Indeterminate is never inverted.
	Evaluate(ctx context.Context, rc RequestContext) (Result, error)
}

// ProfileLookup resolves demographic attributes for a customer.
type ProfileLookup interface {
	GetProfile(ctx context.Context, customerID string) (customer.Profile, error)
}

// SpendLookup resolves per-category purchase history for a customer in a
// marketplace.
type SpendLookup interface {
	GetSpendByCategory(ctx context.Context, customerID, marketplaceID string) (map[string]customer.Spend, error)
}

// BenefitLookup resolves the benefit types a customer holds in a marketplace.
type BenefitLookup interface {
	GetBenefits(ctx context.Context, customerID, marketplaceID string) ([]string, error)
}

// negatable applies the shared negation step. Embedded by every variant.
type negatable struct {
	negate bool
}

func (n negatable) Negated() bool { return n.negate }

// finish applies negation as the final inversion step.
func (n negatable) finish(r Result) Result {
	if n.negate {
		return r.Negate()
	}
	return r
}

// RecognizedPredicate matches requests that carry a usable customer identity.
// Negated it matches anonymous visitors. It never needs a collaborator and is
// never Indeterminate.
type RecognizedPredicate struct {
	negatable
}

// NewRecognizedPredicate builds a RecognizedPredicate.
func NewRecognizedPredicate(negate bool) *RecognizedPredicate {
	return &RecognizedPredicate{negatable{negate: negate}}
}

func (p *RecognizedPredicate) Kind() string { return KindRecognized }

func (p *RecognizedPredicate) Evaluate(_ context.Context, rc RequestContext) (Result, error) {
	return p.finish(resultOf(rc.IsRecognized())), nil
}
