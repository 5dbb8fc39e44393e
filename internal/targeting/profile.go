package targeting

import (
	"context"
	"fmt"

	"github.com/patrickwarner/adtarget/internal/customer"
)

// AgePredicate matches customers whose resolved age range equals the target.
// Unrecognized customers and customers with no resolved age range evaluate to
// Indeterminate.
type AgePredicate struct {
	negatable
	target   customer.AgeRange
	profiles ProfileLookup
}

// NewAgePredicate builds an AgePredicate bound to a profile lookup.
func NewAgePredicate(target customer.AgeRange, negate bool, profiles ProfileLookup) *AgePredicate {
	return &AgePredicate{negatable: negatable{negate: negate}, target: target, profiles: profiles}
}

func (p *AgePredicate) Kind() string { return KindAge }

// TargetAgeRange returns the age range this predicate matches against.
func (p *AgePredicate) TargetAgeRange() customer.AgeRange { return p.target }

func (p *AgePredicate) Evaluate(ctx context.Context, rc RequestContext) (Result, error) {
	if !rc.IsRecognized() {
		return Indeterminate, nil
	}
	profile, err := p.profiles.GetProfile(ctx, rc.CustomerID())
	if err != nil {
		return Indeterminate, fmt.Errorf("age predicate: profile lookup: %w", err)
	}
	if profile.AgeRange == "" {
		return Indeterminate, nil
	}
	return p.finish(resultOf(profile.AgeRange == p.target)), nil
}

// ParentPredicate matches customers whose profile reports parental status.
// Unrecognized customers evaluate to Indeterminate.
type ParentPredicate struct {
	negatable
	profiles ProfileLookup
}

// NewParentPredicate builds a ParentPredicate bound to a profile lookup.
func NewParentPredicate(negate bool, profiles ProfileLookup) *ParentPredicate {
	return &ParentPredicate{negatable: negatable{negate: negate}, profiles: profiles}
}

func (p *ParentPredicate) Kind() string { return KindParent }

func (p *ParentPredicate) Evaluate(ctx context.Context, rc RequestContext) (Result, error) {
	if !rc.IsRecognized() {
		return Indeterminate, nil
	}
	profile, err := p.profiles.GetProfile(ctx, rc.CustomerID())
	if err != nil {
		return Indeterminate, fmt.Errorf("parent predicate: profile lookup: %w", err)
	}
	return p.finish(resultOf(profile.IsParent)), nil
}
