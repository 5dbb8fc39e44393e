package targeting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/patrickwarner/adtarget/internal/customer"
)

// Attribute keys recognized by the factory, per predicate kind.
const (
	attrAgeRange   = "ageRange"
	attrCategory   = "category"
	attrComparison = "comparison"
	attrTarget     = "target"
	attrBenefit    = "benefit"
)

// PredicateSpec is the serializable form of a predicate, as stored alongside
// its targeting group. The factory turns specs into evaluable predicates.
type PredicateSpec struct {
	Type       string            `json:"type"`
	Negate     bool              `json:"negate,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InvalidPredicateError reports a malformed predicate spec: an unknown type or
// an attribute that is missing or unparseable. It names the offending field,
// the value received and the values accepted so callers can surface it as a
// client input error.
type InvalidPredicateError struct {
	Field    string
	Value    string
	Expected string
}

func (e *InvalidPredicateError) Error() string {
	return fmt.Sprintf("invalid predicate: field %q has value %q, expected %s", e.Field, e.Value, e.Expected)
}

// Factory builds predicates from stored specs, injecting only the
// collaborators each kind needs. One factory is constructed at process start
// and shared by every request.
type Factory struct {
	profiles ProfileLookup
	spend    SpendLookup
	benefits BenefitLookup
}

// NewFactory constructs a Factory over the three collaborator lookups.
func NewFactory(profiles ProfileLookup, spend SpendLookup, benefits BenefitLookup) *Factory {
	return &Factory{profiles: profiles, spend: spend, benefits: benefits}
}

// Build materializes one predicate spec. An unknown type or malformed
// attribute yields an *InvalidPredicateError.
func (f *Factory) Build(spec PredicateSpec) (Predicate, error) {
	switch spec.Type {
	case KindAge:
		ageRange, err := requireAttr(spec, attrAgeRange)
		if err != nil {
			return nil, err
		}
		if !customer.ValidAgeRange(ageRange) {
			return nil, &InvalidPredicateError{
				Field:    attrAgeRange,
				Value:    ageRange,
				Expected: "one of " + joinAgeRanges(),
			}
		}
		return NewAgePredicate(customer.AgeRange(ageRange), spec.Negate, f.profiles), nil

	case KindCategorySpendFrequency:
		category, cmp, target, err := spendAttrs(spec)
		if err != nil {
			return nil, err
		}
		return NewSpendFrequencyPredicate(category, cmp, target, spec.Negate, f.spend), nil

	case KindCategorySpendValue:
		category, cmp, target, err := spendAttrs(spec)
		if err != nil {
			return nil, err
		}
		return NewSpendValuePredicate(category, cmp, target, spec.Negate, f.spend), nil

	case KindPrimeBenefit:
		benefit, err := requireAttr(spec, attrBenefit)
		if err != nil {
			return nil, err
		}
		return NewBenefitPredicate(benefit, spec.Negate, f.benefits), nil

	case KindParent:
		return NewParentPredicate(spec.Negate, f.profiles), nil

	case KindRecognized:
		return NewRecognizedPredicate(spec.Negate), nil

	default:
		return nil, &InvalidPredicateError{
			Field:    "type",
			Value:    spec.Type,
			Expected: "one of " + strings.Join(Kinds, ", "),
		}
	}
}

// BuildAll materializes a predicate list, failing on the first invalid spec.
func (f *Factory) BuildAll(specs []PredicateSpec) ([]Predicate, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	preds := make([]Predicate, 0, len(specs))
	for _, spec := range specs {
		p, err := f.Build(spec)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// spendAttrs parses the shared attribute set of the two spend predicates.
func spendAttrs(spec PredicateSpec) (string, Comparison, int, error) {
	category, err := requireAttr(spec, attrCategory)
	if err != nil {
		return "", Comparison{}, 0, err
	}
	cmpName, err := requireAttr(spec, attrComparison)
	if err != nil {
		return "", Comparison{}, 0, err
	}
	cmp, ok := ParseComparison(cmpName)
	if !ok {
		return "", Comparison{}, 0, &InvalidPredicateError{
			Field:    attrComparison,
			Value:    cmpName,
			Expected: "one of LT, GT, EQ",
		}
	}
	targetStr, err := requireAttr(spec, attrTarget)
	if err != nil {
		return "", Comparison{}, 0, err
	}
	target, convErr := strconv.Atoi(targetStr)
	if convErr != nil {
		return "", Comparison{}, 0, &InvalidPredicateError{
			Field:    attrTarget,
			Value:    targetStr,
			Expected: "an integer",
		}
	}
	return category, cmp, target, nil
}

// requireAttr fetches a mandatory, non-blank attribute.
func requireAttr(spec PredicateSpec, key string) (string, error) {
	v, ok := spec.Attributes[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", &InvalidPredicateError{
			Field:    key,
			Value:    v,
			Expected: "a non-empty value",
		}
	}
	return v, nil
}

func joinAgeRanges() string {
	names := make([]string, len(customer.AgeRanges))
	for i, r := range customer.AgeRanges {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
