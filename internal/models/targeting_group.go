package models

import "github.com/patrickwarner/adtarget/internal/targeting"

// DefaultClickThroughRate is assigned to newly created targeting groups
// until feedback data arrives.
const DefaultClickThroughRate = 1.0

// TargetingGroup binds a set of predicates to a piece of content with a
// click-through rate used to rank groups during selection.
//
// PredicateSpecs is the serialized form stored and transported; Predicates
// holds the materialized evaluators and is rebuilt by the predicate factory
// whenever specs change.
type TargetingGroup struct {
	ID               string                    `json:"id"`
	ContentID        string                    `json:"content_id"`
	ClickThroughRate float64                   `json:"click_through_rate"`
	PredicateSpecs   []targeting.PredicateSpec `json:"predicates"`

	Predicates []targeting.Predicate `json:"-"`
}
