package targeting

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/observability"
)

func TestEvaluatorRecordsMetrics(t *testing.T) {
	// Reset metrics for clean test
	observability.PredicateEvaluations.Reset()
	observability.PredicateDuration.Reset()

	e := NewEvaluator(4, 0, zap.NewNop())
	preds := []Predicate{
		&fakePredicate{result: True},
		&fakePredicate{result: True},
		&fakePredicate{result: False},
	}

	verdict, err := e.EvaluateGroup(context.Background(), RequestContext{}, preds)
	assert.NoError(t, err)
	assert.Equal(t, False, verdict)

	trueCount := testutil.ToFloat64(observability.PredicateEvaluations.WithLabelValues("fake", True.String()))
	assert.Equal(t, 2.0, trueCount, "two predicates resolved true")
	falseCount := testutil.ToFloat64(observability.PredicateEvaluations.WithLabelValues("fake", False.String()))
	assert.Equal(t, 1.0, falseCount, "one predicate resolved false")

	observer, err := observability.PredicateDuration.GetMetricWithLabelValues("fake")
	assert.NoError(t, err)
	assert.NotNil(t, observer, "predicate duration should be recorded")
}

func TestEvaluatorRecordsErrorOutcome(t *testing.T) {
	observability.PredicateEvaluations.Reset()

	e := NewEvaluator(4, 0, zap.NewNop())
	preds := []Predicate{&fakePredicate{result: Indeterminate, err: assert.AnError}}

	_, err := e.EvaluateGroup(context.Background(), RequestContext{}, preds)
	assert.Error(t, err)

	errCount := testutil.ToFloat64(observability.PredicateEvaluations.WithLabelValues("fake", "error"))
	assert.Equal(t, 1.0, errCount, "failed predicate counts as an error outcome")
}
