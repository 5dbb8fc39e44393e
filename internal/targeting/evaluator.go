package targeting

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/observability"
)

const defaultWorkers = 16

// Evaluator resolves a targeting group's predicates concurrently and folds
// their tri-state results into a single group verdict. One predicate per
// worker; the pool is bounded and shared across requests so a burst of
// selection calls cannot spawn unbounded goroutine fan-outs blocked on
// collaborator I/O.
type Evaluator struct {
	sem     chan struct{}
	timeout time.Duration
	logger  *zap.Logger
}

// NewEvaluator constructs an Evaluator. workers bounds concurrent predicate
// evaluations across all requests; timeout, when non-zero, caps a single
// predicate's evaluation and resolves it to Indeterminate on expiry.
func NewEvaluator(workers int, timeout time.Duration, logger *zap.Logger) *Evaluator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Evaluator{
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		logger:  logger,
	}
}

// EvaluateGroup evaluates every predicate concurrently and joins on all of
// them before deciding. The verdict is True iff every predicate evaluates
// True; any False or Indeterminate forces False. Zero predicates is vacuously
// True: an unrestricted group is eligible for everyone. A predicate error is
// returned to the caller rather than folded into the verdict.
func (e *Evaluator) EvaluateGroup(ctx context.Context, rc RequestContext, predicates []Predicate) (Result, error) {
	if len(predicates) == 0 {
		return True, nil
	}

	results := make([]Result, len(predicates))
	errs := make([]error, len(predicates))

	var wg sync.WaitGroup
	for i, p := range predicates {
		wg.Add(1)
		go func(i int, p Predicate) {
			defer wg.Done()
			e.sem <- struct{}{}
			defer func() { <-e.sem }()
			results[i], errs[i] = e.evaluateOne(ctx, rc, p)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Indeterminate, err
		}
	}

	verdict := True
	for _, r := range results {
		if r != True {
			verdict = False
			break
		}
	}
	return verdict, nil
}

// evaluateOne runs a single predicate under the per-predicate timeout. Expiry
// of that timeout resolves to Indeterminate; cancellation of the parent
// context still propagates as an error.
func (e *Evaluator) evaluateOne(ctx context.Context, rc RequestContext, p Predicate) (Result, error) {
	start := time.Now()

	pctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := p.Evaluate(pctx, rc)
	observability.RecordPredicateDuration(p.Kind(), time.Since(start))

	if err != nil {
		if e.timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Warn("predicate evaluation timed out",
				zap.String("kind", p.Kind()),
				zap.Duration("timeout", e.timeout))
			observability.IncrementPredicateEvaluations(p.Kind(), Indeterminate.String())
			return Indeterminate, nil
		}
		observability.IncrementPredicateEvaluations(p.Kind(), "error")
		return Indeterminate, err
	}

	observability.IncrementPredicateEvaluations(p.Kind(), res.String())
	return res, nil
}
