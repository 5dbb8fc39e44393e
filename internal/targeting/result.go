package targeting

// Result is the tri-state outcome of evaluating a single predicate or a whole
// targeting group. Indeterminate means the predicate could not be evaluated
// (missing upstream data, unrecognized customer); for eligibility it folds the
// same way as False and is never treated as a match.
type Result int

const (
	False Result = iota
	True
	Indeterminate
)

// String returns a human-readable label, used in logs and metric labels.
func (r Result) String() string {
	switch r {
	case True:
		return "true"
	case False:
		return "false"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Negate inverts True and False. Indeterminate stays Indeterminate: inverting
// "unknown" is still "unknown".
func (r Result) Negate() Result {
	switch r {
	case True:
		return False
	case False:
		return True
	default:
		return Indeterminate
	}
}

// resultOf converts a plain boolean check into a Result.
func resultOf(b bool) Result {
	if b {
		return True
	}
	return False
}
