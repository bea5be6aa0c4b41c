package pkg

import "fmt"

// Objective is the partitioning objective function minimized by the pipeline.
type Objective uint8

const (
	CUT_OBJECTIVE Objective = iota // total weight of hyperedges spanning >= 2 blocks
	KM1_OBJECTIVE                  // sum over hyperedges of weight * (connectivity - 1)
)

func (o Objective) String() string {
	switch o {
	case CUT_OBJECTIVE:
		return "cut"
	case KM1_OBJECTIVE:
		return "km1"
	}
	return "unknown"
}

// ParseObjective maps the textual parameter value to an Objective.
func ParseObjective(s string) (Objective, error) {
	switch s {
	case "cut":
		return CUT_OBJECTIVE, nil
	case "km1":
		return KM1_OBJECTIVE, nil
	}
	return 0, fmt.Errorf("invalid objective %q (want cut or km1)", s)
}

const (
	INVALID_PARTITION_ID = -1
	INVALID_LEVEL        = int(1e9)

	MAX_FLOW_CAP = int64(2e18) // stands in for an infinite arc capacity

	// coarsening stops once the hypergraph has at most
	// CONTRACTION_LIMIT_MULTIPLIER * k vertices or shrinks too slowly.
	CONTRACTION_LIMIT_MULTIPLIER = 160
	MINIMUM_SHRINK_FACTOR        = 1.01

	// retries of the initial partitioning pool with derived seeds before
	// giving up on a feasible partition of the coarsest hypergraph.
	IP_MAX_REPETITIONS = 5

	FLOW_REGION_EPS_SCALING = 16.0
)

// DebugAssertions toggles invariant checks that abort on violation. Release
// builds keep it off; tests may flip it on.
var DebugAssertions = false

// Assert aborts with a contextual message when cond is false and debug
// assertions are enabled.
func Assert(cond bool, format string, args ...interface{}) {
	if DebugAssertions && !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
