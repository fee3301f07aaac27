// Package policy holds the soft-limit decision function, separated from the
// locking protocol so the tolerance band can be tested in isolation.
package policy

// Decision is the outcome of classifying a proposed total against a limit.
type Decision int

const (
	// Allow means the proposed total is within the hard limit.
	Allow Decision = iota
	// AllowWithWarning means the proposed total is over the hard limit but
	// inside the tolerance band; the caller should surface a soft warning.
	AllowWithWarning
	// Reject means the proposed total exceeds the limit plus buffer.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case AllowWithWarning:
		return "ALLOW_WITH_WARNING"
	case Reject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Permitted reports whether the decision lets the reservation commit.
func (d Decision) Permitted() bool {
	return d == Allow || d == AllowWithWarning
}

// Classify compares a post-write total against a hard limit with a tolerance
// band. A nil hardLimit means unbounded. The check is against the total after
// the speculative write, so a single oversized request may land above the
// nominal limit but inside the band in one step.
func Classify(proposedTotal float64, hardLimit *float64, bufferPercent float64) Decision {
	if hardLimit == nil {
		return Allow
	}
	if proposedTotal <= *hardLimit {
		return Allow
	}
	if proposedTotal <= *hardLimit*(1+bufferPercent) {
		return AllowWithWarning
	}
	return Reject
}
