package engine

import (
	"errors"
	"fmt"

	"github.com/edurail/quotaguard/internal/models"
	"github.com/edurail/quotaguard/internal/points"
	"github.com/edurail/quotaguard/internal/store"
)

// ErrContentionTimeout is returned when the organization row lock could not
// be acquired before the caller's deadline. No write has happened; the caller
// may retry later.
var ErrContentionTimeout = errors.New("reservation aborted: lock wait exceeded deadline")

// QuotaExceededError reports that the verification step found the proposed
// total over the limit plus buffer. It is safe to surface verbatim.
type QuotaExceededError struct {
	Resource      models.ResourceKind
	HardLimit     float64
	ProposedTotal float64
	BufferPercent float64
}

func (e *QuotaExceededError) Error() string {
	if e.BufferPercent > 0 {
		return fmt.Sprintf("%s quota exceeded: proposed total %.1f over limit %.1f (+%.0f%% buffer)",
			e.Resource, e.ProposedTotal, e.HardLimit, e.BufferPercent*100)
	}
	return fmt.Sprintf("%s quota exceeded: proposed total %.1f over limit %.1f",
		e.Resource, e.ProposedTotal, e.HardLimit)
}

// Kind is the caller-visible error taxonomy. The routing layer translates
// kinds into user-facing messages; the engine produces no UI text.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnrecognizedUnit
	KindQuotaExceeded
	KindContentionTimeout
	KindOrganizationNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnrecognizedUnit:
		return "unrecognized_unit"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindContentionTimeout:
		return "contention_timeout"
	case KindOrganizationNotFound:
		return "organization_not_found"
	default:
		return "unknown"
	}
}

// ClassifyError maps an error returned by the engine to its taxonomy kind.
func ClassifyError(err error) Kind {
	var quotaErr *QuotaExceededError
	switch {
	case errors.Is(err, points.ErrUnrecognizedUnit):
		return KindUnrecognizedUnit
	case errors.As(err, &quotaErr):
		return KindQuotaExceeded
	case errors.Is(err, ErrContentionTimeout):
		return KindContentionTimeout
	case errors.Is(err, store.ErrOrganizationNotFound):
		return KindOrganizationNotFound
	default:
		return KindUnknown
	}
}

// Retryable reports whether the caller may usefully retry the same request.
// Only contention timeouts qualify; quota rejections are deterministic and
// unrecognized units are programming errors.
func Retryable(err error) bool {
	return ClassifyError(err) == KindContentionTimeout
}
