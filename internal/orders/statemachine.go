package orders

import (
	"fmt"

	"github.com/taxdesk/taxdesk/internal/shared"
)

// transitions is the authoritative table of allowed status changes. Any pair
// not listed is rejected. OPEN is initial; FILED and CANCELLED are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusOpen:            {StatusSubmitted, StatusCancelled},
	StatusSubmitted:       {StatusInReview, StatusCancelled},
	StatusInReview:        {StatusPendingApproval, StatusSubmitted},
	StatusPendingApproval: {StatusFiled, StatusInReview},
}

// CanTransition reports whether from → to is an allowed transition.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when from → to is not allowed.
func ValidateTransition(from, to OrderStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", shared.ErrInvalidTransition, from, to)
	}
	return nil
}
