// Package booking drives a booking through its lifecycle: acceptance,
// confirmation, pre-event readiness, the event itself, review and
// cancellation, and schedules the jobs each phase needs.
package booking

import (
	"fmt"

	"venuebook/internal/models"
)

// FSM holds the allowed lifecycle transitions.
type FSM struct {
	transitions map[models.LifecycleStatus][]models.LifecycleStatus
}

// NewFSM creates the lifecycle machine. Phases only move forward; cancelled
// is reachable from every non-terminal phase.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.LifecycleStatus][]models.LifecycleStatus{
			models.LifecyclePending:              {models.LifecycleConfirmed, models.LifecycleCancelled},
			models.LifecycleConfirmed:            {models.LifecyclePreEventReady, models.LifecycleCancelled},
			models.LifecyclePreEventReady:        {models.LifecycleInProgress, models.LifecycleCancelled},
			models.LifecycleInProgress:           {models.LifecyclePostEvent, models.LifecycleCancelled},
			models.LifecyclePostEvent:            {models.LifecycleClosedReviewComplete, models.LifecycleCancelled},
			models.LifecycleClosedReviewComplete: nil,
			models.LifecycleCancelled:            nil,
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to models.LifecycleStatus) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (f *FSM) IsTerminal(s models.LifecycleStatus) bool {
	next, ok := f.transitions[s]
	return ok && len(next) == 0
}

// Transition moves b to phase to. A cancelled booking yields
// models.ErrBookingCancelled; any other disallowed move yields
// models.ErrInvalidTransition. b is untouched on error.
func (f *FSM) Transition(b *models.Booking, to models.LifecycleStatus) error {
	from := b.LifecycleStatus
	if from == models.LifecycleCancelled {
		return fmt.Errorf("booking %d: %w", b.ID, models.ErrBookingCancelled)
	}
	if to == models.LifecycleCancelled && b.Status == models.StatusCompleted {
		return fmt.Errorf("booking %d: %w", b.ID, models.ErrBookingCompleted)
	}
	if !f.CanTransition(from, to) {
		return fmt.Errorf("booking %d %s -> %s: %w", b.ID, from, to, models.ErrInvalidTransition)
	}
	b.LifecycleStatus = to
	return nil
}
