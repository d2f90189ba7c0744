package charge

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/errors"
)

// transitions is the fixed directed graph of legal status changes. Terminal
// states have no entry. Any edge not listed here is illegal and a request for
// it signals a gateway inconsistency or a bug, never a user condition.
var transitions = map[Status][]Status{
	StatusCreated: {
		StatusEnteringCardDetails,
		StatusAuthUserNotPresentQueued,
		StatusSystemCancelled,
		StatusExpired,
	},
	StatusEnteringCardDetails: {
		StatusAuthReady,
		StatusAuthCancelled,
		StatusUserCancelReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
		StatusExpired,
	},
	StatusAuthReady: {
		StatusAuthSuccess,
		StatusAuthRejected,
		StatusAuthError,
		StatusAuthTimeout,
		StatusAuthUnexpectedError,
		StatusAuthSubmitted,
		StatusAuth3DSRequired,
		StatusAuthCancelled,
	},
	StatusAuthUserNotPresentQueued: {
		StatusAuthReady,
		StatusExpired,
	},
	StatusAuth3DSRequired: {
		StatusAuth3DSReady,
		StatusUserCancelReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
		StatusExpired,
	},
	StatusAuth3DSReady: {
		StatusAuthSuccess,
		StatusAuthRejected,
		StatusAuthError,
		StatusAuthTimeout,
		StatusAuthUnexpectedError,
		StatusAuthSubmitted,
		StatusAuthCancelled,
	},
	StatusAuthSubmitted: {
		StatusAuthSuccess,
		StatusAuthRejected,
		StatusAuthError,
		StatusAuth3DSRequired,
	},
	StatusAuthSuccess: {
		StatusAwaitingCaptureRequest,
		StatusCaptureApproved,
		StatusCaptureReady,
		StatusUserCancelReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
	},
	StatusAwaitingCaptureRequest: {
		StatusCaptureApproved,
		StatusUserCancelReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
	},
	StatusCaptureApproved: {
		StatusCaptureReady,
		StatusCaptureApprovedRetry,
	},
	StatusCaptureApprovedRetry: {
		StatusCaptureReady,
		StatusCaptureError,
	},
	StatusCaptureReady: {
		StatusCaptureQueued,
		StatusCaptureSubmitted,
		StatusCaptureError,
	},
	StatusCaptureQueued: {
		StatusCaptureReady,
		StatusCaptureSubmitted,
		StatusCaptureError,
	},
	StatusCaptureSubmitted: {
		StatusCaptured,
		StatusCaptureError,
	},
	StatusExpireCancelReady: {
		StatusExpireCancelSubmitted,
		StatusExpireCancelFailed,
		StatusExpired,
	},
	StatusExpireCancelSubmitted: {
		StatusExpired,
		StatusExpireCancelFailed,
	},
	StatusSystemCancelReady: {
		StatusSystemCancelSubmitted,
		StatusSystemCancelError,
		StatusSystemCancelled,
	},
	StatusSystemCancelSubmitted: {
		StatusSystemCancelled,
		StatusSystemCancelError,
	},
	StatusUserCancelReady: {
		StatusUserCancelSubmitted,
		StatusUserCancelError,
		StatusUserCancelled,
	},
	StatusUserCancelSubmitted: {
		StatusUserCancelled,
		StatusUserCancelError,
	},
	// Post-hoc cleanup edges, driven by the reconciliation job.
	StatusAuthError: {
		StatusAuthErrorCancelled,
		StatusAuthErrorRejected,
		StatusAuthErrorChargeMissing,
	},
	StatusAuthTimeout: {
		StatusAuthErrorCancelled,
		StatusAuthErrorRejected,
		StatusAuthErrorChargeMissing,
	},
	StatusAuthUnexpectedError: {
		StatusAuthErrorCancelled,
		StatusAuthErrorRejected,
		StatusAuthErrorChargeMissing,
	},
}

// CanTransition reports whether the edge from -> to exists in the graph.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the charge to target if the edge is legal, appending a
// charge event. Fails with ErrInvalidStateTransition otherwise; callers must
// surface that failure, never swallow it.
func (c *Charge) Transition(target Status) error {
	return c.transitionAt(target, time.Now(), nil)
}

// TransitionWithGatewayTime is Transition with the gateway-reported event
// time recorded on the appended event.
func (c *Charge) TransitionWithGatewayTime(target Status, gatewayTime time.Time) error {
	return c.transitionAt(target, time.Now(), &gatewayTime)
}

func (c *Charge) transitionAt(target Status, now time.Time, gatewayTime *time.Time) error {
	if !CanTransition(c.Status, target) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(c.Status)+" to "+string(target),
			errors.ErrInvalidStateTransition,
		)
	}
	c.applyStatus(target, now, gatewayTime)
	return nil
}

// ForceTransition moves the charge to target without validating the edge. It
// never fails. It exists solely to correct charge state to match
// gateway-confirmed truth during reconciliation, and callers must audit it
// distinctly from validated transitions.
func (c *Charge) ForceTransition(target Status) {
	c.applyStatus(target, time.Now(), nil)
}

func (c *Charge) applyStatus(target Status, now time.Time, gatewayTime *time.Time) {
	c.Status = target
	c.UpdatedAt = now
	c.Events = append(c.Events, Event{
		Status:           target,
		RecordedAt:       now,
		GatewayEventTime: gatewayTime,
	})
}
