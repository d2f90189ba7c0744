package charge

// Status is the internal lifecycle status of a charge. The set is closed:
// values outside this vocabulary must never be assigned to a charge.
type Status string

const (
	// Pre-authorisation
	StatusCreated             Status = "CREATED"
	StatusEnteringCardDetails Status = "ENTERING CARD DETAILS"

	// Authorisation
	StatusAuthReady              Status = "AUTHORISATION READY"
	StatusAuth3DSRequired        Status = "AUTHORISATION 3DS REQUIRED"
	StatusAuth3DSReady           Status = "AUTHORISATION 3DS READY"
	StatusAuthSubmitted          Status = "AUTHORISATION SUBMITTED"
	StatusAuthSuccess            Status = "AUTHORISATION SUCCESS"
	StatusAuthRejected           Status = "AUTHORISATION REJECTED"
	StatusAuthCancelled          Status = "AUTHORISATION CANCELLED"
	StatusAuthError              Status = "AUTHORISATION ERROR"
	StatusAuthTimeout            Status = "AUTHORISATION TIMEOUT"
	StatusAuthUnexpectedError    Status = "AUTHORISATION UNEXPECTED ERROR"
	StatusAuthUserNotPresentQueued Status = "AUTHORISATION USER NOT PRESENT QUEUED"

	// Capture
	StatusAwaitingCaptureRequest Status = "AWAITING CAPTURE REQUEST"
	StatusCaptureApproved        Status = "CAPTURE APPROVED"
	StatusCaptureApprovedRetry   Status = "CAPTURE APPROVED RETRY"
	StatusCaptureReady           Status = "CAPTURE READY"
	StatusCaptureQueued          Status = "CAPTURE QUEUED"
	StatusCaptureSubmitted       Status = "CAPTURE SUBMITTED"
	StatusCaptured               Status = "CAPTURED"
	StatusCaptureError           Status = "CAPTURE ERROR"

	// Expiry
	StatusExpireCancelReady     Status = "EXPIRE CANCEL READY"
	StatusExpireCancelSubmitted Status = "EXPIRE CANCEL SUBMITTED"
	StatusExpireCancelFailed    Status = "EXPIRE CANCEL FAILED"
	StatusExpired               Status = "EXPIRED"

	// System cancellation
	StatusSystemCancelReady     Status = "SYSTEM CANCEL READY"
	StatusSystemCancelSubmitted Status = "SYSTEM CANCEL SUBMITTED"
	StatusSystemCancelError     Status = "SYSTEM CANCEL ERROR"
	StatusSystemCancelled       Status = "SYSTEM CANCELLED"

	// User cancellation
	StatusUserCancelReady     Status = "USER CANCEL READY"
	StatusUserCancelSubmitted Status = "USER CANCEL SUBMITTED"
	StatusUserCancelError     Status = "USER CANCEL ERROR"
	StatusUserCancelled       Status = "USER CANCELLED"

	// Post-hoc cleanup of authorisation errors, written only by the
	// reconciliation job once gateway truth is known.
	StatusAuthErrorCancelled     Status = "AUTHORISATION ERROR CANCELLED"
	StatusAuthErrorRejected      Status = "AUTHORISATION ERROR REJECTED"
	StatusAuthErrorChargeMissing Status = "AUTHORISATION ERROR CHARGE MISSING"
)

// ExternalStatus is the coarse client-facing view of a charge's status.
type ExternalStatus string

const (
	ExternalCreated         ExternalStatus = "created"
	ExternalStarted         ExternalStatus = "started"
	ExternalSubmitted       ExternalStatus = "submitted"
	ExternalCapturable      ExternalStatus = "capturable"
	ExternalSuccess         ExternalStatus = "success"
	ExternalErrorGateway    ExternalStatus = "error"
	ExternalFailedRejected  ExternalStatus = "declined"
	ExternalFailedCancelled ExternalStatus = "failed_cancelled"
	ExternalFailedExpired   ExternalStatus = "failed_expired"
	ExternalCancelled       ExternalStatus = "cancelled"
)

// statusMeta carries the behaviour attached to each status. Expungeable marks
// terminal states safe for data-retention purge.
type statusMeta struct {
	external    ExternalStatus
	terminal    bool
	expungeable bool
}

var statusTable = map[Status]statusMeta{
	StatusCreated:             {external: ExternalCreated},
	StatusEnteringCardDetails: {external: ExternalStarted},

	StatusAuthReady:                {external: ExternalStarted},
	StatusAuth3DSRequired:          {external: ExternalStarted},
	StatusAuth3DSReady:             {external: ExternalStarted},
	StatusAuthSubmitted:            {external: ExternalSubmitted},
	StatusAuthSuccess:              {external: ExternalSubmitted},
	StatusAuthRejected:             {external: ExternalFailedRejected, terminal: true, expungeable: true},
	StatusAuthCancelled:            {external: ExternalFailedCancelled, terminal: true, expungeable: true},
	// The auth-error family is not terminal: the reconciliation job still
	// owes it a cleanup transition once gateway truth is known.
	StatusAuthError:                {external: ExternalErrorGateway},
	StatusAuthTimeout:              {external: ExternalErrorGateway},
	StatusAuthUnexpectedError:      {external: ExternalErrorGateway},
	StatusAuthUserNotPresentQueued: {external: ExternalStarted},

	StatusAwaitingCaptureRequest: {external: ExternalCapturable},
	StatusCaptureApproved:        {external: ExternalSuccess},
	StatusCaptureApprovedRetry:   {external: ExternalSuccess},
	StatusCaptureReady:           {external: ExternalSuccess},
	StatusCaptureQueued:          {external: ExternalSuccess},
	StatusCaptureSubmitted:       {external: ExternalSuccess},
	StatusCaptured:               {external: ExternalSuccess, terminal: true, expungeable: true},
	StatusCaptureError:           {external: ExternalErrorGateway, terminal: true},

	StatusExpireCancelReady:     {external: ExternalFailedExpired},
	StatusExpireCancelSubmitted: {external: ExternalFailedExpired},
	StatusExpireCancelFailed:    {external: ExternalFailedExpired, terminal: true},
	StatusExpired:               {external: ExternalFailedExpired, terminal: true, expungeable: true},

	StatusSystemCancelReady:     {external: ExternalCancelled},
	StatusSystemCancelSubmitted: {external: ExternalCancelled},
	StatusSystemCancelError:     {external: ExternalErrorGateway, terminal: true},
	StatusSystemCancelled:       {external: ExternalCancelled, terminal: true, expungeable: true},

	StatusUserCancelReady:     {external: ExternalFailedCancelled},
	StatusUserCancelSubmitted: {external: ExternalFailedCancelled},
	StatusUserCancelError:     {external: ExternalErrorGateway, terminal: true},
	StatusUserCancelled:       {external: ExternalFailedCancelled, terminal: true, expungeable: true},

	StatusAuthErrorCancelled:     {external: ExternalErrorGateway, terminal: true, expungeable: true},
	StatusAuthErrorRejected:      {external: ExternalErrorGateway, terminal: true, expungeable: true},
	StatusAuthErrorChargeMissing: {external: ExternalErrorGateway, terminal: true, expungeable: true},
}

// IsValid reports whether s is a member of the charge status vocabulary.
func (s Status) IsValid() bool {
	_, ok := statusTable[s]
	return ok
}

// External returns the coarse client-facing status for s.
func (s Status) External() ExternalStatus {
	return statusTable[s].external
}

// IsTerminal reports whether s has no outgoing validated transitions.
func (s Status) IsTerminal() bool {
	return statusTable[s].terminal
}

// IsExpungeable reports whether a charge in this status is eligible for
// data-retention purge. Purging itself is a downstream concern.
func (s Status) IsExpungeable() bool {
	return statusTable[s].expungeable
}

func (s Status) String() string {
	return string(s)
}

// AllStatuses returns every member of the vocabulary. Order is unspecified.
func AllStatuses() []Status {
	out := make([]Status, 0, len(statusTable))
	for s := range statusTable {
		out = append(out, s)
	}
	return out
}
