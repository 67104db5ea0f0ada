package domain

import "errors"

// Kind groups tagged errors by how the transport layer reports them
type Kind string

const (
	KindAuth          Kind = "auth"          // Failed or missing assertion
	KindAuthorization Kind = "authorization" // Caller may not perform the action
	KindState         Kind = "state"         // Lifecycle conflict
	KindLedger        Kind = "ledger"        // Money rule violated
	KindNotFound      Kind = "not_found"     // Entity missing
	KindValidation    Kind = "validation"    // Malformed input
)

// Reasons surfaced verbatim to clients
const (
	ReasonNoAssertion   = "NO_ASSERTION"
	ReasonNoHash        = "NO_HASH"
	ReasonBadHash       = "BAD_HASH"
	ReasonExpired       = "EXPIRED"
	ReasonFutureDated   = "FUTURE_DATED"
	ReasonMalformedUser = "MALFORMED_USER"
	ReasonMalformed     = "MALFORMED"

	ReasonRoleDenied        = "ROLE_DENIED"
	ReasonSpecialtyMismatch = "SPECIALTY_MISMATCH"
	ReasonAlreadyAnswered   = "ALREADY_ANSWERED"
	ReasonLimitReached      = "LIMIT_REACHED"

	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonAlreadySettled    = "ALREADY_SETTLED"
	ReasonChatLocked        = "CHAT_LOCKED"
	ReasonAlreadyRegistered = "ALREADY_REGISTERED"

	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonNonPositiveAmount = "NON_POSITIVE_AMOUNT"

	ReasonNotFound     = "NOT_FOUND"
	ReasonInvalidInput = "INVALID_INPUT"
)

// Error is a tagged business error. None of them are retried.
type Error struct {
	Kind   Kind
	Reason string
	Hint   string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return e.Reason + ": " + e.Hint
	}
	return e.Reason
}

// Is matches on kind and reason so errors.Is works against the sentinel values below
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

func newError(kind Kind, reason, hint string) *Error {
	return &Error{Kind: kind, Reason: reason, Hint: hint}
}

func AuthError(reason string) *Error        { return newError(KindAuth, reason, "") }
func Denied(reason string) *Error           { return newError(KindAuthorization, reason, "") }
func StateError(reason, hint string) *Error { return newError(KindState, reason, hint) }
func LedgerError(reason string) *Error      { return newError(KindLedger, reason, "") }
func NotFound(what string) *Error           { return newError(KindNotFound, ReasonNotFound, what) }
func Invalid(hint string) *Error            { return newError(KindValidation, ReasonInvalidInput, hint) }

// WithHint returns a copy carrying a client-facing hint
func (e *Error) WithHint(hint string) *Error { return newError(e.Kind, e.Reason, hint) }

// Sentinels for errors.Is checks
var (
	ErrNoHash            = AuthError(ReasonNoHash)
	ErrBadHash           = AuthError(ReasonBadHash)
	ErrExpired           = AuthError(ReasonExpired)
	ErrFutureDated       = AuthError(ReasonFutureDated)
	ErrMalformed         = AuthError(ReasonMalformed)
	ErrMalformedUser     = AuthError(ReasonMalformedUser)
	ErrRoleDenied        = Denied(ReasonRoleDenied)
	ErrSpecialtyMismatch = Denied(ReasonSpecialtyMismatch)
	ErrAlreadyAnswered   = Denied(ReasonAlreadyAnswered)
	ErrLimitReached      = Denied(ReasonLimitReached)
	ErrInvalidTransition = StateError(ReasonInvalidTransition, "")
	ErrAlreadySettled    = StateError(ReasonAlreadySettled, "")
	ErrChatLocked        = StateError(ReasonChatLocked, "")
	ErrAlreadyRegistered = StateError(ReasonAlreadyRegistered, "")
	ErrInsufficientFunds = LedgerError(ReasonInsufficientFunds)
	ErrNonPositive       = LedgerError(ReasonNonPositiveAmount)
)

// AsError extracts a tagged error, if any
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of a tagged error, or "" for infrastructure errors
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}
