package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_SESSION_TRANSITION"
	textCodeCredentials       = "CREDENTIALS_REJECTED"
	textCodeSigninUnavailable = "SIGNIN_UNAVAILABLE"
	textCodeSessionRejected   = "SESSION_REJECTED"
	textCodeVerifyTransient   = "VERIFY_TRANSIENT"
	textCodeVerifyExhausted   = "VERIFY_EXHAUSTED"
	textCodeLogoutInProgress  = "LOGOUT_IN_PROGRESS"
	textCodeMachineClosed     = "SESSION_MACHINE_CLOSED"
	textCodeStaleBearer       = "STALE_BEARER_TOKEN"
)

// ErrInvalidTransition is returned when a requested phase change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session phase transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrCredentialsRejected is returned when the identity backend refuses a
// sign-in attempt. It is local to the login call and never alters the ambient
// session state.
var ErrCredentialsRejected = goerrors.New("credentials rejected", goerrors.CategoryAuth).
	WithTextCode(textCodeCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSigninUnavailable is returned when a sign-in call failed for reasons
// other than bad credentials (network error, 5xx). The caller may retry.
var ErrSigninUnavailable = goerrors.New("sign-in temporarily unavailable", goerrors.CategoryOperation).
	WithTextCode(textCodeSigninUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrSessionRejected is the definitive negative verification answer (401/403).
// It is terminal for the verification cycle: no retries.
var ErrSessionRejected = goerrors.New("session rejected by identity backend", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionRejected).
	WithCode(goerrors.CodeUnauthorized)

// ErrVerifyTransient marks a retryable verification failure (network error,
// 5xx, malformed body).
var ErrVerifyTransient = goerrors.New("transient verification failure", goerrors.CategoryOperation).
	WithTextCode(textCodeVerifyTransient).
	WithCode(goerrors.CodeInternal)

// ErrVerifyExhausted is reported after the retry policy gives up without a
// definitive answer.
var ErrVerifyExhausted = goerrors.New("verification retries exhausted", goerrors.CategoryOperation).
	WithTextCode(textCodeVerifyExhausted).
	WithCode(goerrors.CodeInternal)

// ErrLogoutInProgress rejects a login attempted while a logout critical
// section is still running.
var ErrLogoutInProgress = goerrors.New("logout in progress", goerrors.CategoryConflict).
	WithTextCode(textCodeLogoutInProgress).
	WithCode(goerrors.CodeConflict)

// ErrMachineClosed is returned by operations invoked after Close.
var ErrMachineClosed = goerrors.New("session machine closed", goerrors.CategoryConflict).
	WithTextCode(textCodeMachineClosed).
	WithCode(goerrors.CodeConflict)

// ErrStaleBearerToken is returned when the cached fallback token is expired
// or not yet valid, so it must not be used to paint optimistic state.
var ErrStaleBearerToken = goerrors.New("cached bearer token is stale", goerrors.CategoryAuth).
	WithTextCode(textCodeStaleBearer).
	WithCode(goerrors.CodeUnauthorized)

// IsDefinitiveRejection reports whether err is the terminal "you are not
// logged in" answer, which must never be retried.
func IsDefinitiveRejection(err error) bool {
	return hasTextCode(err, textCodeSessionRejected)
}

// IsTransientFailure reports whether err may be retried per policy.
func IsTransientFailure(err error) bool {
	return hasTextCode(err, textCodeVerifyTransient)
}

// IsCredentialRejection reports whether err came from a refused sign-in.
func IsCredentialRejection(err error) bool {
	return hasTextCode(err, textCodeCredentials)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}
