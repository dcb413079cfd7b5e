package custody

import (
	"errors"
)

var (
	// ErrNotReady is returned when the result of a request is read before the
	// request was accepted.
	ErrNotReady           = errors.New("request has not been accepted")
	ErrVerificationFailed = errors.New("signature verification failed")
	ErrDecryptionFailed   = errors.New("decryption failed")
	// ErrInvalidTransition is returned when a request is asked to move to a
	// state it can not reach from its current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrObjectMismatch is returned when an object is applied to a request
	// with a different kind or uuid.
	ErrObjectMismatch = errors.New("object does not belong to this request")

	ErrNoPendingSignRequest  = errors.New("no sign request has been made for the certificate request")
	ErrCSRNotSigned          = errors.New("certificate request has not been signed")
	ErrCSRVerificationFailed = errors.New("certificate request signature could not be verified")
	ErrSubjectMismatch       = errors.New("signing subject does not match the encoded certificate request")
)

// causeError matches sentinel with errors.Is and unwraps to cause, so that
// callers can check for both.
type causeError struct {
	sentinel error
	cause    error
}

func (e causeError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e causeError) Is(target error) bool {
	return target == e.sentinel
}

func (e causeError) Unwrap() error {
	return e.cause
}
