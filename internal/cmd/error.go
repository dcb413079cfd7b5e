package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/pki"
)

// CLI Errors are user facing errors that are formatted.
// Should be used for communication, rather than a stacktrace.
type Error struct {
	// Short redacted version of OriginalError, required if OriginalError is set
	Cause string

	// OriginalError is the error that bubbled up, used for logging/debugging
	// Only set this if you need it to be printed as part of the user facing 'Message'.
	OriginalError error

	// Human readable message to resolve the error. These should be full sentences.
	Suggestion string
}

// Format is one of the three:
// a) Error: Cause
//
//	OriginalError
//
//	Suggestion
//
// b) Error: Cause
//
//	Suggestion
//
// c) Suggestion
func (e Error) Error() string {
	if e.OriginalError == nil && len(e.Cause) == 0 {
		return e.Suggestion
	}

	output := "Error: " + e.Cause
	if e.OriginalError != nil {
		output += "\n" + e.OriginalError.Error()
	}

	if len(e.Suggestion) > 0 {
		output += "\n\n" + e.Suggestion
	}

	return output
}

func (e Error) Unwrap() error {
	return e.OriginalError
}

var errMissingAPIKey = Error{
	Cause:      "missing api key",
	Suggestion: "Set --api-key or CUSTODY_API_KEY to the api key of your service provider, or to a reference such as env:NAME or file:/path.",
}

// userError turns the errors a user can act on into an Error. Other errors
// are returned unchanged.
func userError(err error) error {
	var cliErr Error
	if err == nil || errors.As(err, &cliErr) {
		return err
	}

	switch {
	case api.ErrorStatusCode(err) == http.StatusUnauthorized:
		return Error{
			Cause:         "the custodian rejected the api key",
			OriginalError: err,
			Suggestion:    "Check that --api-key refers to the api key of your service provider.",
		}
	case api.ErrorStatusCode(err) == http.StatusNotFound:
		return Error{
			Cause:         "not found",
			OriginalError: err,
			Suggestion:    "Check the uuid, and that it belongs to the service provider of the api key.",
		}
	case errors.Is(err, custody.ErrVerificationFailed):
		return Error{
			Cause:         "the signature returned by the device is not valid",
			OriginalError: err,
			Suggestion:    "The result can not be trusted. Make a new request.",
		}
	case errors.Is(err, pki.ErrUnsupportedKeyLength):
		return Error{
			Cause:         "unsupported key length",
			OriginalError: err,
			Suggestion:    fmt.Sprintf("Use --key-length 128 or 256, the default is %d.", pki.DefaultTransportKeyBits),
		}
	}
	return err
}

// requestError reports a request that finished without being accepted.
func requestError(r *custody.Request) error {
	return Error{
		Cause:      fmt.Sprintf("%s request %s was %s", r.Kind(), r.ID(), r.State()),
		Suggestion: fmt.Sprintf("The device answered %q.", r.StatusText()),
	}
}
