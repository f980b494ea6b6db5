package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrListNotFound       = fmt.Errorf("the `list id` could not be found")
	ErrUnknownCategory    = fmt.Errorf("invalid interest category name")
	ErrMissingColumn      = fmt.Errorf("required column is missing")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")
	ErrTimeout    = fmt.Errorf("operation timed out")

	// Transport errors
	ErrTransient        = fmt.Errorf("transient transport error")
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")
	ErrPermanent        = fmt.Errorf("request rejected")

	// Run outcome errors
	ErrDataError     = fmt.Errorf("unparseable response body")
	ErrAtomicFailure = fmt.Errorf("some records are not properly processed at MailChimp. See log for detail")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
