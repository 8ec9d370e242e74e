package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Catalog and playlist errors
	ErrNotFound    = fmt.Errorf("not found")
	ErrAuthFailure = fmt.Errorf("authentication failed")
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrTransient   = fmt.Errorf("transient failure")

	// Share parsing errors
	ErrNoReference          = fmt.Errorf("no shared link found")
	ErrUnsupportedShareType = fmt.Errorf("unsupported share type")

	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
