package controls

import "errors"

// Sentinel errors for the controls package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrUnsafePath is returned when a control-list path escapes the
	// destination root or resolves through a symbolic link.
	ErrUnsafePath = errors.New("unsafe control list path")

	// ErrUnknownList is returned for a list name other than deny, allow,
	// or protected.
	ErrUnknownList = errors.New("unknown control list")
)
