package resolve

import "errors"

// Sentinel errors for the resolve package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrInvalidName is returned when a skill name fails the conservative
	// identifier pattern that blocks path traversal input.
	ErrInvalidName = errors.New("invalid skill name")

	// ErrSourceNotFound is returned when a skill's source directory does
	// not exist or is not a directory.
	ErrSourceNotFound = errors.New("skill source not found")

	// ErrUnsafeSource is returned when a local skill source is a symbolic
	// link, which could redirect the install copy.
	ErrUnsafeSource = errors.New("skill source is a symlink")

	// ErrCloneFailed is returned when the curated skills repository cannot
	// be cloned.
	ErrCloneFailed = errors.New("clone of curated skills repo failed")
)
