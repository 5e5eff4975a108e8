package config

import "errors"

// Sentinel errors for the config package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrOutOfRange is returned when a numeric setting is outside its valid range.
	ErrOutOfRange = errors.New("configuration value out of range")

	// ErrUnsafeListFile is returned when a control-list filename is not a bare
	// filename under the destination root.
	ErrUnsafeListFile = errors.New("control list must be a filename under dest")

	// ErrLockdownNeedsSource is returned when personal lockdown is requested
	// without a local source directory.
	ErrLockdownNeedsSource = errors.New("personal lockdown requires a local source dir")

	// ErrNoSkills is returned when no candidate names were provided.
	ErrNoSkills = errors.New("at least one skill name is required")

	// ErrEmptySkillName is returned when a candidate name is empty after trimming.
	ErrEmptySkillName = errors.New("empty skill name is not allowed")
)
