package sampler

import "errors"

// ErrProbe is returned when the process-count probe itself fails (as opposed
// to finding zero processes, which is a valid count). Probe failures are never
// fatal to a run; the sampler records a zero sample and notes the failure.
var ErrProbe = errors.New("process count probe failed")
