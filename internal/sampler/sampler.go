// Package sampler measures the churn signal: a host-global count of transient
// processes, sampled once per interval for a fixed window. The probe is an
// opaque collaborator; the sampler only depends on it returning an integer.
package sampler

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober returns the current process count for the watched process name.
type Prober interface {
	Count() (int, error)
}

// ExecProber counts live processes with an exact-name pgrep match.
type ExecProber struct {
	// Name is the process name to count, e.g. "rg".
	Name string
}

// Count runs pgrep -x and counts the matching PIDs. pgrep exiting 1 means no
// matches, which is a valid zero count, not a probe failure.
func (p ExecProber) Count() (int, error) {
	out, err := exec.Command("pgrep", "-x", p.Name).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrProbe, err)
	}

	count := 0
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count, nil
}

// Series is an ordered sequence of non-negative counts taken at fixed
// one-interval spacing.
type Series []int

// Max returns the largest sample, or 0 for an empty series.
func (s Series) Max() int {
	max := 0
	for _, v := range s {
		if v > max {
			max = v
		}
	}
	return max
}

// Deltas subtracts the baseline maximum from each post-install sample,
// clamping at zero. The result is the churn attributable to the install.
func Deltas(post Series, baselineMax int) Series {
	deltas := make(Series, len(post))
	for i, v := range post {
		d := v - baselineMax
		if d < 0 {
			d = 0
		}
		deltas[i] = d
	}
	return deltas
}

// PersistentNonzero reports whether the deltas contain a run of at least
// threshold consecutive strictly-positive values.
func PersistentNonzero(deltas Series, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	streak := 0
	for _, v := range deltas {
		if v > 0 {
			streak++
			if streak >= threshold {
				return true
			}
		} else {
			streak = 0
		}
	}
	return false
}

// Sampler collects fixed-interval sample windows from a prober.
type Sampler struct {
	// Prober supplies the process counts.
	Prober Prober

	// Interval is the spacing between samples. Zero means one second.
	Interval time.Duration

	log *logrus.Entry
}

// New creates a sampler with the standard one-second interval.
func New(p Prober) *Sampler {
	return &Sampler{
		Prober:   p,
		Interval: time.Second,
		log:      logrus.WithField("component", "sampler"),
	}
}

// Sample collects one value per interval for max(seconds, 1) samples. A probe
// failure is recorded as a zero sample and reported once via the returned
// flag; it never aborts the window. The window always runs to completion.
func (s *Sampler) Sample(seconds int) (Series, bool) {
	if seconds < 1 {
		seconds = 1
	}
	interval := s.Interval
	if interval == 0 {
		interval = time.Second
	}

	series := make(Series, 0, seconds)
	failed := false
	for i := 0; i < seconds; i++ {
		v, err := s.Prober.Count()
		if err != nil {
			if !failed && s.log != nil {
				s.log.WithError(err).Warn("probe failed; recording zero sample")
			}
			failed = true
			v = 0
		}
		series = append(series, v)
		time.Sleep(interval)
	}
	return series, failed
}
