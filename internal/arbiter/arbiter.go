// Package arbiter holds the admission decision logic. Decide is a pure
// function of the control-list membership, the measured sample series, and
// the run thresholds; it performs no I/O, so dry and real runs decide
// identically and decisions are trivially testable.
package arbiter

import (
	"fmt"
	"strings"

	"github.com/boshu2/skillgate/internal/resolve"
	"github.com/boshu2/skillgate/internal/sampler"
)

// Action is the final disposition of a candidate.
type Action string

const (
	// Kept leaves the skill installed.
	Kept Action = "kept"

	// Deleted removes the skill from the destination root.
	Deleted Action = "deleted"
)

// Evidence notes. Free text for the report, never branched on; constants
// exist only to keep code and tests in sync.
const (
	NoteProtected   = "protected"
	NoteDenied      = "denied"
	NoteAllowed     = "allowed"
	NoteInvalidName = "invalid name"
	NoteDefaultDeny = "third-party default-deny"
	NoteProbeFailed = "probe failure, zero-filled"
)

// Membership is the candidate's control-list state at decision time.
type Membership struct {
	Denied    bool
	Allowed   bool
	Protected bool
}

// Input collects everything Decide needs. All fields are values; Decide
// never reaches outside them.
type Input struct {
	// Skill is the candidate name.
	Skill string

	// Kind is the candidate's source kind.
	Kind resolve.Kind

	// Installed reports whether the install succeeded.
	Installed bool

	// Baseline and Post are the two sample windows. Either may be empty
	// when sampling was skipped.
	Baseline sampler.Series
	Post     sampler.Series

	// Threshold is the consecutive-nonzero streak length that quarantines.
	Threshold int

	// MaxRG is the delta ceiling; clamped to [1,3] defensively even
	// though configuration already rejects out-of-range values.
	MaxRG int

	// Membership is the candidate's control-list state.
	Membership Membership

	// PromoteSafe promotes passing curated skills instead of default-deny.
	PromoteSafe bool

	// Lockdown forces promotion of every kept outcome.
	Lockdown bool

	// RetestDenied sends denied skills through measurement again.
	RetestDenied bool

	// ProbeFailed notes that at least one probe call failed during
	// sampling and was zero-filled.
	ProbeFailed bool

	// InstallError carries the install failure reason for the evidence
	// note. Only consulted when Installed is false.
	InstallError string
}

// Result is one skill's arbitration outcome. Immutable once produced.
type Result struct {
	// Skill is the candidate name.
	Skill string `json:"skill"`

	// Installed reports whether the skill was materialized on disk.
	Installed bool `json:"installed"`

	// Samples is the post-install window, kept for evidence.
	Samples sampler.Series `json:"samples"`

	// MaxRG is the largest baseline-adjusted delta observed.
	MaxRG int `json:"max_rg"`

	// PersistentNonzero reports a threshold-length streak of positive deltas.
	PersistentNonzero bool `json:"persistent_nonzero"`

	// Action is the final disposition.
	Action Action `json:"action"`

	// Note is a free-text evidence annotation.
	Note string `json:"note"`

	// Promote asks the orchestrator to add the skill to allow+protected.
	Promote bool `json:"-"`

	// Deny asks the orchestrator to add the skill to the deny list.
	Deny bool `json:"-"`

	// Undeny asks the orchestrator to drop the skill from the deny list
	// (a retested skill that now passes).
	Undeny bool `json:"-"`
}

// Decide maps one candidate's measured state to its disposition. Check order
// is fixed and first-match-wins: protected, denied, allowed, then measured
// arbitration with the curated default-deny and lockdown promotion overlays.
func Decide(in Input) Result {
	limit := clampMaxRG(in.MaxRG)
	deltas := sampler.Deltas(in.Post, in.Baseline.Max())
	maxDelta := deltas.Max()
	persistent := sampler.PersistentNonzero(deltas, in.Threshold)

	res := Result{
		Skill:             in.Skill,
		Installed:         in.Installed,
		Samples:           in.Post,
		MaxRG:             maxDelta,
		PersistentNonzero: persistent,
	}

	switch {
	case in.Membership.Protected:
		// Protected wins over everything, including deny membership.
		// Measurements are informational only.
		res.Action = Kept
		res.Note = joinNotes(NoteProtected, probeNote(in))
		return res

	case in.Membership.Denied && !in.RetestDenied:
		res.Action = Deleted
		res.Note = NoteDenied
		return res

	case in.Membership.Allowed:
		res.Action = Kept
		res.Note = NoteAllowed
		return res
	}

	if !in.Installed {
		res.Action = Deleted
		res.Note = joinNotes("install failed", in.InstallError, probeNote(in))
		return res
	}

	if trigger := removalTrigger(maxDelta, limit, persistent); trigger != "" {
		res.Action = Deleted
		res.Deny = true
		res.Note = joinNotes(trigger, probeNote(in))
		return res
	}

	res.Action = Kept
	res.Note = probeNote(in)

	// Externally sourced skills are denied by default; an explicit
	// promotion flag is the only way a curated skill stays installed.
	if in.Kind == resolve.Curated {
		if in.PromoteSafe {
			res.Promote = true
		} else {
			res.Action = Deleted
			res.Note = joinNotes(NoteDefaultDeny, probeNote(in))
			return res
		}
	}

	// Lockdown implies local-only sourcing; every kept skill is promoted.
	if in.Lockdown {
		res.Promote = true
	}

	// A retested denied skill that ends up kept comes off the deny list.
	if in.Membership.Denied && in.RetestDenied {
		res.Undeny = true
		res.Note = joinNotes("passed retest", res.Note)
	}

	return res
}

// removalTrigger names the condition that quarantines the skill, or returns
// empty when the skill passes.
func removalTrigger(maxDelta, limit int, persistent bool) string {
	switch {
	case maxDelta >= limit && persistent:
		return fmt.Sprintf("max delta %d >= %d and persistent nonzero churn", maxDelta, limit)
	case maxDelta >= limit:
		return fmt.Sprintf("max delta %d >= %d", maxDelta, limit)
	case persistent:
		return "persistent nonzero churn"
	}
	return ""
}

// clampMaxRG bounds the ceiling to [1,3].
func clampMaxRG(v int) int {
	if v < 1 {
		return 1
	}
	if v > 3 {
		return 3
	}
	return v
}

// probeNote returns the probe-failure annotation when relevant.
func probeNote(in Input) string {
	if in.ProbeFailed {
		return NoteProbeFailed
	}
	return ""
}

// joinNotes concatenates non-empty note fragments.
func joinNotes(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
