// Package runner drives the arbitration loop. Candidates are processed
// strictly one at a time: the churn probe is host-global, so overlapping
// sampling windows would make churn attribution ambiguous. The runner is the
// only component that mutates the control store or the filesystem.
package runner

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/boshu2/skillgate/internal/arbiter"
	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
	"github.com/boshu2/skillgate/internal/resolve"
	"github.com/boshu2/skillgate/internal/sampler"
)

// Runner evaluates each configured candidate to completion before starting
// the next, then persists control-list changes after every candidate.
type Runner struct {
	cfg      *config.Run
	store    *controls.Store
	resolver *resolve.Resolver
	sampler  *sampler.Sampler
	log      *logrus.Entry
}

// New wires a runner from its collaborators.
func New(cfg *config.Run, store *controls.Store, resolver *resolve.Resolver, smp *sampler.Sampler) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		sampler:  smp,
		log:      logrus.WithField("component", "runner"),
	}
}

// Run arbitrates every candidate in order and returns the collected results.
// Per-candidate failures are isolated into their result rows; the returned
// error is non-nil only for run-fatal conditions (a lockdown safety violation
// or a control-store persist failure).
func (r *Runner) Run() ([]arbiter.Result, error) {
	results := make([]arbiter.Result, 0, len(r.cfg.Skills))

	for _, skill := range r.cfg.Skills {
		res, err := r.evaluate(skill)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if err := r.store.Persist(); err != nil {
			return results, fmt.Errorf("persist control lists: %w", err)
		}
	}

	return results, nil
}

// evaluate runs one candidate through the full state machine:
// pending → baseline-sampled → installed|install-failed → post-sampled →
// decided → persisted (persist happens in Run).
func (r *Runner) evaluate(skill string) (arbiter.Result, error) {
	log := r.log.WithField("skill", skill)

	if err := resolve.ValidateName(skill); err != nil {
		log.WithError(err).Warn("rejecting invalid skill name")
		return arbiter.Result{
			Skill:  skill,
			Action: arbiter.Deleted,
			Note:   arbiter.NoteInvalidName,
		}, nil
	}

	cand := r.resolver.Candidate(skill)
	membership := arbiter.Membership{
		Denied:    r.store.Contains(controls.Deny, skill),
		Allowed:   r.store.Contains(controls.Allow, skill),
		Protected: r.store.Contains(controls.Protected, skill),
	}
	log = log.WithFields(logrus.Fields{
		"kind":      cand.Kind,
		"denied":    membership.Denied,
		"allowed":   membership.Allowed,
		"protected": membership.Protected,
	})

	in := arbiter.Input{
		Skill:        skill,
		Kind:         cand.Kind,
		Threshold:    r.cfg.Threshold,
		MaxRG:        r.cfg.MaxRG,
		Membership:   membership,
		PromoteSafe:  r.cfg.PromoteSafe,
		Lockdown:     r.cfg.PersonalLockdown,
		RetestDenied: r.cfg.RetestDenied,
	}

	switch {
	case membership.Denied && !membership.Protected && !r.cfg.RetestDenied:
		// Denied on sight: no install, no sampling, delete any leftover.
		log.Info("denied skill, removing on sight")

	case membership.Allowed && !membership.Denied && !membership.Protected:
		// Pre-approved: install without any sampling. This is the one
		// path where the decision precedes sampling.
		log.Info("allowed skill, installing without arbitration")
		installed, installErr := r.install(cand)
		if fatal := r.lockdownViolation(installErr); fatal != nil {
			return arbiter.Result{}, fatal
		}
		in.Installed = installed
		in.InstallError = errText(installErr)

	default:
		// Full arbitration (also protected skills, for evidence).
		log.WithField("seconds", r.cfg.BaselineWindow).Debug("sampling baseline")
		baseline, baseFailed := r.sampler.Sample(r.cfg.BaselineWindow)
		in.Baseline = baseline

		installed, installErr := r.install(cand)
		if fatal := r.lockdownViolation(installErr); fatal != nil {
			return arbiter.Result{}, fatal
		}
		in.Installed = installed
		in.InstallError = errText(installErr)

		postFailed := false
		if installed {
			log.WithField("seconds", r.cfg.Window).Debug("sampling post-install window")
			in.Post, postFailed = r.sampler.Sample(r.cfg.Window)
		}
		in.ProbeFailed = baseFailed || postFailed
	}

	res := arbiter.Decide(in)
	log.WithFields(logrus.Fields{
		"action":             res.Action,
		"max_rg":             res.MaxRG,
		"persistent_nonzero": res.PersistentNonzero,
		"note":               res.Note,
	}).Info("decided")

	if err := r.apply(res); err != nil {
		return arbiter.Result{}, err
	}
	return res, nil
}

// install materializes the candidate and reports success. Install failures
// are logged and returned for the evidence note; they never abort the run
// outside lockdown.
func (r *Runner) install(cand resolve.Candidate) (bool, error) {
	if err := r.resolver.Install(cand); err != nil {
		r.log.WithField("skill", cand.Name).WithError(err).Warn("install failed")
		return false, err
	}
	return true, nil
}

// apply performs the filesystem and control-list mutations a decision calls
// for. The resolver and store already suppress mutation in dry-run mode.
func (r *Runner) apply(res arbiter.Result) error {
	if res.Action == arbiter.Deleted {
		if err := r.resolver.Remove(res.Skill); err != nil {
			return fmt.Errorf("remove %s: %w", res.Skill, err)
		}
	}
	if res.Deny {
		if err := r.store.Add(controls.Deny, res.Skill); err != nil {
			return err
		}
	}
	if res.Undeny {
		if err := r.store.Remove(controls.Deny, res.Skill); err != nil {
			return err
		}
	}
	if res.Promote {
		if err := r.store.Add(controls.Allow, res.Skill); err != nil {
			return err
		}
		if err := r.store.Add(controls.Protected, res.Skill); err != nil {
			return err
		}
	}
	return nil
}

// lockdownViolation promotes a symlinked local source to a run-fatal error
// under personal lockdown, where the safety guarantee would otherwise break.
func (r *Runner) lockdownViolation(installErr error) error {
	if installErr == nil || !r.cfg.PersonalLockdown {
		return nil
	}
	if errors.Is(installErr, resolve.ErrUnsafeSource) {
		return fmt.Errorf("personal lockdown: %w", installErr)
	}
	return nil
}

// errText renders an error for the evidence note, empty for nil.
func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
