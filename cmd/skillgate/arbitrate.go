package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
	"github.com/boshu2/skillgate/internal/report"
	"github.com/boshu2/skillgate/internal/resolve"
	"github.com/boshu2/skillgate/internal/runner"
	"github.com/boshu2/skillgate/internal/sampler"
)

// arbitrateFlags holds the raw flag values; only flags the user actually set
// override the layered configuration.
type arbitrateFlags struct {
	window         int
	baselineWindow int
	threshold      int
	maxRG          int
	sourceDir      string
	repo           string
	dest           string
	blacklist      string
	whitelist      string
	immutable      string
	probeName      string
	promoteSafe    bool
	lockdown       bool
	retestDenied   bool
	jsonOut        string
}

var arbFlags arbitrateFlags

var arbitrateCmd = &cobra.Command{
	Use:   "arbitrate SKILL...",
	Short: "Install skills one-by-one and quarantine noisy entries",
	Long: `Arbitrate installs each named skill, samples the host process-count signal
before and after the install, and keeps or deletes the skill based on the
measured churn and the control lists.

Evidence is written to stdout as CSV, one row per skill. Candidates are
evaluated strictly one at a time so churn attribution stays unambiguous.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArbitrate,
}

func init() {
	f := arbitrateCmd.Flags()
	f.IntVar(&arbFlags.window, "window", 10, "Post-install sampling window in seconds")
	f.IntVar(&arbFlags.baselineWindow, "baseline-window", 3, "Pre-install sampling window in seconds")
	f.IntVar(&arbFlags.threshold, "threshold", 3, "Consecutive non-zero delta streak that quarantines")
	f.IntVar(&arbFlags.maxRG, "max-rg", 3, "Delta sample ceiling, must be 1-3")
	f.StringVar(&arbFlags.sourceDir, "source-dir", "", "Local source root; switches all skills to local sourcing")
	f.StringVar(&arbFlags.repo, "repo", "", "Git repository containing curated skills")
	f.StringVar(&arbFlags.dest, "dest", "", "Destination skills home (default ~/.codex/skills)")
	f.StringVar(&arbFlags.blacklist, "blacklist", "", "Deny list filename under --dest")
	f.StringVar(&arbFlags.whitelist, "whitelist", "", "Allow list filename under --dest")
	f.StringVar(&arbFlags.immutable, "immutable", "", "Protected list filename under --dest")
	f.StringVar(&arbFlags.probeName, "probe-name", "", "Process name the churn probe counts (default rg)")
	f.BoolVar(&arbFlags.promoteSafe, "promote-safe", false, "Promote passing curated skills to allow+protected")
	f.BoolVar(&arbFlags.lockdown, "personal-lockdown", false, "Local-only mode: forced promotion, symlink surfaces fatal")
	f.BoolVar(&arbFlags.retestDenied, "retest-denied", false, "Re-arbitrate skills already on the deny list")
	f.StringVar(&arbFlags.jsonOut, "json-out", "", "Optional path for the machine-readable run report")

	rootCmd.AddCommand(arbitrateCmd)
}

func runArbitrate(cmd *cobra.Command, args []string) error {
	overrides, err := flagOverrides(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}

	store, err := controls.Load(cfg.Dest, controls.Filenames{
		Deny:      cfg.Blacklist,
		Allow:     cfg.Whitelist,
		Protected: cfg.Immutable,
	}, cfg.DryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}

	resolver := resolve.New(cfg.Dest, cfg.SourceDir, cfg.Repo, cfg.DryRun)
	defer resolver.Close()

	smp := sampler.New(sampler.ExecProber{Name: cfg.ProbeName})

	started := time.Now().UTC()
	results, runErr := runner.New(cfg, store, resolver, smp).Run()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return runErr
	}

	if err := report.WriteCSV(os.Stdout, results); err != nil {
		return err
	}

	if cfg.JSONOut != "" {
		rep := report.New(cfg, started)
		rep.Finish(results, store.Snapshot(), time.Now().UTC())
		if err := rep.WriteJSON(cfg.JSONOut); err != nil {
			return err
		}
		VerbosePrintf("run report written to %s\n", cfg.JSONOut)
	}

	return nil
}

// flagOverrides builds the flag layer of the configuration from flags the
// user explicitly set, so config-file values survive unset flags.
func flagOverrides(cmd *cobra.Command, args []string) (*config.Run, error) {
	overrides := &config.Run{
		Skills:  args,
		DryRun:  dryRun,
		JSONOut: arbFlags.jsonOut,
	}

	set := cmd.Flags().Changed

	// Zero values would be swallowed by the config merge; reject them here.
	for flag, v := range map[string]int{
		"window":          arbFlags.window,
		"baseline-window": arbFlags.baselineWindow,
		"threshold":       arbFlags.threshold,
		"max-rg":          arbFlags.maxRG,
	} {
		if set(flag) && v == 0 {
			return nil, fmt.Errorf("%w: --%s must be >= 1, got 0", config.ErrOutOfRange, flag)
		}
	}
	if set("window") {
		overrides.Window = arbFlags.window
	}
	if set("baseline-window") {
		overrides.BaselineWindow = arbFlags.baselineWindow
	}
	if set("threshold") {
		overrides.Threshold = arbFlags.threshold
	}
	if set("max-rg") {
		overrides.MaxRG = arbFlags.maxRG
	}
	if set("source-dir") {
		overrides.SourceDir = arbFlags.sourceDir
	}
	if set("repo") {
		overrides.Repo = arbFlags.repo
	}
	if set("dest") {
		overrides.Dest = arbFlags.dest
	}
	if set("blacklist") {
		overrides.Blacklist = arbFlags.blacklist
	}
	if set("whitelist") {
		overrides.Whitelist = arbFlags.whitelist
	}
	if set("immutable") {
		overrides.Immutable = arbFlags.immutable
	}
	if set("probe-name") {
		overrides.ProbeName = arbFlags.probeName
	}
	overrides.PromoteSafe = arbFlags.promoteSafe
	overrides.PersonalLockdown = arbFlags.lockdown
	overrides.RetestDenied = arbFlags.retestDenied

	return overrides, nil
}
