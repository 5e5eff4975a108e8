// Package config provides configuration management for skillgate.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (SKILLGATE_*)
// 3. Project config (.skillgate/config.yaml in cwd)
// 4. Home config (~/.skillgate/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bounds for the max-rg ceiling. Any delta sample at or above the ceiling
// quarantines the skill, so the ceiling is kept deliberately tight.
const (
	MinMaxRG = 1
	MaxMaxRG = 3
)

// Default values used in resolution and validation.
const (
	defaultWindow         = 10
	defaultBaselineWindow = 3
	defaultThreshold      = 3
	defaultRepo           = "https://github.com/openai/skills.git"
	defaultBlacklist      = ".blacklist.local"
	defaultWhitelist      = ".whitelist.local"
	defaultImmutable      = ".immutable.local"
	defaultProbeName      = "rg"
)

// Run holds the full configuration for one arbitration run. It is constructed
// once at startup, validated, and threaded through every component; decision
// logic never reads the environment directly.
type Run struct {
	// Skills are the candidate names to arbitrate, in evaluation order.
	Skills []string `yaml:"-"`

	// Window is the post-install sampling duration in seconds.
	Window int `yaml:"window"`

	// BaselineWindow is the pre-install sampling duration in seconds.
	BaselineWindow int `yaml:"baseline_window"`

	// Threshold is the consecutive-nonzero-delta streak length that
	// triggers removal.
	Threshold int `yaml:"threshold"`

	// MaxRG is the delta sample ceiling; any sample at or above it
	// quarantines the skill. Valid range [MinMaxRG, MaxMaxRG].
	MaxRG int `yaml:"max_rg"`

	// SourceDir, when set, switches every candidate to local sourcing
	// from this directory.
	SourceDir string `yaml:"source_dir"`

	// Repo is the git repository containing curated skills.
	Repo string `yaml:"repo"`

	// Dest is the destination skills root containing installs and the
	// control-list files.
	Dest string `yaml:"dest"`

	// Blacklist, Whitelist, and Immutable are the control-list filenames
	// under Dest (deny, allow, and protected respectively).
	Blacklist string `yaml:"blacklist"`
	Whitelist string `yaml:"whitelist"`
	Immutable string `yaml:"immutable"`

	// ProbeName is the process name the churn probe counts.
	ProbeName string `yaml:"probe_name"`

	// PromoteSafe promotes passing curated skills to allow+protected
	// instead of applying the third-party default-deny.
	PromoteSafe bool `yaml:"promote_safe"`

	// PersonalLockdown restricts sourcing to SourceDir, forces promotion
	// of kept skills, and makes symlinked control surfaces fatal.
	PersonalLockdown bool `yaml:"personal_lockdown"`

	// RetestDenied sends already-denied skills through full arbitration
	// instead of removing them on sight.
	RetestDenied bool `yaml:"retest_denied"`

	// DryRun reports actions without mutating the filesystem.
	DryRun bool `yaml:"-"`

	// JSONOut is an optional path for the machine-readable run report.
	JSONOut string `yaml:"-"`
}

// Default returns the default configuration.
func Default() *Run {
	homeDir, _ := os.UserHomeDir()
	return &Run{
		Window:         defaultWindow,
		BaselineWindow: defaultBaselineWindow,
		Threshold:      defaultThreshold,
		MaxRG:          MaxMaxRG,
		Repo:           defaultRepo,
		Dest:           filepath.Join(homeDir, ".codex", "skills"),
		Blacklist:      defaultBlacklist,
		Whitelist:      defaultWhitelist,
		Immutable:      defaultImmutable,
		ProbeName:      defaultProbeName,
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Run) (*Run, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
		cfg.Skills = flagOverrides.Skills
		cfg.DryRun = flagOverrides.DryRun
		cfg.JSONOut = flagOverrides.JSONOut
	}

	return cfg, nil
}

// Validate rejects configurations that would make arbitration unsafe or
// meaningless. All violations are fatal before any candidate is processed.
func (r *Run) Validate() error {
	if r.MaxRG < MinMaxRG || r.MaxRG > MaxMaxRG {
		return fmt.Errorf("%w: --max-rg must be between %d and %d, got %d",
			ErrOutOfRange, MinMaxRG, MaxMaxRG, r.MaxRG)
	}
	if r.Window < 1 {
		return fmt.Errorf("%w: --window must be >= 1, got %d", ErrOutOfRange, r.Window)
	}
	if r.BaselineWindow < 1 {
		return fmt.Errorf("%w: --baseline-window must be >= 1, got %d", ErrOutOfRange, r.BaselineWindow)
	}
	if r.Threshold < 1 {
		return fmt.Errorf("%w: --threshold must be >= 1, got %d", ErrOutOfRange, r.Threshold)
	}
	for _, name := range []string{r.Blacklist, r.Whitelist, r.Immutable} {
		if err := validateListFilename(name); err != nil {
			return err
		}
	}
	if r.PersonalLockdown && strings.TrimSpace(r.SourceDir) == "" {
		return ErrLockdownNeedsSource
	}
	if len(r.Skills) == 0 {
		return ErrNoSkills
	}
	for i, skill := range r.Skills {
		trimmed := strings.TrimSpace(skill)
		if trimmed == "" {
			return ErrEmptySkillName
		}
		r.Skills[i] = trimmed
	}
	return nil
}

// Local reports whether candidates are sourced from a local directory.
func (r *Run) Local() bool {
	return strings.TrimSpace(r.SourceDir) != ""
}

// validateListFilename requires a bare, relative, single-segment filename so
// control lists always live directly under the destination root.
func validateListFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrUnsafeListFile, name)
	}
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrUnsafeListFile, name)
	}
	return nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".skillgate", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("SKILLGATE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".skillgate", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Run, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Run
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Run) *Run {
	if v := os.Getenv("SKILLGATE_DEST"); v != "" {
		cfg.Dest = v
	}
	if v := os.Getenv("SKILLGATE_REPO"); v != "" {
		cfg.Repo = v
	}
	if v := os.Getenv("SKILLGATE_SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}
	if v := os.Getenv("SKILLGATE_PROBE_NAME"); v != "" {
		cfg.ProbeName = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans use OR semantics: a true anywhere in the chain sticks.
func merge(dst, src *Run) *Run {
	mergeInt(&dst.Window, src.Window)
	mergeInt(&dst.BaselineWindow, src.BaselineWindow)
	mergeInt(&dst.Threshold, src.Threshold)
	mergeInt(&dst.MaxRG, src.MaxRG)
	mergeStr(&dst.SourceDir, src.SourceDir)
	mergeStr(&dst.Repo, src.Repo)
	mergeStr(&dst.Dest, src.Dest)
	mergeStr(&dst.Blacklist, src.Blacklist)
	mergeStr(&dst.Whitelist, src.Whitelist)
	mergeStr(&dst.Immutable, src.Immutable)
	mergeStr(&dst.ProbeName, src.ProbeName)
	if src.PromoteSafe {
		dst.PromoteSafe = true
	}
	if src.PersonalLockdown {
		dst.PersonalLockdown = true
	}
	if src.RetestDenied {
		dst.RetestDenied = true
	}
	return dst
}
