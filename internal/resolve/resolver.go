// Package resolve materializes skill candidates on disk. A candidate is
// either sourced from a local directory or from the shared curated skills
// repository, and is always installed as destRoot/<name>.
package resolve

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// Kind says where a candidate's files come from.
type Kind string

const (
	// Local candidates are copied from a directory on this host.
	Local Kind = "local"

	// Curated candidates come from the shared curated skills repository.
	Curated Kind = "curated"
)

// curatedSubdir is the path of the curated skill tree inside the repo.
var curatedSubdir = filepath.Join("skills", ".curated")

// skillNameRE enforces conservative skill names to block path traversal
// input: no separators, no leading dot, at most 64 characters.
var skillNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateName rejects names that could escape the destination root.
func ValidateName(name string) error {
	if !skillNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Candidate is one named skill under evaluation.
type Candidate struct {
	// Name is the skill identifier, already validated by ValidateName.
	Name string

	// Kind says whether the skill is locally or curated sourced.
	Kind Kind

	// InstallPath is destRoot/Name.
	InstallPath string
}

// Resolver installs candidates into the destination root.
type Resolver struct {
	// DestRoot is the skills home that installs land in.
	DestRoot string

	// SourceDir, when set, is the local source root; every candidate is
	// then Local. Otherwise candidates are Curated and fetched from Repo.
	SourceDir string

	// Repo is the git URL of the curated skills repository.
	Repo string

	// DryRun suppresses all filesystem mutation; source validation still
	// runs so dry and real runs fail the same way.
	DryRun bool

	// repoRoot caches the curated clone for the lifetime of the run.
	repoRoot string
}

// New creates a resolver for one run.
func New(destRoot, sourceDir, repo string, dryRun bool) *Resolver {
	return &Resolver{
		DestRoot:  destRoot,
		SourceDir: sourceDir,
		Repo:      repo,
		DryRun:    dryRun,
	}
}

// Candidate builds the candidate record for a name. The name is not
// validated here; callers check ValidateName first and record the failure.
func (r *Resolver) Candidate(name string) Candidate {
	kind := Curated
	if r.SourceDir != "" {
		kind = Local
	}
	return Candidate{
		Name:        name,
		Kind:        kind,
		InstallPath: filepath.Join(r.DestRoot, name),
	}
}

// Install copies the candidate's source tree into its install path,
// replacing any existing install. It fails closed: a missing source, a
// non-directory source, or a symlinked local source installs nothing.
func (r *Resolver) Install(c Candidate) error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}

	var src string
	switch c.Kind {
	case Local:
		src = filepath.Join(r.SourceDir, c.Name)
		fi, err := os.Lstat(src)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrUnsafeSource, src)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, src)
		}
	case Curated:
		repoRoot, err := r.cloneOnce()
		if err != nil {
			return err
		}
		src = filepath.Join(repoRoot, curatedSubdir, c.Name)
		fi, err := os.Stat(src)
		if err != nil || !fi.IsDir() {
			return fmt.Errorf("%w: curated skill %s", ErrSourceNotFound, c.Name)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}

	if r.DryRun {
		return nil
	}

	if err := os.RemoveAll(c.InstallPath); err != nil {
		return fmt.Errorf("clear existing install: %w", err)
	}
	if err := copyTree(src, c.InstallPath); err != nil {
		// A partial copy is worse than no install.
		_ = os.RemoveAll(c.InstallPath) //nolint:errcheck // cleanup in error path
		return fmt.Errorf("install %s: %w", c.Name, err)
	}
	return nil
}

// Remove deletes an installed skill. Removing an absent skill is a no-op.
func (r *Resolver) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if r.DryRun {
		return nil
	}
	return os.RemoveAll(filepath.Join(r.DestRoot, name))
}

// Installed reports whether the skill currently exists under the dest root.
func (r *Resolver) Installed(name string) bool {
	fi, err := os.Stat(filepath.Join(r.DestRoot, name))
	return err == nil && fi.IsDir()
}

// Close removes the temporary curated clone, if one was made.
func (r *Resolver) Close() {
	if r.repoRoot != "" {
		_ = os.RemoveAll(filepath.Dir(r.repoRoot)) //nolint:errcheck // best-effort temp cleanup
		r.repoRoot = ""
	}
}

// cloneOnce performs one shallow clone of the curated repo per run.
func (r *Resolver) cloneOnce() (string, error) {
	if r.repoRoot != "" {
		return r.repoRoot, nil
	}

	tmpDir, err := os.MkdirTemp("", "skillgate-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCloneFailed, err)
	}
	repoRoot := filepath.Join(tmpDir, "repo")

	cmd := exec.Command("git", "clone", "--depth", "1", r.Repo, repoRoot)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(tmpDir) //nolint:errcheck // cleanup in error path
		return "", fmt.Errorf("%w: %v: %s", ErrCloneFailed, err, out)
	}

	r.repoRoot = repoRoot
	return repoRoot, nil
}

// copyTree copies a directory tree. Symlinks inside the tree are skipped
// rather than followed, so a skill cannot smuggle links to files outside
// its own directory.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			return nil
		case d.IsDir():
			return os.MkdirAll(target, 0700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

// copyFile copies one regular file, preserving its permission bits.
func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
