// Package controls persists the three control lists that govern skill
// arbitration: deny (permanently rejected), allow (pre-approved), and
// protected (never removed). Each list is a plain file under the destination
// root, one skill name per line.
package controls

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List identifies one of the three control lists.
type List string

const (
	// Deny holds permanently rejected skills; installs found on disk are
	// deleted on sight.
	Deny List = "deny"

	// Allow holds pre-approved skills that skip arbitration.
	Allow List = "allow"

	// Protected holds skills that are never removed or denied regardless
	// of measured churn. Protected membership overrides Deny.
	Protected List = "protected"
)

// Filenames maps each list to its filename under the destination root.
type Filenames struct {
	Deny      string
	Allow     string
	Protected string
}

// Snapshot is a sorted, read-only copy of all three lists.
type Snapshot struct {
	Deny      []string `json:"deny"`
	Allow     []string `json:"allow"`
	Protected []string `json:"protected"`
}

// Store is the file-backed control store. It is loaded once per run and
// mutated only by the orchestrator after each candidate's full evaluation.
type Store struct {
	destRoot string
	paths    map[List]string
	sets     map[List]map[string]struct{}
	dirty    map[List]bool
	dryRun   bool
}

// Load reads the three control lists from destRoot. A missing file is an
// empty list. Every configured filename is checked for path safety before any
// read: names with separators, names resolving outside destRoot, and symlinked
// list files are all rejected with ErrUnsafePath.
func Load(destRoot string, names Filenames, dryRun bool) (*Store, error) {
	s := &Store{
		destRoot: destRoot,
		paths:    make(map[List]string, 3),
		sets:     make(map[List]map[string]struct{}, 3),
		dirty:    make(map[List]bool, 3),
		dryRun:   dryRun,
	}

	for list, name := range map[List]string{Deny: names.Deny, Allow: names.Allow, Protected: names.Protected} {
		path, err := safeListPath(destRoot, name)
		if err != nil {
			return nil, fmt.Errorf("%s list %q: %w", list, name, err)
		}
		set, err := readList(path)
		if err != nil {
			return nil, fmt.Errorf("read %s list: %w", list, err)
		}
		s.paths[list] = path
		s.sets[list] = set
	}

	return s, nil
}

// Contains reports whether name is on the given list.
func (s *Store) Contains(list List, name string) bool {
	set, ok := s.sets[list]
	if !ok {
		return false
	}
	_, found := set[name]
	return found
}

// Add puts name on the given list. Adding an existing name is a no-op, so
// repeated runs never produce duplicate lines.
func (s *Store) Add(list List, name string) error {
	set, ok := s.sets[list]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, list)
	}
	if _, found := set[name]; found {
		return nil
	}
	set[name] = struct{}{}
	s.dirty[list] = true
	return nil
}

// Remove takes name off the given list. Removing an absent name is a no-op.
func (s *Store) Remove(list List, name string) error {
	set, ok := s.sets[list]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, list)
	}
	if _, found := set[name]; !found {
		return nil
	}
	delete(set, name)
	s.dirty[list] = true
	return nil
}

// Snapshot returns sorted copies of all three lists for reporting.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Deny:      s.sorted(Deny),
		Allow:     s.sorted(Allow),
		Protected: s.sorted(Protected),
	}
}

// Persist writes every modified list back to disk with an atomic
// temp-and-rename replace. In dry-run mode Persist is a no-op so that dry and
// real runs read identical state and reach identical decisions.
func (s *Store) Persist() error {
	if s.dryRun {
		return nil
	}
	for list, path := range s.paths {
		if !s.dirty[list] {
			continue
		}
		if err := s.writeList(path, s.sorted(list)); err != nil {
			return fmt.Errorf("persist %s list: %w", list, err)
		}
		s.dirty[list] = false
	}
	return nil
}

// sorted returns the list contents in lexical order.
func (s *Store) sorted(list List) []string {
	set := s.sets[list]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeList writes names one per line to a temp file in the same directory,
// then renames it over the target. Rename in the same directory is atomic on
// POSIX filesystems, so a crash never leaves a half-written list.
func (s *Store) writeList(path string, names []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if _, err := tmpFile.WriteString(b.String()); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// readList loads names from a list file, one per line, skipping blanks.
func readList(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			set[name] = struct{}{}
		}
	}
	return set, nil
}

// safeListPath resolves a list filename under destRoot and rejects anything
// that could redirect reads or writes: multi-segment names, absolute names,
// symlinked list files, and parents that resolve outside the destination root.
func safeListPath(destRoot, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrUnsafePath
	}
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return "", ErrUnsafePath
	}

	path := filepath.Join(destRoot, name)

	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return "", ErrUnsafePath
	}

	rootReal, err := filepath.EvalSymlinks(destRoot)
	if os.IsNotExist(err) {
		// Destination does not exist yet; nothing can have been redirected.
		return path, nil
	}
	if err != nil {
		return "", err
	}
	parentReal, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	if parentReal != rootReal {
		return "", ErrUnsafePath
	}

	return path, nil
}
