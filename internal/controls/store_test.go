package controls

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// names returns the default filenames used throughout these tests.
func names() Filenames {
	return Filenames{
		Deny:      ".blacklist.local",
		Allow:     ".whitelist.local",
		Protected: ".immutable.local",
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Deny) != 0 || len(snap.Allow) != 0 || len(snap.Protected) != 0 {
		t.Errorf("Snapshot of empty store = %+v, want all empty", snap)
	}
}

func TestLoad_ReadsExistingLists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".blacklist.local"), "noisy\n\nloud\n")
	writeFile(t, filepath.Join(dir, ".immutable.local"), "keeper\n")

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if !s.Contains(Deny, "noisy") || !s.Contains(Deny, "loud") {
		t.Error("deny list should contain noisy and loud")
	}
	if !s.Contains(Protected, "keeper") {
		t.Error("protected list should contain keeper")
	}
	if s.Contains(Allow, "keeper") {
		t.Error("allow list should not contain keeper")
	}
}

func TestLoad_RejectsMultiSegmentFilename(t *testing.T) {
	dir := t.TempDir()
	n := names()
	n.Deny = "sub/escape"

	if _, err := Load(dir, n, false); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("Load() = %v, want ErrUnsafePath", err)
	}
}

func TestLoad_RejectsAbsoluteFilename(t *testing.T) {
	dir := t.TempDir()
	n := names()
	n.Allow = filepath.Join(dir, "abs")

	if _, err := Load(dir, n, false); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("Load() = %v, want ErrUnsafePath", err)
	}
}

func TestLoad_RejectsSymlinkedListFile(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "real-blacklist")
	writeFile(t, target, "noisy\n")
	if err := os.Symlink(target, filepath.Join(dir, ".blacklist.local")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := Load(dir, names(), false); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("Load() = %v, want ErrUnsafePath", err)
	}
}

func TestAddPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := s.Add(Deny, "noisy"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := s.Add(Deny, "noisy"); err != nil {
		t.Fatalf("second Add() = %v", err)
	}
	if err := s.Add(Deny, "also-noisy"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".blacklist.local"))
	if err != nil {
		t.Fatal(err)
	}
	want := "also-noisy\nnoisy\n"
	if string(data) != want {
		t.Errorf("persisted deny list = %q, want %q", string(data), want)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".blacklist.local"), "noisy\nquiet\n")

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := s.Remove(Deny, "noisy"); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if err := s.Remove(Deny, "absent"); err != nil {
		t.Fatalf("Remove absent = %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".blacklist.local"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "quiet\n" {
		t.Errorf("persisted deny list = %q, want %q", string(data), "quiet\n")
	}
}

func TestPersist_DryRunIsNoOp(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, names(), true)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := s.Add(Deny, "noisy"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".blacklist.local")); !os.IsNotExist(err) {
		t.Error("dry-run Persist should not create the deny list file")
	}

	// In-memory state still reflects the decision for reporting.
	if !s.Contains(Deny, "noisy") {
		t.Error("dry-run store should still track added names in memory")
	}
}

func TestPersist_OnlyWritesDirtyLists(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := s.Add(Allow, "good"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".whitelist.local")); err != nil {
		t.Errorf("allow list should exist after persist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".blacklist.local")); !os.IsNotExist(err) {
		t.Error("untouched deny list should not be created")
	}
}

func TestAdd_UnknownList(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := s.Add(List("bogus"), "x"); !errors.Is(err, ErrUnknownList) {
		t.Errorf("Add(bogus) = %v, want ErrUnknownList", err)
	}
}

func TestSnapshot_Sorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".blacklist.local"), "zeta\nalpha\nmid\n")

	s, err := Load(dir, names(), false)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	snap := s.Snapshot()
	want := []string{"alpha", "mid", "zeta"}
	if len(snap.Deny) != len(want) {
		t.Fatalf("Snapshot deny = %v, want %v", snap.Deny, want)
	}
	for i := range want {
		if snap.Deny[i] != want[i] {
			t.Errorf("Snapshot deny[%d] = %q, want %q", i, snap.Deny[i], want[i])
		}
	}
}
