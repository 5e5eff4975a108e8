package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/skillgate/internal/arbiter"
	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
	"github.com/boshu2/skillgate/internal/resolve"
	"github.com/boshu2/skillgate/internal/sampler"
)

// queueProber replays a fixed queue of counts, returning 0 when exhausted.
type queueProber struct {
	values []int
	calls  int
}

func (p *queueProber) Count() (int, error) {
	i := p.calls
	p.calls++
	if i >= len(p.values) {
		return 0, nil
	}
	return p.values[i], nil
}

// fixture is one wired-up runner over temp directories.
type fixture struct {
	cfg    *config.Run
	store  *controls.Store
	runner *Runner
	prober *queueProber
	dest   string
	source string
}

// newFixture builds a local-sourced run over temp dirs with short windows:
// baseline window 1, post window 4, threshold 3, max-rg 3.
func newFixture(t *testing.T, skills []string, probe []int, mutate func(cfg *config.Run)) *fixture {
	t.Helper()

	dest := t.TempDir()
	source := t.TempDir()

	cfg := config.Default()
	cfg.Skills = skills
	cfg.Dest = dest
	cfg.SourceDir = source
	cfg.BaselineWindow = 1
	cfg.Window = 4
	cfg.Threshold = 3
	cfg.MaxRG = 3
	if mutate != nil {
		mutate(cfg)
	}

	store, err := controls.Load(dest, controls.Filenames{
		Deny:      cfg.Blacklist,
		Allow:     cfg.Whitelist,
		Protected: cfg.Immutable,
	}, cfg.DryRun)
	require.NoError(t, err)

	prober := &queueProber{values: probe}
	smp := &sampler.Sampler{Prober: prober, Interval: 1}
	resolver := resolve.New(cfg.Dest, cfg.SourceDir, cfg.Repo, cfg.DryRun)

	return &fixture{
		cfg:    cfg,
		store:  store,
		runner: New(cfg, store, resolver, smp),
		prober: prober,
		dest:   dest,
		source: source,
	}
}

// addSource creates a skill directory under the local source root.
func (f *fixture) addSource(t *testing.T, name string) {
	t.Helper()
	dir := filepath.Join(f.source, name)
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# "+name+"\n"), 0600))
}

func (f *fixture) installed(name string) bool {
	fi, err := os.Stat(filepath.Join(f.dest, name))
	return err == nil && fi.IsDir()
}

func (f *fixture) denyFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dest, f.cfg.Blacklist))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestRun_QuietSkillKept(t *testing.T) {
	// Baseline [0], post [0,0,0,0].
	f := newFixture(t, []string{"alpha"}, []int{0, 0, 0, 0, 0}, nil)
	f.addSource(t, "alpha")

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Kept, results[0].Action)
	assert.True(t, results[0].Installed)
	assert.Equal(t, 0, results[0].MaxRG)
	assert.True(t, f.installed("alpha"))
	assert.Empty(t, f.denyFile(t))
}

func TestRun_ChurnySkillDeletedAndDenied(t *testing.T) {
	// Baseline [0], post [1,2,1,0]: run of three positives trips threshold.
	f := newFixture(t, []string{"beta"}, []int{0, 1, 2, 1, 0}, nil)
	f.addSource(t, "beta")

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.Equal(t, 2, results[0].MaxRG)
	assert.True(t, results[0].PersistentNonzero)
	assert.False(t, f.installed("beta"))
	assert.Equal(t, "beta\n", f.denyFile(t))
}

func TestRun_DeniedRemovedOnSight(t *testing.T) {
	f := newFixture(t, []string{"noisy"}, nil, nil)
	f.addSource(t, "noisy")
	// Pre-existing install and deny entry.
	require.NoError(t, os.MkdirAll(filepath.Join(f.dest, "noisy"), 0700))
	require.NoError(t, f.store.Add(controls.Deny, "noisy"))
	require.NoError(t, f.store.Persist())

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.Equal(t, arbiter.NoteDenied, results[0].Note)
	assert.False(t, results[0].Installed)
	assert.False(t, f.installed("noisy"))
	assert.Zero(t, f.prober.calls, "denied skills must not be sampled")
}

func TestRun_AllowedInstallsWithoutSampling(t *testing.T) {
	f := newFixture(t, []string{"trusted"}, nil, nil)
	f.addSource(t, "trusted")
	require.NoError(t, f.store.Add(controls.Allow, "trusted"))

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Kept, results[0].Action)
	assert.Equal(t, arbiter.NoteAllowed, results[0].Note)
	assert.True(t, results[0].Installed)
	assert.True(t, f.installed("trusted"))
	assert.Zero(t, f.prober.calls, "allowed skills must not be sampled")
}

func TestRun_ProtectedKeptDespiteChurn(t *testing.T) {
	f := newFixture(t, []string{"keeper"}, []int{0, 9, 9, 9, 9}, nil)
	f.addSource(t, "keeper")
	require.NoError(t, f.store.Add(controls.Protected, "keeper"))

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Kept, results[0].Action)
	assert.Equal(t, arbiter.NoteProtected, results[0].Note)
	assert.Equal(t, 9, results[0].MaxRG, "evidence still reports churn")
	assert.True(t, f.installed("keeper"))
	assert.Empty(t, f.denyFile(t))
}

func TestRun_InvalidNameIsolated(t *testing.T) {
	f := newFixture(t, []string{"../escape", "alpha"}, []int{0, 0, 0, 0, 0}, nil)
	f.addSource(t, "alpha")

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.Equal(t, arbiter.NoteInvalidName, results[0].Note)
	assert.False(t, results[0].Installed)

	// The bad candidate does not block the good one.
	assert.Equal(t, arbiter.Kept, results[1].Action)
	assert.True(t, f.installed("alpha"))
}

func TestRun_InstallFailureIsolated(t *testing.T) {
	f := newFixture(t, []string{"ghost", "alpha"}, []int{0, 0, 0, 0, 0, 0}, nil)
	f.addSource(t, "alpha")
	// No source for ghost.

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.False(t, results[0].Installed)
	assert.Contains(t, results[0].Note, "install failed")
	assert.Empty(t, f.denyFile(t), "install failure is not a churn denial")

	assert.Equal(t, arbiter.Kept, results[1].Action)
}

func TestRun_DryRunLeavesDestUntouched(t *testing.T) {
	// P7: same decisions, zero mutation.
	f := newFixture(t, []string{"beta"}, []int{0, 1, 2, 1, 0}, func(cfg *config.Run) {
		cfg.DryRun = true
	})
	f.addSource(t, "beta")

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.True(t, results[0].PersistentNonzero)

	// Nothing was installed, deleted, or written.
	assert.False(t, f.installed("beta"))
	assert.Empty(t, f.denyFile(t))
	entries, err := os.ReadDir(f.dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "dest must be byte-identical after a dry run")
}

func TestRun_LockdownPromotesKept(t *testing.T) {
	f := newFixture(t, []string{"alpha"}, []int{0, 0, 0, 0, 0}, func(cfg *config.Run) {
		cfg.PersonalLockdown = true
	})
	f.addSource(t, "alpha")

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Kept, results[0].Action)
	assert.True(t, f.store.Contains(controls.Allow, "alpha"))
	assert.True(t, f.store.Contains(controls.Protected, "alpha"))

	allow, err := os.ReadFile(filepath.Join(f.dest, f.cfg.Whitelist))
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(allow))
}

func TestRun_LockdownSymlinkedSourceFatal(t *testing.T) {
	f := newFixture(t, []string{"alpha"}, []int{0}, func(cfg *config.Run) {
		cfg.PersonalLockdown = true
	})
	real := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(real, "payload"), 0700))
	if err := os.Symlink(filepath.Join(real, "payload"), filepath.Join(f.source, "alpha")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := f.runner.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, resolve.ErrUnsafeSource)
}

func TestRun_SymlinkedSourceNonFatalOutsideLockdown(t *testing.T) {
	f := newFixture(t, []string{"alpha"}, []int{0}, nil)
	real := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(real, "payload"), 0700))
	if err := os.Symlink(filepath.Join(real, "payload"), filepath.Join(f.source, "alpha")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, arbiter.Deleted, results[0].Action)
	assert.Contains(t, results[0].Note, "install failed")
}

func TestRun_RetestDeniedPassClearsDenial(t *testing.T) {
	f := newFixture(t, []string{"reformed"}, []int{0, 0, 0, 0, 0}, func(cfg *config.Run) {
		cfg.RetestDenied = true
	})
	f.addSource(t, "reformed")
	require.NoError(t, f.store.Add(controls.Deny, "reformed"))
	require.NoError(t, f.store.Persist())

	results, err := f.runner.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, arbiter.Kept, results[0].Action)
	assert.False(t, f.store.Contains(controls.Deny, "reformed"))
	assert.Equal(t, "", f.denyFile(t))
	assert.True(t, f.installed("reformed"))
}

func TestRun_Idempotent(t *testing.T) {
	// P1: two identical runs over unchanged state produce identical rows.
	f := newFixture(t, []string{"alpha"}, []int{0, 0, 0, 0, 0}, nil)
	f.addSource(t, "alpha")

	first, err := f.runner.Run()
	require.NoError(t, err)
	second, err := f.runner.Run()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, f.installed("alpha"))
	assert.Empty(t, f.denyFile(t))
}
