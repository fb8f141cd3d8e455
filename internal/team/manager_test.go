package team

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, root string, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	m, err := NewManager(statefs.NewLayout(root), "alpha", opts...)
	require.NoError(t, err)
	return m
}

func initTeam(t *testing.T, m *Manager, workers ...string) Config {
	t.Helper()
	cfg := Config{Leader: "lead"}
	for _, w := range workers {
		cfg.Workers = append(cfg.Workers, Worker{Name: w, Role: "impl"})
	}
	out, err := m.Init(cfg)
	require.NoError(t, err)
	return out
}

func TestNewManagerRejectsBadTeam(t *testing.T) {
	_, err := NewManager(statefs.NewLayout(t.TempDir()), "../etc")
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput)
}

func TestInitAndReadConfig(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, root)
	assert.False(t, m.Exists())

	cfg := initTeam(t, m, "w1", "w2")
	assert.True(t, m.Exists())
	assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, 1, cfg.Revision)
	assert.Equal(t, "alpha", cfg.Name)
	assert.Equal(t, DefaultPolicy(), cfg.Policy)
	require.Len(t, cfg.Workers, 2)
	assert.Equal(t, 0, cfg.Workers[0].Index)
	assert.Equal(t, 1, cfg.Workers[1].Index)

	layout := statefs.NewLayout(root)
	for _, dir := range []string{layout.TasksDir("alpha"), layout.WorkersDir("alpha"), layout.DispatchDir("alpha")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	st, err := m.ReadPhase()
	require.NoError(t, err)
	assert.Equal(t, phase.PhaseExec, st.CurrentPhase)
	assert.Equal(t, DefaultMaxFixAttempts, st.MaxFixAttempts)

	got, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.Workers, got.Workers)
	assert.Equal(t, "lead", got.Leader)
}

func TestInitErrors(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	initTeam(t, m, "w1")

	_, err := m.Init(Config{})
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput, "second init")

	other := newTestManager(t, t.TempDir())
	_, err = other.Init(Config{Name: "beta"})
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput, "name mismatch")

	_, err = other.Init(Config{Workers: []Worker{{Name: "w1"}, {Name: "w1"}}})
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput, "duplicate worker")
	assert.False(t, other.Exists())
}

func TestReadConfigErrors(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, root)

	_, err := m.ReadConfig()
	assert.True(t, crewerrors.IsNotFound(err))

	path := statefs.NewLayout(root).ConfigPath("alpha")
	require.NoError(t, statefs.WriteAtomic(path, []byte("{")))
	_, err = m.ReadConfig()
	assert.ErrorIs(t, err, crewerrors.ErrMalformedState)

	require.NoError(t, statefs.WriteAtomic(path, []byte(`{"schema_version":2,"name":"alpha","surprise":1}`)))
	_, err = m.ReadConfig()
	assert.ErrorIs(t, err, crewerrors.ErrMalformedState, "unknown field")

	require.NoError(t, statefs.WriteAtomic(path, []byte(`{"schema_version":7,"name":"alpha"}`)))
	_, err = m.ReadConfig()
	assert.ErrorIs(t, err, crewerrors.ErrUnsupportedSchema)
	var schemaErr *crewerrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 7, schemaErr.Version)
}

func TestSaveConfig(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	cfg := initTeam(t, m, "w1")

	cfg.Leader = "boss"
	cfg.Extra = map[string]json.RawMessage{"notes": json.RawMessage(`"keep"`)}
	saved, err := m.SaveConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Revision)

	_, err = m.SaveConfig(cfg)
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput, "stale revision")

	got, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, "boss", got.Leader)
	assert.JSONEq(t, `"keep"`, string(got.Extra["notes"]))

	got.Policy.MaxWorkers = 0
	got.Workers = append(got.Workers, Worker{Name: "bad/name", Index: 5})
	_, err = m.SaveConfig(got)
	assert.ErrorIs(t, err, crewerrors.ErrInvalidInput)
}

func TestConfigCache(t *testing.T) {
	root := t.TempDir()
	cache := NewConfigCache()
	m := newTestManager(t, root, WithCache(cache))
	initTeam(t, m, "w1")

	first, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	first.Workers[0].Name = "mutated"
	again, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, "w1", again.Workers[0].Name, "cached value must not alias callers")

	// Another process rewrites the file.
	other := newTestManager(t, root)
	_, err = other.AddWorker(Worker{Name: "w2"})
	require.NoError(t, err)
	fresh, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Len(t, fresh.Workers, 2)

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())

	var nilCache *ConfigCache
	cfg, err := nilCache.Load(statefs.NewLayout(root).ConfigPath("alpha"), m.ReadConfig)
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Name)
	nilCache.Invalidate("x")
}

func TestCleanup(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, root)
	initTeam(t, m, "w1")

	require.NoError(t, m.Cleanup())
	assert.NoDirExists(t, statefs.NewLayout(root).TeamDir("alpha"))
	_, err := m.ReadConfig()
	assert.True(t, crewerrors.IsNotFound(err))
	assert.NoError(t, m.Cleanup(), "cleanup is idempotent")
}
