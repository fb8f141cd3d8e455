package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/statefs"
)

const v1Config = `{
  "version": 1,
  "team_name": "alpha",
  "lead": "lead",
  "agents": [
    {"name": "w1", "role": "implementer", "tasks": ["t-1", "t-2"]},
    {"name": "w2", "role": "reviewer"}
  ],
  "max_workers": 4,
  "max_fix_attempts": 2,
  "lock_timeout_ms": 7000,
  "created_at": "2025-06-01T08:00:00Z",
  "notes": {"owner": "platform"}
}`

func TestMigrateV1ToV2(t *testing.T) {
	cfg, err := MigrateV1ToV2([]byte(v1Config), t0)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, "alpha", cfg.Name)
	assert.Equal(t, "lead", cfg.Leader)
	assert.Equal(t, []Worker{
		{Name: "w1", Index: 0, Role: "implementer", AssignedTasks: []string{"t-1", "t-2"}},
		{Name: "w2", Index: 1, Role: "reviewer"},
	}, cfg.Workers)
	assert.Equal(t, 4, cfg.Policy.MaxWorkers)
	assert.Equal(t, 2, cfg.Policy.MaxFixAttempts)
	assert.Equal(t, int64(7000), cfg.Policy.LockTimeoutMS)
	assert.Equal(t, "2025-06-01T08:00:00Z", cfg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	assert.JSONEq(t, `{"owner":"platform"}`, string(cfg.Extra["notes"]))
}

func TestMigrateRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := statefs.NewLayout(root).ConfigPath("alpha")
	require.NoError(t, statefs.WriteAtomic(path, []byte(v1Config)))
	m := newTestManager(t, root)

	inMemory, err := m.ReadConfig()
	require.NoError(t, err, "legacy configs are readable before migration")

	migrated, did, err := m.Migrate()
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, 1, migrated.Revision)

	got, err := m.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, inMemory.Workers, got.Workers)
	assert.Equal(t, inMemory.Policy, got.Policy)
	assert.JSONEq(t, `{"owner":"platform"}`, string(got.Extra["notes"]))

	_, did, err = m.Migrate()
	require.NoError(t, err)
	assert.False(t, did, "current configs are left alone")
}

func TestMigrateNameList(t *testing.T) {
	cfg, err := MigrateV1ToV2([]byte(`{"team_name":"alpha","agents":["a","b","c"]}`), t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.WorkerNames())
	assert.Equal(t, DefaultMaxWorkers, cfg.Policy.MaxWorkers)
	assert.Equal(t, t0, cfg.CreatedAt)
}

func TestMigrateGrowsMaxWorkersToFitRoster(t *testing.T) {
	cfg, err := MigrateV1ToV2([]byte(`{"team_name":"alpha","max_workers":1,"agents":["a","b"]}`), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Policy.MaxWorkers)
}

func TestMigrateUnsupported(t *testing.T) {
	docs := []string{
		`[]`,
		`{"foo": 1}`,
		`{"version": "one", "team_name": "alpha"}`,
		`{"schema_version": 2, "name": "alpha"}`,
		`{"version": 3, "team_name": "alpha"}`,
		`{"team_name": "alpha", "agents": 42}`,
		`{"team_name": 42}`,
		`{"version": 1, "agents": ["a"]}`,
	}
	for _, doc := range docs {
		_, err := MigrateV1ToV2([]byte(doc), t0)
		assert.ErrorIs(t, err, crewerrors.ErrUnsupportedSchema, doc)
	}
}
