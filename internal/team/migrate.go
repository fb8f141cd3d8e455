package team

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// configV1 is the legacy config shape:
//
//	{
//	  "version": 1,                       // optional
//	  "team_name": "alpha",
//	  "lead": "leader",                   // optional
//	  "agents": [{"name": "w1", "role": "impl", "tasks": ["t1"]}],
//	  "max_workers": 4,                   // optional
//	  "max_fix_attempts": 3,              // optional
//	  "lock_timeout_ms": 5000,            // optional
//	  "created_at": "2025-01-01T00:00:00Z" // optional
//	}
//
// "agents" may also be a plain list of names. Any other top-level key is
// carried into Config.Extra.
type configV1 struct {
	Version        int             `json:"version"`
	TeamName       string          `json:"team_name"`
	Lead           string          `json:"lead"`
	Agents         json.RawMessage `json:"agents"`
	MaxWorkers     int             `json:"max_workers"`
	MaxFixAttempts int             `json:"max_fix_attempts"`
	LockTimeoutMS  int64           `json:"lock_timeout_ms"`
	CreatedAt      *time.Time      `json:"created_at"`
}

type agentV1 struct {
	Name  string   `json:"name"`
	Role  string   `json:"role"`
	Tasks []string `json:"tasks"`
}

var v1Keys = map[string]bool{
	"version":          true,
	"team_name":        true,
	"lead":             true,
	"agents":           true,
	"max_workers":      true,
	"max_fix_attempts": true,
	"lock_timeout_ms":  true,
	"created_at":       true,
}

// schemaOf reports the schema version of a raw config document. Documents
// without a version marker but with a team_name are v1.
func schemaOf(raw map[string]json.RawMessage) (int, error) {
	if v, ok := raw["schema_version"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return 0, crewerrors.NewSchemaError("schema_version is not a number", string(v))
		}
		return n, nil
	}
	if v, ok := raw["version"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return 0, crewerrors.NewSchemaError("version is not a number", string(v))
		}
		return n, nil
	}
	if _, ok := raw["team_name"]; ok {
		return 1, nil
	}
	return 0, crewerrors.NewSchemaError("config has no schema marker", nil)
}

// MigrateV1ToV2 converts a legacy config document to the current shape.
// Missing policy values are filled by NormalizePolicy, and keys the legacy
// shape does not define are preserved in Extra. now stamps UpdatedAt and,
// when the document has none, CreatedAt.
//
// A document that is not a v1 config fails with an error matching
// ErrUnsupportedSchema.
func MigrateV1ToV2(data []byte, now time.Time) (Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, crewerrors.NewSchemaError("config is not a JSON object", nil)
	}
	version, err := schemaOf(raw)
	if err != nil {
		return Config{}, err
	}
	if version != 1 {
		return Config{}, crewerrors.NewSchemaError("not a v1 config", version)
	}

	var v1 configV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return Config{}, crewerrors.NewSchemaError(fmt.Sprintf("unrecognized v1 field: %v", err), version)
	}
	workers, err := migrateAgents(v1.Agents)
	if err != nil {
		return Config{}, crewerrors.NewSchemaError(err.Error(), version)
	}

	cfg := Config{
		SchemaVersion: SchemaVersion,
		Name:          v1.TeamName,
		Leader:        v1.Lead,
		Workers:       workers,
		Policy: NormalizePolicy(Policy{
			MaxWorkers:     v1.MaxWorkers,
			MaxFixAttempts: v1.MaxFixAttempts,
			LockTimeoutMS:  v1.LockTimeoutMS,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v1.CreatedAt != nil {
		cfg.CreatedAt = v1.CreatedAt.UTC()
	}
	if cfg.Policy.MaxWorkers < len(cfg.Workers) {
		cfg.Policy.MaxWorkers = min(len(cfg.Workers), AbsoluteMaxWorkers)
	}
	for k, v := range raw {
		if v1Keys[k] {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]json.RawMessage)
		}
		cfg.Extra[k] = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, crewerrors.NewSchemaError(fmt.Sprintf("migrated config is invalid: %v", err), version)
	}
	return cfg, nil
}

// migrateAgents accepts either a list of agent objects or a list of names.
func migrateAgents(data json.RawMessage) ([]Worker, error) {
	workers := []Worker{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return workers, nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		for i, n := range names {
			workers = append(workers, Worker{Name: n, Index: i})
		}
		return workers, nil
	}
	var agents []agentV1
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("agents is neither a list of names nor a list of agents")
	}
	for i, a := range agents {
		workers = append(workers, Worker{Name: a.Name, Index: i, Role: a.Role, AssignedTasks: a.Tasks})
	}
	return workers, nil
}

// decodeConfig decodes a config document of any supported schema. The bool
// reports whether the document had to be migrated.
func decodeConfig(data []byte, now time.Time) (Config, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, false, fmt.Errorf("%w: %v", crewerrors.ErrMalformedState, err)
	}
	version, err := schemaOf(raw)
	if err != nil {
		return Config{}, false, err
	}
	switch version {
	case SchemaVersion:
		var cfg Config
		if err := statefs.DecodeStrict(data, &cfg); err != nil {
			return Config{}, false, fmt.Errorf("%w: %v", crewerrors.ErrMalformedState, err)
		}
		return cfg, false, nil
	case 1:
		cfg, err := MigrateV1ToV2(data, now)
		return cfg, err == nil, err
	default:
		return Config{}, false, crewerrors.NewSchemaError("unsupported config schema", version)
	}
}
