package team

import (
	"fmt"
	"slices"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// WithScalingLock runs fn while holding the team's scaling lock. Every
// roster change goes through it so concurrent scale requests cannot
// interleave.
func (m *Manager) WithScalingLock(fn func() error) error {
	return statefs.WithLock(m.layout.LockPath(m.team, "scaling"), m.lockOpts, fn)
}

// AddWorker appends w to the roster with the next free index. It fails
// with ErrInvalidInput when the name is taken or the roster is at
// policy.max_workers.
func (m *Manager) AddWorker(w Worker) (Config, error) {
	if err := statefs.ValidateName("worker", w.Name); err != nil {
		return Config{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	var saved Config
	err := m.WithScalingLock(func() error {
		cfg, _, err := m.readConfigFile()
		if err != nil {
			return err
		}
		if _, ok := cfg.Worker(w.Name); ok {
			return fmt.Errorf("%w: worker %q already on the roster", crewerrors.ErrInvalidInput, w.Name)
		}
		if len(cfg.Workers) >= cfg.Policy.MaxWorkers {
			return fmt.Errorf("%w: roster is full (%d/%d)", crewerrors.ErrInvalidInput, len(cfg.Workers), cfg.Policy.MaxWorkers)
		}
		w.Index = cfg.nextIndex()
		cfg.Workers = append(cfg.Workers, w)
		saved, err = m.SaveConfig(cfg)
		return err
	})
	if err != nil {
		return Config{}, err
	}
	m.logger.Info("worker added", "worker", w.Name, "workers", len(saved.Workers))
	return saved, nil
}

// RemoveWorker drops name from the roster. The worker's directory and any
// claims it holds are left alone; the monitor reclaims claims once its
// heartbeat goes stale.
func (m *Manager) RemoveWorker(name string) (Config, error) {
	var saved Config
	err := m.WithScalingLock(func() error {
		cfg, _, err := m.readConfigFile()
		if err != nil {
			return err
		}
		i := slices.IndexFunc(cfg.Workers, func(w Worker) bool { return w.Name == name })
		if i < 0 {
			return fmt.Errorf("worker %q is not on the roster: %w", name, crewerrors.ErrNotFound)
		}
		cfg.Workers = slices.Delete(cfg.Workers, i, i+1)
		saved, err = m.SaveConfig(cfg)
		return err
	})
	if err != nil {
		return Config{}, err
	}
	m.logger.Info("worker removed", "worker", name, "workers", len(saved.Workers))
	return saved, nil
}
