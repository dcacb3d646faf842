package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// StateFileName is the name of the persisted agent identity file inside DataDir
const StateFileName = "agent-state.yaml"

// State is the small piece of agent identity that survives restarts.
// It is written once on first start and read back afterwards, so the control
// plane sees a stable instance id across agent upgrades.
type State struct {
	InstanceID string    `yaml:"instance_id"`
	Host       string    `yaml:"host"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// StatePath returns the path of the state file inside dir
func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

// LoadOrCreateState reads the persisted agent state, creating it with a fresh
// instance id when the file does not exist yet.
func LoadOrCreateState(dir, host string) (State, error) {
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if err == nil {
		var st State
		if err := yaml.Unmarshal(data, &st); err != nil {
			return State{}, fmt.Errorf("parse state %q: %w", path, err)
		}
		if st.InstanceID == "" {
			return State{}, fmt.Errorf("state %q has no instance id", path)
		}
		return st, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return State{}, fmt.Errorf("read state %q: %w", path, err)
	}

	st := State{
		InstanceID: uuid.NewString(),
		Host:       host,
		CreatedAt:  time.Now().UTC(),
	}
	if err := writeState(path, st); err != nil {
		return State{}, err
	}
	return st, nil
}

func writeState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
