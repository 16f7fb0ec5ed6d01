package datamodel

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
)

// ModuleConfig is the descriptor persisted in every model directory
type ModuleConfig struct {
	ModuleID   string `yaml:"module_id"`
	Name       string `yaml:"name,omitempty"`
	Version    string `yaml:"version,omitempty"`
	HFModel    string `yaml:"hf_model,omitempty"`
	HFRevision string `yaml:"hf_revision,omitempty"`

	// older model configs spell the revision this way
	HFModelRevision string `yaml:"hf_model_revision,omitempty"`
}

// LoadModuleConfig reads the descriptor of the model stored in modelDir
func LoadModuleConfig(modelDir string) (*ModuleConfig, error) {
	info, err := os.Stat(modelDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a model directory", modelDir)
	}

	b, err := os.ReadFile(filepath.Join(modelDir, constant.ModuleConfigFileName))
	if err != nil {
		return nil, err
	}

	cfg := &ModuleConfig{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Join(modelDir, constant.ModuleConfigFileName))
	}
	if cfg.ModuleID == "" {
		return nil, errors.Errorf("%s has no module_id", modelDir)
	}

	return cfg, nil
}

// Save writes the descriptor into modelDir, creating it if needed
func (c *ModuleConfig) Save(modelDir string) error {
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(modelDir, constant.ModuleConfigFileName), b, 0o644)
}

// Task resolves the module id to a known task
func (c *ModuleConfig) Task() (TaskID, error) {
	task, ok := TaskForModule(c.ModuleID)
	if !ok {
		return "", errors.Errorf("unknown module_id %q", c.ModuleID)
	}
	return task, nil
}

// Revision returns the pinned hub revision, whichever key carried it
func (c *ModuleConfig) Revision() string {
	if c.HFRevision != "" {
		return c.HFRevision
	}
	return c.HFModelRevision
}
