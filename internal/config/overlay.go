// Copyright 2025 ChaosChain
//
// Optional YAML overlay for the gateway's configuration: a YAML file
// with ${VAR_NAME} environment-variable substitution, merged on top of
// the env-derived Config. The gateway treats the overlay purely as an
// optional convenience — every field it can set is already reachable
// through the corresponding environment variable.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)(:-(.*?))?\}`)

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Overlay holds the subset of Config that may be supplied via YAML file in
// addition to environment variables.
type Overlay struct {
	Admission struct {
		MaxWorkflowsTotal int            `yaml:"max_workflows_total"`
		MaxPerType        map[string]int `yaml:"max_per_type"`
	} `yaml:"admission"`
	Step struct {
		Timeout      Duration `yaml:"timeout"`
		RetryMax     int      `yaml:"retry_max_attempts"`
		RetryInitial Duration `yaml:"retry_initial"`
		RetryCap     Duration `yaml:"retry_cap"`
	} `yaml:"step"`
	Reconcile struct {
		Staleness Duration `yaml:"staleness"`
		Sweep     Duration `yaml:"sweep"`
	} `yaml:"reconcile"`
}

// LoadOverlay reads a YAML overlay file, substituting ${VAR_NAME} and
// ${VAR_NAME:-default} references against the process environment.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlay file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var overlay Overlay
	if err := yaml.Unmarshal([]byte(expanded), &overlay); err != nil {
		return nil, fmt.Errorf("parse overlay file %s: %w", path, err)
	}
	return &overlay, nil
}

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Apply merges non-zero overlay fields on top of cfg, overlay taking
// precedence over whatever the environment already set.
func (o *Overlay) Apply(cfg *Config) {
	if o == nil {
		return
	}
	if o.Admission.MaxWorkflowsTotal != 0 {
		cfg.MaxWorkflowsTotal = o.Admission.MaxWorkflowsTotal
	}
	for k, v := range o.Admission.MaxPerType {
		cfg.MaxPerType[k] = v
	}
	if o.Step.Timeout != 0 {
		cfg.StepTimeout = time.Duration(o.Step.Timeout)
	}
	if o.Step.RetryMax != 0 {
		cfg.RetryMaxAttempts = o.Step.RetryMax
	}
	if o.Step.RetryInitial != 0 {
		cfg.RetryInitialDelay = time.Duration(o.Step.RetryInitial)
	}
	if o.Step.RetryCap != 0 {
		cfg.RetryCap = time.Duration(o.Step.RetryCap)
	}
	if o.Reconcile.Staleness != 0 {
		cfg.ReconcileStaleness = time.Duration(o.Reconcile.Staleness)
	}
	if o.Reconcile.Sweep != 0 {
		cfg.ReconcileSweep = time.Duration(o.Reconcile.Sweep)
	}
}
