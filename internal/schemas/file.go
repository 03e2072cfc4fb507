package schemas

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/muster/pkg/redact"
	"gopkg.in/yaml.v3"
)

// ParameterSpecs maps a parameter name to its declaration.
type ParameterSpecs map[string]map[string]any

// ActionSpec declares an action and the runner it runs on.
type ActionSpec struct {
	RunnerType string         `yaml:"runner_type"`
	Parameters ParameterSpecs `yaml:"parameters"`
}

// File is the on-disk layout of schemas.yml.
//
//	actions:
//	  core.http:
//	    runner_type: http-request
//	    parameters:
//	      password: {type: string, secret: true}
//	runners:
//	  http-request:
//	    token: {type: string, secret: true}
//	configs:
//	  aws:
//	    secret_key: {type: string, secret: true}
type File struct {
	Actions map[string]ActionSpec     `yaml:"actions"`
	Runners map[string]ParameterSpecs `yaml:"runners"`
	Configs map[string]ParameterSpecs `yaml:"configs"`
}

// FileProvider serves secret schemas from a parsed schemas.yml.
// It is immutable after construction and safe for concurrent use.
type FileProvider struct {
	actions map[string]redact.SecretSchema
	owners  map[string]string
	runners map[string]redact.SecretSchema
	configs map[string]redact.SecretSchema
}

// LoadFile reads and parses a schemas file.
func LoadFile(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas: %w", err)
	}
	return Parse(data)
}

// Parse builds a provider from schemas.yml content.
func Parse(data []byte) (*FileProvider, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	actions := make(map[string]ParameterSpecs, len(f.Actions))
	owners := make(map[string]string, len(f.Actions))
	for ref, spec := range f.Actions {
		actions[ref] = spec.Parameters
		if spec.RunnerType != "" {
			owners[ref] = spec.RunnerType
		}
	}

	return &FileProvider{
		actions: compile(actions),
		owners:  owners,
		runners: compile(f.Runners),
		configs: compile(f.Configs),
	}, nil
}

func compile(owners map[string]ParameterSpecs) map[string]redact.SecretSchema {
	out := make(map[string]redact.SecretSchema, len(owners))
	for name, specs := range owners {
		decls := make(map[string]any, len(specs))
		for param, decl := range specs {
			decls[param] = decl
		}
		out[name] = redact.FromParameterSpec(decls)
	}
	return out
}

// ActionSchema implements redact.SchemaProvider.
func (p *FileProvider) ActionSchema(_ context.Context, ref string) (redact.SecretSchema, error) {
	return find(p.actions, "action", ref)
}

// ActionRunner implements redact.SchemaProvider.
func (p *FileProvider) ActionRunner(_ context.Context, ref string) (string, error) {
	if _, ok := p.actions[ref]; !ok {
		return "", fmt.Errorf("action %q: %w", ref, redact.ErrSchemaNotFound)
	}
	name, ok := p.owners[ref]
	if !ok {
		return "", fmt.Errorf("action %q declares no runner_type: %w", ref, redact.ErrSchemaNotFound)
	}
	return name, nil
}

// RunnerSchema implements redact.SchemaProvider.
func (p *FileProvider) RunnerSchema(_ context.Context, name string) (redact.SecretSchema, error) {
	return find(p.runners, "runner", name)
}

// ConfigSchema implements redact.SchemaProvider.
func (p *FileProvider) ConfigSchema(_ context.Context, pack string) (redact.SecretSchema, error) {
	return find(p.configs, "config schema", pack)
}

func find(m map[string]redact.SecretSchema, what, name string) (redact.SecretSchema, error) {
	schema, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", what, name, redact.ErrSchemaNotFound)
	}
	return schema, nil
}
