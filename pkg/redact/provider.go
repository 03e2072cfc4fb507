package redact

import (
	"context"
	"fmt"

	"github.com/dyluth/muster/pkg/uid"
)

// SchemaProvider looks up declared parameters. Implementations return
// ErrSchemaNotFound (possibly wrapped) when the referenced owner is gone.
//
// ActionRunner names the runner an action runs on. An action with no known
// runner is reported as ErrSchemaNotFound.
type SchemaProvider interface {
	ActionSchema(ctx context.Context, ref string) (SecretSchema, error)
	ActionRunner(ctx context.Context, ref string) (string, error)
	RunnerSchema(ctx context.Context, name string) (SecretSchema, error)
	ConfigSchema(ctx context.Context, pack string) (SecretSchema, error)
}

// Resolve looks up the schemas needed to redact doc. It never fails: a lookup
// error is recorded in Schemas.Missing so that Redact fails closed.
//
// The secret set of an action run is the action's declared parameters plus
// those of its runner. Execution documents embed both definitions; those
// declarations are used directly when present and the provider is only
// consulted for the ones that are not. Live actions carry only the action
// ref, so the runner is found through the action.
func Resolve(ctx context.Context, p SchemaProvider, kind uid.Kind, doc map[string]any) Schemas {
	var s Schemas

	switch kind {
	case uid.KindExecution:
		action, _ := nestedMap(doc, "action")
		if spec, ok := nestedMap(action, "parameters"); ok {
			s.Action = FromParameterSpec(spec)
		} else {
			ref, _ := action["ref"].(string)
			s.Action, s.Missing = lookup(ctx, "action", ref, p.ActionSchema)
		}

		runner, _ := nestedMap(doc, "runner")
		if spec, ok := nestedMap(runner, "runner_parameters"); ok {
			s.Runner = FromParameterSpec(spec)
		} else if s.Missing == nil {
			name, _ := runner["name"].(string)
			if name == "" {
				ref, _ := action["ref"].(string)
				s.Runner, s.Missing = runnerOf(ctx, p, ref)
			} else {
				s.Runner, s.Missing = lookup(ctx, "runner", name, p.RunnerSchema)
			}
		}

	case uid.KindLiveAction:
		ref, _ := doc["action"].(string)
		s.Action, s.Missing = lookup(ctx, "action", ref, p.ActionSchema)
		if s.Missing == nil {
			s.Runner, s.Missing = runnerOf(ctx, p, ref)
		}

	case uid.KindConfig:
		pack, _ := doc["pack"].(string)
		s.Action, s.Missing = lookup(ctx, "config schema", pack, p.ConfigSchema)
	}

	return s
}

// runnerOf resolves the runner schema of the action ref.
func runnerOf(ctx context.Context, p SchemaProvider, ref string) (SecretSchema, error) {
	if ref == "" {
		return nil, fmt.Errorf("document has no action reference: %w", ErrSchemaNotFound)
	}
	name, err := p.ActionRunner(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("runner of action %q: %w", ref, err)
	}
	return lookup(ctx, "runner", name, p.RunnerSchema)
}

func lookup(ctx context.Context, what, ref string, get func(context.Context, string) (SecretSchema, error)) (SecretSchema, error) {
	if ref == "" {
		return nil, fmt.Errorf("document has no %s reference: %w", what, ErrSchemaNotFound)
	}
	schema, err := get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", what, ref, err)
	}
	return schema, nil
}
