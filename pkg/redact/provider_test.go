package redact

import (
	"context"
	"testing"

	"github.com/dyluth/muster/pkg/uid"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	actions map[string]SecretSchema
	owners  map[string]string
	runners map[string]SecretSchema
	configs map[string]SecretSchema
	calls   int
}

func get(m map[string]SecretSchema, key string) (SecretSchema, error) {
	s, ok := m[key]
	if !ok {
		return nil, ErrSchemaNotFound
	}
	return s, nil
}

func (f *fakeProvider) ActionSchema(_ context.Context, ref string) (SecretSchema, error) {
	f.calls++
	return get(f.actions, ref)
}

func (f *fakeProvider) ActionRunner(_ context.Context, ref string) (string, error) {
	f.calls++
	name, ok := f.owners[ref]
	if !ok {
		return "", ErrSchemaNotFound
	}
	return name, nil
}

func (f *fakeProvider) RunnerSchema(_ context.Context, name string) (SecretSchema, error) {
	f.calls++
	return get(f.runners, name)
}

func (f *fakeProvider) ConfigSchema(_ context.Context, pack string) (SecretSchema, error) {
	f.calls++
	return get(f.configs, pack)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		actions: map[string]SecretSchema{
			"core.http":   AllSecret("password"),
			"core.local":  AllSecret(),
			"core.orphan": AllSecret(),
		},
		owners: map[string]string{
			"core.http":  "http-request",
			"core.local": "local-shell-cmd",
		},
		runners: map[string]SecretSchema{
			"http-request":    AllSecret("token"),
			"local-shell-cmd": AllSecret("sudo_password"),
		},
		configs: map[string]SecretSchema{"aws": AllSecret("secret_key")},
	}

	t.Run("liveaction uses action and runner", func(t *testing.T) {
		s := Resolve(ctx, p, uid.KindLiveAction, map[string]any{"action": "core.http"})
		assert.NoError(t, s.Missing)
		assert.Equal(t, AllSecret("password"), s.Action)
		assert.Equal(t, AllSecret("token"), s.Runner)
	})

	t.Run("liveaction masks runner-only secret", func(t *testing.T) {
		doc := map[string]any{
			"action":     "core.local",
			"parameters": map[string]any{"cmd": "ls", "sudo_password": "hunter2"},
		}
		out, err := NewEngine().Redact(uid.KindLiveAction, doc, Resolve(ctx, p, uid.KindLiveAction, doc))
		assert.NoError(t, err)
		assert.Equal(t, map[string]any{"cmd": "ls", "sudo_password": MaskedValue}, out["parameters"])
	})

	t.Run("liveaction with unknown runner fails closed", func(t *testing.T) {
		doc := map[string]any{
			"action":     "core.orphan",
			"parameters": map[string]any{"cmd": "ls", "sudo_password": "hunter2"},
		}
		s := Resolve(ctx, p, uid.KindLiveAction, doc)
		assert.ErrorIs(t, s.Missing, ErrSchemaNotFound)

		out, err := NewEngine().Redact(uid.KindLiveAction, doc, s)
		assert.True(t, IsSchemaUnavailable(err))
		assert.Equal(t, MaskedValue, out["parameters"])
	})

	t.Run("execution without declarations masks runner-only secret", func(t *testing.T) {
		doc := map[string]any{
			"action":     map[string]any{"ref": "core.local"},
			"parameters": map[string]any{"cmd": "ls", "sudo_password": "hunter2"},
		}
		s := Resolve(ctx, p, uid.KindExecution, doc)
		assert.NoError(t, s.Missing)

		out, err := NewEngine().Redact(uid.KindExecution, doc, s)
		assert.NoError(t, err)
		assert.Equal(t, map[string]any{"cmd": "ls", "sudo_password": MaskedValue}, out["parameters"])
	})

	t.Run("execution prefers embedded declarations", func(t *testing.T) {
		p.calls = 0
		s := Resolve(ctx, p, uid.KindExecution, executionDoc())
		assert.NoError(t, s.Missing)
		assert.Zero(t, p.calls)
		assert.Equal(t, []string{"password", "token"}, s.Action.Merge(s.Runner).Names())
	})

	t.Run("execution falls back to provider", func(t *testing.T) {
		doc := map[string]any{
			"action": map[string]any{"ref": "core.http"},
			"runner": map[string]any{"name": "http-request"},
		}
		s := Resolve(ctx, p, uid.KindExecution, doc)
		assert.NoError(t, s.Missing)
		assert.Equal(t, []string{"password", "token"}, s.Action.Merge(s.Runner).Names())
	})

	t.Run("config uses pack", func(t *testing.T) {
		s := Resolve(ctx, p, uid.KindConfig, map[string]any{"pack": "aws"})
		assert.NoError(t, s.Missing)
		assert.Equal(t, AllSecret("secret_key"), s.Action)
	})

	t.Run("deleted owner is reported as missing", func(t *testing.T) {
		s := Resolve(ctx, p, uid.KindLiveAction, map[string]any{"action": "gone.action"})
		assert.ErrorIs(t, s.Missing, ErrSchemaNotFound)
	})

	t.Run("missing reference is reported as missing", func(t *testing.T) {
		s := Resolve(ctx, p, uid.KindConfig, map[string]any{})
		assert.ErrorIs(t, s.Missing, ErrSchemaNotFound)
	})

	t.Run("other kinds need no schema", func(t *testing.T) {
		s := Resolve(ctx, p, uid.KindAPIKey, map[string]any{})
		assert.NoError(t, s.Missing)
		assert.Nil(t, s.Action)
	})
}
