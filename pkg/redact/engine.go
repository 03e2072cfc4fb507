package redact

import (
	"github.com/dyluth/muster/pkg/uid"
)

const (
	// RespondActionRef is the generic action that answers an inquiry. Its
	// response has no static schema, so every response key is masked.
	RespondActionRef = "st2.inquiry.respond"

	// InquirerRunner is the runner whose executions embed {schema, response}
	// in their result.
	InquirerRunner = "inquirer"
)

// Schemas are the secret schemas resolved for one document.
type Schemas struct {
	// Action holds the declared parameters of the action, or the pack config
	// schema for config documents.
	Action SecretSchema

	// Runner holds the runner's own parameters. Merged with Action.
	Runner SecretSchema

	// Missing is set when a lookup failed. Redaction then fails closed.
	Missing error
}

// secrets returns the effective secret set.
func (s Schemas) secrets() SecretSchema {
	return s.Action.Merge(s.Runner)
}

// policy masks the schema-driven parts of a copied document in place.
// When failClosed is set, every secret-bearing structure is replaced wholesale.
type policy func(doc map[string]any, secrets SecretSchema, failClosed bool)

// Engine applies per-kind redaction policies. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	policies   map[uid.Kind]policy
	alwaysMask map[uid.Kind][]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlwaysMask adds top-level fields that are masked for kind on every call.
func WithAlwaysMask(kind uid.Kind, fields ...string) Option {
	return func(e *Engine) {
		e.alwaysMask[kind] = append(e.alwaysMask[kind], fields...)
	}
}

// NewEngine creates an engine with the policies for execution, liveaction and
// config documents, and the always-masked fields of the uid kind registry.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies: map[uid.Kind]policy{
			uid.KindExecution:  redactExecution,
			uid.KindLiveAction: redactField("parameters"),
			uid.KindConfig:     redactField("values"),
		},
		alwaysMask: make(map[uid.Kind][]string),
	}
	for kind, spec := range uid.Kinds {
		if len(spec.MaskedFields) > 0 {
			e.alwaysMask[kind] = append([]string(nil), spec.MaskedFields...)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Redact returns a masked deep copy of doc. doc is never modified.
//
// If schemas.Missing is set and kind has a schema-driven policy, the masked
// document is returned together with a *SchemaUnavailableError. The document
// is still safe to emit in that case.
func (e *Engine) Redact(kind uid.Kind, doc map[string]any, schemas Schemas) (map[string]any, error) {
	if _, err := uid.Lookup(kind); err != nil {
		return nil, err
	}

	out := Clone(doc)
	if out == nil {
		out = map[string]any{}
	}

	var err error
	if apply, ok := e.policies[kind]; ok {
		failClosed := schemas.Missing != nil
		apply(out, schemas.secrets(), failClosed)
		if failClosed {
			err = &SchemaUnavailableError{Kind: kind, Err: schemas.Missing}
		}
	}

	for _, field := range e.alwaysMask[kind] {
		if _, ok := out[field]; ok {
			out[field] = MaskedValue
		}
	}

	return out, err
}

// redactField masks a single parameter map held under key.
func redactField(key string) policy {
	return func(doc map[string]any, secrets SecretSchema, failClosed bool) {
		maskIn(doc, key, secrets, failClosed)
	}
}

// maskIn masks doc[key] as a parameter map. Fail-closed replaces it whole.
func maskIn(doc map[string]any, key string, secrets SecretSchema, failClosed bool) {
	value, ok := doc[key]
	if !ok || value == nil {
		return
	}
	if failClosed {
		doc[key] = MaskedValue
		return
	}
	if params, ok := value.(map[string]any); ok {
		doc[key] = MaskParameters(params, secrets)
		return
	}
	// Not a parameter map: nothing can be matched against the schema, so
	// treat it as opaque.
	doc[key] = MaskedValue
}

// redactExecution masks an execution document: its parameters, the embedded
// live action's parameters, respond-action responses and inquiry responses.
func redactExecution(doc map[string]any, secrets SecretSchema, failClosed bool) {
	maskIn(doc, "parameters", secrets, failClosed)

	if liveaction, ok := nestedMap(doc, "liveaction"); ok {
		maskIn(liveaction, "parameters", secrets, failClosed)

		if action, _ := liveaction["action"].(string); action == RespondActionRef {
			maskResponse(liveaction)
			maskResponse(doc)
		}
	}

	if runner, ok := nestedMap(doc, "runner"); ok {
		if name, _ := runner["name"].(string); name == InquirerRunner {
			if result, ok := nestedMap(doc, "result"); ok {
				maskInquiryResult(result)
			}
		}
	}
}

// maskResponse masks every key of holder.parameters.response.
func maskResponse(holder map[string]any) {
	params, ok := nestedMap(holder, "parameters")
	if !ok {
		return
	}
	switch response := params["response"].(type) {
	case map[string]any:
		names := make([]string, 0, len(response))
		for name := range response {
			names = append(names, name)
		}
		params["response"] = MaskParameters(response, AllSecret(names...))
	case nil:
	default:
		params["response"] = MaskedValue
	}
}
