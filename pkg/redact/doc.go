// Package redact masks secret values in resource documents before they leave
// the process.
//
// A document is a decoded JSON object (map[string]any). Which values are
// secret is described by a SecretSchema, derived from the parameter
// declarations of an action, a runner or a pack config schema. The Engine
// applies a per-kind policy that decides where in the document those
// parameters live:
//
//	execution   parameters, liveaction.parameters, inquiry responses
//	liveaction  parameters
//	config      values
//
// Kinds with always-masked fields (api_key) additionally have those top-level
// fields replaced regardless of any schema.
//
// Redaction always works on a deep copy; the input document is never
// modified. The engine performs no I/O. Callers look schemas up first, usually
// with Resolve, and pass them in. When a lookup failed, redaction fails
// closed: every secret-bearing structure is replaced wholesale and a
// *SchemaUnavailableError is returned alongside the masked document.
package redact
