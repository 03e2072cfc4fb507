package redact

import "sort"

// Secret marks which parts of a single parameter value are secret.
type Secret struct {
	// Masked replaces the whole value.
	Masked bool

	// Properties applies to the keys of an object value.
	Properties SecretSchema

	// Items applies to every element of an array value.
	Items *Secret
}

// SecretSchema maps parameter names to the secret parts of their values.
// Names that carry no secret are absent.
type SecretSchema map[string]Secret

// FromParameterSpec derives a SecretSchema from parameter declarations of the
// form used by actions, runners and pack config schemas:
//
//	password:
//	  type: string
//	  secret: true
//	auth:
//	  type: object
//	  properties:
//	    token: {type: string, secret: true}
//	keys:
//	  type: array
//	  items: {type: string, secret: true}
//
// Declarations that are not objects are ignored.
func FromParameterSpec(spec map[string]any) SecretSchema {
	schema := SecretSchema{}
	for name, raw := range spec {
		decl, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := secretFromDecl(decl); ok {
			schema[name] = s
		}
	}
	return schema
}

// secretFromDecl reports whether decl, or anything nested in it, is secret.
func secretFromDecl(decl map[string]any) (Secret, bool) {
	if secret, _ := decl["secret"].(bool); secret {
		return Secret{Masked: true}, true
	}

	var s Secret
	found := false

	if props, ok := decl["properties"].(map[string]any); ok {
		if nested := FromParameterSpec(props); len(nested) > 0 {
			s.Properties = nested
			found = true
		}
	}

	if items, ok := decl["items"].(map[string]any); ok {
		if nested, ok := secretFromDecl(items); ok {
			s.Items = &nested
			found = true
		}
	}

	return s, found
}

// AllSecret returns a schema that masks every one of names.
func AllSecret(names ...string) SecretSchema {
	schema := make(SecretSchema, len(names))
	for _, name := range names {
		schema[name] = Secret{Masked: true}
	}
	return schema
}

// Merge returns the union of s and other. A value secret in either is secret
// in the result.
func (s SecretSchema) Merge(other SecretSchema) SecretSchema {
	out := make(SecretSchema, len(s)+len(other))
	for name, secret := range s {
		out[name] = secret
	}
	for name, secret := range other {
		if existing, ok := out[name]; ok {
			out[name] = existing.merge(secret)
			continue
		}
		out[name] = secret
	}
	return out
}

func (s Secret) merge(other Secret) Secret {
	if s.Masked || other.Masked {
		return Secret{Masked: true}
	}

	out := Secret{Properties: s.Properties.Merge(other.Properties)}
	if len(out.Properties) == 0 {
		out.Properties = nil
	}
	switch {
	case s.Items != nil && other.Items != nil:
		merged := s.Items.merge(*other.Items)
		out.Items = &merged
	case s.Items != nil:
		out.Items = s.Items
	case other.Items != nil:
		out.Items = other.Items
	}
	return out
}

// Names returns the sorted top-level parameter names that carry a secret.
func (s SecretSchema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
