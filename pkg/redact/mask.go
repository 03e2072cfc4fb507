package redact

// MaskedValue replaces every secret value in redacted output.
const MaskedValue = "********"

// MaskParameters returns a deep copy of params with every value declared
// secret by schema replaced by MaskedValue. Keys absent from params stay
// absent. Masking an already masked map is a no-op.
func MaskParameters(params map[string]any, schema SecretSchema) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		secret, ok := schema[key]
		if !ok {
			out[key] = deepCopy(value)
			continue
		}
		out[key] = maskValue(value, secret)
	}
	return out
}

func maskValue(value any, secret Secret) any {
	if secret.Masked {
		return MaskedValue
	}

	switch v := value.(type) {
	case map[string]any:
		if secret.Properties != nil {
			return MaskParameters(v, secret.Properties)
		}
	case []any:
		if secret.Items != nil {
			out := make([]any, len(v))
			for i, elem := range v {
				out[i] = maskValue(elem, *secret.Items)
			}
			return out
		}
	}
	return deepCopy(value)
}

// deepCopy copies the container types produced by JSON and YAML decoding.
// Scalars are immutable and returned as-is.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[key] = deepCopy(elem)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = deepCopy(elem)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of doc.
func Clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return deepCopy(doc).(map[string]any)
}

// nestedMap returns doc[key] if it is an object.
func nestedMap(doc map[string]any, key string) (map[string]any, bool) {
	m, ok := doc[key].(map[string]any)
	return m, ok
}
