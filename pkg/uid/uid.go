package uid

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Separator joins UID segments.
const Separator = ":"

// IdentityError reports UID inputs that cannot be rendered unambiguously.
// It is fatal to the caller and never worth retrying.
type IdentityError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *IdentityError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("uid %s: field %q: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("uid %s: %s", e.Kind, e.Reason)
}

// Resource is implemented by anything that can be assigned a UID.
type Resource interface {
	// Kind returns the resource type tag.
	Kind() Kind

	// UIDValues returns the identity field values keyed by field name.
	// Fields missing from the map render as empty segments.
	UIDValues() map[string]string

	// Parameters returns the parameter payload for parameterised kinds, or nil.
	Parameters() map[string]any
}

// Compute builds the UID for a kind from its identity field values and, for
// parameterised kinds, its parameters.
//
// Values are taken in the kind's declared field order. A missing value renders
// as an empty segment so positions never shift. A value that contains the
// separator would make the UID ambiguous and is rejected with an IdentityError.
func Compute(kind Kind, values map[string]string, parameters map[string]any) (string, error) {
	spec, err := Lookup(kind)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, spec.Segments())
	parts = append(parts, string(kind))

	for _, field := range spec.Fields {
		v := values[field]
		if strings.Contains(v, Separator) {
			return "", &IdentityError{Kind: kind, Field: field, Reason: "value contains the UID separator"}
		}
		parts = append(parts, v)
	}

	if spec.Parameterized {
		digest, err := ParametersDigest(parameters)
		if err != nil {
			return "", &IdentityError{Kind: kind, Field: "parameters", Reason: err.Error()}
		}
		parts = append(parts, digest)
	}

	return strings.Join(parts, Separator), nil
}

// UIDOf computes the UID of a Resource.
func UIDOf(r Resource) (string, error) {
	return Compute(r.Kind(), r.UIDValues(), r.Parameters())
}

// ParametersDigest returns the lowercase hex MD5 of the canonical JSON form of
// parameters. A nil map digests the same as an empty one.
func ParametersDigest(parameters map[string]any) (string, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	canonical, err := MarshalCanonical(parameters)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Parts splits a UID into its segments.
func Parts(uid string) []string {
	return strings.Split(uid, Separator)
}

// HasValidUID reports whether uid has the segment layout expected for kind.
// Used to detect identifiers left stale by a change to a kind's field list.
// For parameterised kinds the last segment must be a parameters digest.
func HasValidUID(kind Kind, uid string) bool {
	spec, ok := Kinds[kind]
	if !ok || uid == "" {
		return false
	}
	parts := Parts(uid)
	if len(parts) != spec.Segments() || parts[0] != string(kind) {
		return false
	}
	if spec.Parameterized {
		return isDigest(parts[len(parts)-1])
	}
	return true
}

// isDigest reports whether s is a lowercase hex MD5.
func isDigest(s string) bool {
	if len(s) != 2*md5.Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
