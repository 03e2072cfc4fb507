package uid

// Kind is the resource type tag that prefixes every UID.
type Kind string

const (
	KindPack             Kind = "pack"
	KindSensorType       Kind = "sensor_type"
	KindTriggerType      Kind = "trigger_type"
	KindTrigger          Kind = "trigger"
	KindKeyValuePair     Kind = "key_value_pair"
	KindAPIKey           Kind = "api_key"
	KindExecution        Kind = "execution"
	KindLiveAction       Kind = "liveaction"
	KindExecutionRequest Kind = "execution_request"
	KindRuleEnforcement  Kind = "rule_enforcement"
	KindConfig           Kind = "config"
)

// Spec describes how a kind participates in identity and redaction.
type Spec struct {
	// Fields are the identity fields in their fixed positional order.
	Fields []string

	// Parameterized kinds append a digest of their parameters as an extra segment.
	Parameterized bool

	// MaskedFields are top-level fields derived from a secret (for example a
	// one-way hash and any UID built from it). They are masked on every
	// serialization regardless of the parameter schema.
	MaskedFields []string
}

// Kinds is the registry of every resource kind and its identity fields.
var Kinds = map[Kind]Spec{
	KindPack:             {Fields: []string{"ref"}},
	KindSensorType:       {Fields: []string{"pack", "name"}},
	KindTriggerType:      {Fields: []string{"pack", "name"}},
	KindTrigger:          {Fields: []string{"pack", "name"}, Parameterized: true},
	KindKeyValuePair:     {Fields: []string{"scope", "name"}},
	KindAPIKey:           {Fields: []string{"key_hash"}, MaskedFields: []string{"key_hash", "uid"}},
	KindExecution:        {Fields: []string{"id"}},
	KindLiveAction:       {Fields: []string{"id"}},
	KindExecutionRequest: {Fields: []string{"id"}},
	KindRuleEnforcement:  {Fields: []string{"id"}},
	KindConfig:           {Fields: []string{"pack"}},
}

// Lookup returns the spec for a kind, or an IdentityError if the kind is unknown.
func Lookup(kind Kind) (Spec, error) {
	spec, ok := Kinds[kind]
	if !ok {
		return Spec{}, &IdentityError{Kind: kind, Reason: "unknown resource kind"}
	}
	return spec, nil
}

// Validate checks if the Kind is registered. An unknown kind is reported as
// an *IdentityError, as from Lookup.
func (k Kind) Validate() error {
	_, err := Lookup(k)
	return err
}

// Segments returns the number of separator-delimited segments a valid UID of
// this kind has: the kind tag, one per identity field, and one for the
// parameter digest when the kind is parameterised.
func (s Spec) Segments() int {
	n := 1 + len(s.Fields)
	if s.Parameterized {
		n++
	}
	return n
}
