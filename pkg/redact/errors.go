package redact

import (
	"errors"
	"fmt"

	"github.com/dyluth/muster/pkg/uid"
)

// ErrSchemaNotFound is returned by a SchemaProvider when the referenced
// action, runner or pack config has no schema.
var ErrSchemaNotFound = errors.New("secret schema not found")

// SchemaUnavailableError reports that redaction fell back to masking whole
// structures because the secret schema could not be obtained. The document
// returned with it is safe to emit; the caller decides whether to.
type SchemaUnavailableError struct {
	Kind uid.Kind
	Err  error
}

func (e *SchemaUnavailableError) Error() string {
	return fmt.Sprintf("secret schema unavailable for %s, masked wholesale: %v", e.Kind, e.Err)
}

func (e *SchemaUnavailableError) Unwrap() error {
	return e.Err
}

// IsSchemaUnavailable reports whether err is a fail-closed redaction.
func IsSchemaUnavailable(err error) bool {
	var target *SchemaUnavailableError
	return errors.As(err, &target)
}
