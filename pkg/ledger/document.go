package ledger

import (
	"fmt"
	"strconv"
)

// RevisionField is the reserved hash field holding the document revision.
const RevisionField = "revision"

// Document is the hash representation of a stored record.
type Document map[string]string

// Clone returns an independent copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Revision parses the document's revision field.
func (d Document) Revision() (int64, error) {
	raw, ok := d[RevisionField]
	if !ok || raw == "" {
		return 0, ErrNoRevision
	}
	rev, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field: %w", RevisionField, err)
	}
	return rev, nil
}

// hashArgs converts the document to the map form accepted by HSET.
func (d Document) hashArgs() map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
