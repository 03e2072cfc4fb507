// Package uid derives stable, content-addressed identifiers for muster resources.
//
// # Overview
//
// Every resource kind has a fixed, ordered list of identity fields declared in a
// compile-time table (see Kinds). A UID is the kind tag followed by the values of
// those fields, joined by Separator:
//
//	pack:examples
//	key_value_pair:system:api_token
//	execution_request:5f0c9a2e-...
//
// Parameterised kinds (triggers) fold an arbitrary key/value payload into the
// identifier by appending the MD5 digest of its canonical JSON form:
//
//	trigger:core:st2.webhook:8b5c1e...
//
// Canonical JSON sorts object keys at every depth, so two parameter maps that
// differ only in insertion order always produce the same digest. Strings are
// taken byte for byte; maps whose values differ in any byte get distinct UIDs.
//
// # Purity
//
// Compute is a pure function of its inputs. Calling it twice with identical
// values yields byte-identical output, which lets callers recompute UIDs freely
// and deduplicate on string equality.
package uid
