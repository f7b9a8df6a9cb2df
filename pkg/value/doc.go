// Package value provides path-addressed access to protocol messages.
//
// A Tree wraps one protocol message (a RunFunctionRequest, a
// RunFunctionResponse, or a detached google.protobuf.Struct) and hands out
// Handles. A Handle is a tree plus a path; it does not cache the node it
// addresses, so aliases always agree.
//
// # Reads and writes
//
// Reading through missing intermediates yields an Absent value instead of an
// error. Writing creates every missing intermediate mapping:
//
//	rsp := value.NewTree(response, "Function Response")
//	bucket := rsp.Root().Field("desired", "resources", "bucket", "resource")
//	_ = bucket.Set(value.Key("spec"), value.Map(map[string]value.Value{
//	    "region": value.String("us-east-1"),
//	}))
//
// Protocol message fields are addressed by their proto, JSON, or text name.
// Enum fields read as their value name.
//
// # Unknown values
//
// Assigning Unknown() marks a field whose value cannot be computed yet. The
// marker is kept beside the message, never inside it: a mapping key is left
// out of the message and a sequence element holds a null placeholder.
// Unknowns inside an open document mark the field the document is bound to
// when the tree is committed. PatchUnknowns fills markers from an observed
// tree and DropUnknowns removes whatever is left.
//
// # Documents
//
// Open decodes a string field as YAML or JSON and returns a handle into the
// decoded document. Tree.Commit writes every open document back.
package value
