// Package payload reads loosely-typed reply payloads produced by the helper process.
//
// Replies carry no fixed schema: field names, casing, and nesting vary between
// helper versions. KeyResolver matches logical fields against prioritized alias
// lists using normalized keys, first by exact match and then by substring match
// guarded by an exclusion list, and ResolvePayloadEnvelope unwraps the mapping
// that most likely holds the command result.
package payload
