// Package schema implements Warren's schema and validation engine.
//
// Schemas are authored as JSON-like documents extended with two keyword
// families beyond plain structural typing: container kinds (co-map, co-list,
// co-stream) describing the CoValue shape a schema governs, and the $co
// cross-reference keyword naming another schema by human-readable reference.
//
// Compilation is where author-time convenience meets runtime strictness. A
// $co keyword is macro-expanded into a string constraint matching the
// content-id pattern, with the original reference retained as side metadata
// for seed-time transformation - runtime validation never consults a lookup
// table. Malformed or unrecognized container kinds fail compilation
// outright; they are never silently ignored.
//
// Validation reports every violated constraint, not just the first, so
// callers can produce actionable diagnostics for a whole document in one
// pass.
package schema
