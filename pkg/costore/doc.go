// Package costore provides type-safe Go definitions and Redis access patterns
// for Warren's collaborative store.
//
// # Overview
//
// The collaborative store is the durable substrate where all Warren state
// lives. Every unit of state is a CoValue: a container identified by a
// content-addressed id, carrying a header (schema reference, container kind)
// and content. Three container kinds exist - collaborative map (keyed
// object), collaborative list (ordered list), and collaborative stream
// (append-only log). Actor inboxes are stream-kind CoValues with a message
// wire shape layered on top.
//
// Conflict resolution between replicas is the substrate's concern, not the
// client's: the client performs single-value reads and writes and never adds
// locking of its own. The one concurrency discipline in the system - one
// message at a time per actor - is enforced by the actor runtime, above this
// package.
//
// # Content Addressing
//
// CoValue ids follow a fixed textual pattern: the prefix "co_z" followed by
// 24 base62 characters derived from the value's header. Any string matching
// this pattern is treated everywhere as a resolved, durable reference.
// Human-readable names are a seed-time convenience held in a separate
// registry hash; no human-readable reference is ever durably stored inside
// a document.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// multiple Warren instances can safely coexist on a single Redis server.
//
// # Redis Schema
//
// Headers:    warren:{instance}:co:{id}
// List items: warren:{instance}:co:{id}:items
// Streams:    warren:{instance}:co:{id}:entries
// Processed:  warren:{instance}:co:{id}:processed
// Indexes:    warren:{instance}:index:{schema_id}
// Names:      warren:{instance}:names
// Watermarks: warren:{instance}:watermark:{session}:{inbox_id}
//
// Change events: warren:{instance}:change_events
package costore
