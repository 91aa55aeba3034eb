package costore

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple Warren instances to safely coexist on a single Redis
// server.
//
// Key pattern: warren:{instance_name}:{entity}:{id}
// Channel pattern: warren:{instance_name}:{event_type}_events

// HeaderKey returns the Redis key for a CoValue's header hash.
// Pattern: warren:{instance_name}:co:{id}
func HeaderKey(instanceName, id string) string {
	return fmt.Sprintf("warren:%s:co:%s", instanceName, id)
}

// ItemsKey returns the Redis key for a list-kind CoValue's item list.
// Pattern: warren:{instance_name}:co:{id}:items
func ItemsKey(instanceName, id string) string {
	return fmt.Sprintf("warren:%s:co:%s:items", instanceName, id)
}

// EntriesKey returns the Redis key for a stream-kind CoValue's entry stream.
// Pattern: warren:{instance_name}:co:{id}:entries
func EntriesKey(instanceName, id string) string {
	return fmt.Sprintf("warren:%s:co:%s:entries", instanceName, id)
}

// ProcessedKey returns the Redis key for the set of processed entry ids of a
// stream-kind CoValue. Stream entries are immutable, so the processed flag
// lives in a companion set rather than on the entry itself.
// Pattern: warren:{instance_name}:co:{id}:processed
func ProcessedKey(instanceName, id string) string {
	return fmt.Sprintf("warren:%s:co:%s:processed", instanceName, id)
}

// SchemaIndexKey returns the Redis key for the set of CoValue ids created
// against a schema. Collection reads and reactive queries scan this index.
// Pattern: warren:{instance_name}:index:{schema_id}
func SchemaIndexKey(instanceName, schemaID string) string {
	return fmt.Sprintf("warren:%s:index:%s", instanceName, schemaID)
}

// NamesKey returns the Redis key for the human-readable name registry hash.
// Pattern: warren:{instance_name}:names
func NamesKey(instanceName string) string {
	return fmt.Sprintf("warren:%s:names", instanceName)
}

// WatermarkKey returns the Redis key holding the last processed stream entry
// id for one session's view of one inbox.
// Pattern: warren:{instance_name}:watermark:{session}:{inbox_id}
func WatermarkKey(instanceName, session, inboxID string) string {
	return fmt.Sprintf("warren:%s:watermark:%s:%s", instanceName, session, inboxID)
}

// ChangeEventsChannel returns the Pub/Sub channel name for store change
// events. Every successful write publishes a ChangeEvent here.
// Pattern: warren:{instance_name}:change_events
func ChangeEventsChannel(instanceName string) string {
	return fmt.Sprintf("warren:%s:change_events", instanceName)
}
