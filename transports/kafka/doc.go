// Package kafka is the log variant of the asynchronous bridge.
//
// Each service owns a topic named after itself and consumes it through the
// consumer group "<group>-<service>". Records carry {uniqueId, event, data}
// envelopes. A producer that needs an answer subscribes to the correlation
// store under the record's uniqueId before sending; the consuming service
// publishes the handler result under the same id.
//
// Topics are created explicitly with the configured partition count,
// replication factor and retention; the producer never auto-creates them.
package kafka
