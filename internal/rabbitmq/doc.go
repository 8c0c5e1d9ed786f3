// Package rabbitmq provides the RabbitMQ plumbing behind the queue bridge.
//
// This package includes:
//   - ConnectionManager: owns the AMQP connection and reconnects with
//     capped exponential backoff under a bounded retry budget
//   - Channel: the subset of *amqp.Channel the bridge needs
//   - Topology helpers: the direct exchange and per-service exclusive queues
//   - Consumer: a delivery loop over one channel
//
// Connection state changes are reported to ConnectionStateListener values;
// exhausting the retry budget is reported as a ConnectionError wrapping
// ErrMaxRetriesExceeded.
package rabbitmq
