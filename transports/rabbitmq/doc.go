// Package rabbitmq is the queue variant of the asynchronous bridge.
//
// Every service publishes {event, data} envelopes to one durable direct
// exchange with the destination service name as routing key. A consuming
// service binds an exclusive anonymous queue with its own name and
// dispatches each delivery through the handler registry. Delivery is
// at-most-once: messages are auto-acked and published without confirms.
package rabbitmq
