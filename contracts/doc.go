// Package contracts defines the wire types exchanged between services over the
// bridges.
//
// The shapes are fixed by the services already talking to each other:
//   - QueueEnvelope: {event, data} published to the direct exchange
//   - LogEnvelope: {uniqueId, event, data} written to a service topic
//   - Reply: {message} delivered to a correlation waiter
//   - Result: {type, message, data} returned by service APIs and the sync bridge
package contracts
