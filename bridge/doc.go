// Package bridge provides the correlation store that lets an asynchronous
// caller block until a reply tagged with its correlation id is published.
//
// The store is a rendezvous on Redis pub/sub: the channel name is the
// correlation id. A caller subscribes before sending its request so that a
// fast reply cannot be missed, then waits for the first message on that
// channel. The replying service publishes its handler result to the same
// channel and moves on; if nobody is listening the reply is dropped.
//
//	store := bridge.NewCorrelationStore(redisClient, bridge.WithDefaultTimeout(30*time.Second))
//
//	id := store.IssueID()
//	waiter, err := store.Subscribe(ctx, id)
//	if err != nil {
//	    return err
//	}
//	// send the request carrying id ...
//	reply, err := waiter.Wait(ctx)
//
// Waits are bounded: a context deadline wins, otherwise the store's default
// timeout applies and ErrReplyTimeout is returned after unsubscribing.
package bridge
