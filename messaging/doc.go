// Package messaging holds the event registry shared by every bridge.
//
// A service registers one Handler per event name during startup, validates
// that every event it routes has a handler, and seals the registry. The HTTP,
// queue and log bridges all dispatch through the same Registry.
//
//	registry := messaging.NewRegistry(messaging.WithRegistryLogger(logger))
//	registry.MustRegister(contracts.EventGetProfile, messaging.Decode(svc.GetProfileEvent))
//	if err := registry.Validate(contracts.EventGetProfile); err != nil {
//		return err
//	}
//	registry.Seal()
package messaging
