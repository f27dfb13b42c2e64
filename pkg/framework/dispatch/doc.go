// Package dispatch delivers events to listeners.
//
// A Dispatcher runs listeners synchronously, in priority order, on one
// shared *event.Event:
//
//	d := dispatch.New(dispatch.WithLogger(logger))
//	d.On("order.created", dispatch.ListenerFunc(func(ctx context.Context, evt *event.Event) error {
//	    evt.SetParam(event.Key("audited"), true)
//	    return nil
//	}), dispatch.WithPriority(10))
//
//	evt, err := d.Trigger(ctx, "order.created", event.Params{"id": 42}, order)
//
// A listener that calls evt.StopPropagation(true) ends the chain. Listeners
// may dispatch further events; nesting is capped by WithMaxDepth.
//
// A Bus fans events out asynchronously. Each subscription runs on its own
// goroutine and receives its own copy of the event, restored from the wire
// form. A Dispatcher is itself a Listener, so it can sit behind a
// subscription:
//
//	bus := dispatch.NewBus(dispatch.DefaultBusConfig)
//	defer bus.Close()
//	bus.SubscribeAll(d)
package dispatch
