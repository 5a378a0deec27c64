// Package core assembles the hub kernel.
//
// A Kernel owns one scheduler loop, one event bus, the configuration
// domain manager, the item registry and the module manager. There is no
// package-level instance: modules receive the *Kernel from their Factory
// and reach every service through it.
//
// Bootstrap filters the compiled-in module factories through the
// "modules" domain, adds the built-in "items" module that creates the
// items declared in the "items" domain after every other module has
// settled, and initialises everything.
//
//	k, err := core.New(core.Options{Document: doc, Source: src, Settings: settings})
//	if err := k.Bootstrap(ctx, switches.Factory, api.Factory); err != nil { ... }
//	<-ctx.Done()
//	k.Stop(context.Background())
package core
