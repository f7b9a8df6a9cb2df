// Package loader resolves composition identifiers to units.
//
// An identifier holding a newline is inline Starlark source that must bind
// its unit to the global Composite. Any other identifier is a dotted
// reference such as "platform.network.VPC": the global VPC of the module
// platform.network, found as platform/network.star on the search path or
// registered from Go with Register.
//
// Resolved units are cached by identifier. Invalidate drops cached units by
// identifier, module, package or loaded dependency, and Watch calls it when
// module files change on disk:
//
//	l := loader.New(logger, loader.WithSearchPath("/packages"))
//	go l.Watch(ctx)
//	unit, err := l.Resolve(ctx, "platform.network.VPC")
//
// Resolution failures are *ResolveError values whose Kind is one of
// ErrSourceExecution, ErrReference, ErrUnitNotFound or ErrUnitShape.
package loader
