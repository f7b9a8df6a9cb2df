// Package composite exposes one RunFunction call to a composition.
//
// A Composite wraps the request and response trees with typed facets: the
// observed and desired composite, its status, conditions and connection
// details, the composed resources, required (extra) resources, results and
// credentials. Facets are thin views over value.Handles and hold no state of
// their own.
//
// Compositions implement Composition, or AsyncComposition when they compose
// in the background, and are produced by a Unit.
package composite
