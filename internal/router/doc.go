// Package router resolves operation names to components and dispatches
// requests to them.
//
// Resolution uses a RouteTable: exact operation names first, then the
// longest "prefix*" route, then a single default component. Falling back to
// the default is never silent; it is logged, emitted as a route_fallback
// event and reported in the response warnings.
//
// Each target runs on its own goroutine under its own timeout. For every
// target the router checks that the component is running, asks the
// allocator for admission, calls Execute and releases the admission slot on
// every exit path.
package router
